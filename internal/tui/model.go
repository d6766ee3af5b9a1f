package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"swiftconvert/internal/results"
	"swiftconvert/internal/session"
)

// maxNotices bounds how many rejection notices stay on screen.
const maxNotices = 5

type Model struct {
	updates    <-chan session.Update
	cancel     func()
	started    time.Time
	width      int
	rows       []results.ImageResult
	notices    []string
	cancelling bool
	quitting   bool
}

type doneMsg struct{}

type updateMsg session.Update

// NewModel renders the updates of one batch. cancel is called once when the
// user presses q or ctrl+c; the model keeps draining updates until the
// channel is closed so the sender never blocks.
func NewModel(updates <-chan session.Update, cancel func()) Model {
	return Model{updates: updates, cancel: cancel, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		if msg.Kind == session.UpdateNotice {
			m.notices = append(m.notices, msg.Notice)
			if len(m.notices) > maxNotices {
				m.notices = m.notices[len(m.notices)-maxNotices:]
			}
		}
		if msg.Results != nil && !m.cancelling {
			m.rows = msg.Results
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.cancelling {
				m.cancelling = true
				m.rows = nil
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 24
	if m.width > 0 {
		barWidth = int(math.Min(40, float64(m.width-50)))
		if barWidth < 10 {
			barWidth = 10
		}
	}

	done, failed := 0, 0
	nameWidth := 0
	for _, r := range m.rows {
		switch r.Status {
		case results.StatusDone:
			done++
		case results.StatusFailed:
			failed++
		}
		if n := len([]rune(r.Name)); n > nameWidth {
			nameWidth = n
		}
	}
	if nameWidth > 32 {
		nameWidth = 32
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)
	lines := []string{
		titleStyle.Render("swiftconvert"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", done, len(m.rows))) + dimStyle.Render(fmt.Sprintf("  failed:%d", failed)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		"",
	}
	for _, r := range m.rows {
		lines = append(lines, renderRow(r, nameWidth, barWidth))
	}
	for _, n := range m.notices {
		lines = append(lines, warnStyle.Render("! "+n))
	}
	if m.cancelling {
		lines = append(lines, dimStyle.Render("cancelling..."))
	} else {
		lines = append(lines, dimStyle.Render("q to cancel"))
	}

	return strings.Join(lines, "\n")
}

func renderRow(r results.ImageResult, nameWidth, barWidth int) string {
	name := truncate(r.Name, nameWidth)
	name = padRight(name, nameWidth)

	switch r.Status {
	case results.StatusFailed:
		return errorStyle.Render("x ") + labelStyle.Render(name) + "  " + errorStyle.Render(r.Error)
	case results.StatusDone:
		return successStyle.Render("✓ ") + labelStyle.Render(name) + "  " +
			barStyle.Render(renderBar(barWidth, 1)) + dimStyle.Render(" "+r.Size)
	}

	status := string(r.Status)
	return dimStyle.Render("• ") + labelStyle.Render(name) + "  " +
		barStyle.Render(renderBar(barWidth, float64(r.Progress)/100)) +
		dimStyle.Render(fmt.Sprintf(" %3d%% %s", r.Progress, status))
}

func listenForUpdates(updates <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
