package progress

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

const maxEventSize = 64 * 1024

// readEvents scans a text/event-stream body and calls fn with the data of
// every dispatched message. Multi-line data fields are joined with "\n".
// It returns nil at a clean EOF or when fn asks to stop.
func readEvents(r io.Reader, fn func(data string) (stop bool)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	var data []string
	dispatch := func() bool {
		if len(data) == 0 {
			return false
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		return fn(payload)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if dispatch() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}

type payload struct {
	FileID    string   `json:"fileId"`
	Filename  string   `json:"Filename"`
	Progress  *float64 `json:"progress"`
	ProgressU *float64 `json:"Progress"`
}

// parsePayload decodes one message. It accepts {"fileId","progress"},
// {"Filename","Progress"} and a bare number. id is the payload's fileId, if
// any; a Filename is informational and never used for correlation.
func parsePayload(data string) (id string, value int, ok bool) {
	data = strings.TrimSpace(data)
	if n, err := strconv.ParseFloat(data, 64); err == nil {
		return "", clamp(n), true
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return "", 0, false
	}
	id = p.FileID
	switch {
	case p.Progress != nil:
		return id, clamp(*p.Progress), true
	case p.ProgressU != nil:
		return id, clamp(*p.ProgressU), true
	}
	return "", 0, false
}

func clamp(n float64) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return int(n)
}
