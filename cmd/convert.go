package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swiftconvert/internal/config"
	"swiftconvert/internal/export"
	"swiftconvert/internal/progress"
	"swiftconvert/internal/results"
	"swiftconvert/internal/session"
	"swiftconvert/internal/settings"
	"swiftconvert/internal/tui"
	"swiftconvert/internal/upload"
)

var (
	convertFormat  string
	convertQuality int
	convertZip     bool
	convertOutDir  string
	convertPlain   bool
	convertStrip   bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <path>...",
	Short: "Upload images and convert them with the current settings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.client()
		if err != nil {
			return err
		}

		params, err := runSettings(cmd, a)
		if err != nil {
			return err
		}

		collection, err := a.history.Restore()
		if err != nil {
			a.logger.Warn("could not restore previous results", zap.Error(err))
			collection = results.NewCollection()
		}

		outDir := convertOutDir
		if outDir == "" {
			outDir = filepath.Join(a.cfg.DataDir, "converted")
		}

		uploader := upload.NewUploader(client, a.cfg.Upload.MaxConcurrent, a.logger.Named("upload"))
		uploader.StripMetadata = convertStrip

		sess := session.New(session.Deps{
			Converter: client,
			Progress:  progress.NewTracker(client, a.logger.Named("progress")),
			Uploader:  uploader,
			Settings:  params,
			Results:   collection,
		}, session.Options{
			Restrictions: upload.Restrictions{
				MaxNumberOfFiles:  a.cfg.Upload.MaxFiles,
				MaxFileSize:       a.cfg.Upload.MaxFileSize,
				MaxTotalFileSize:  a.cfg.Upload.MaxTotalSize,
				AllowedInputTypes: a.cfg.Upload.InputTypes,
			},
			OutputDir: outDir,
			Logger:    a.logger.Named("session"),
		})
		defer sess.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		updates := make(chan session.Update, 64)
		uiDone := make(chan struct{})
		if convertPlain {
			go func() {
				printUpdates(updates)
				close(uiDone)
			}()
		} else {
			program := tea.NewProgram(tui.NewModel(updates, sess.Reset))
			go func() {
				_, _ = program.Run()
				close(uiDone)
			}()
		}

		summary, runErr := sess.Run(ctx, args, updates)
		close(updates)
		<-uiDone

		snapshot := collection.Snapshot()
		if err := a.history.Save(snapshot); err != nil {
			a.logger.Warn("could not save results", zap.Error(err))
		}
		if runErr != nil && !errors.Is(runErr, session.ErrCancelled) {
			return runErr
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
			{Label: "Converted", Value: fmt.Sprintf("%d/%d", summary.Converted, summary.Total)},
			{Label: "Failed", Value: fmt.Sprintf("%d", summary.Failed)},
			{Label: "Rejected", Value: fmt.Sprintf("%d", summary.Rejected)},
			{Label: "Format", Value: fmt.Sprintf("%s @ %d", sess.Settings().FileOutputID, sess.Settings().ImageQuality)},
			{Label: "Elapsed", Value: summary.Elapsed.Round(time.Millisecond).String()},
		}))
		if runErr != nil {
			fmt.Fprintln(os.Stdout, convertDimStyle.Render("Batch cancelled; results cleared."))
			return nil
		}
		for _, r := range snapshot {
			if r.Status == results.StatusFailed {
				fmt.Fprintf(os.Stdout, "%s %s\n", convertFailStyle.Render(r.Name+":"), r.Error)
			}
		}

		if convertZip {
			saver, err := export.NewSaver(ctx, a.cfg.Export, "", "", a.logger.Named("export"))
			if err != nil {
				return err
			}
			location, err := export.New(client, saver, a.logger.Named("export")).ExportAll(ctx, export.Completed(snapshot))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Archive written to: %s\n", location)
		}
		return nil
	},
}

// runOverrides holds the per-run --format and --quality values.
type runOverrides struct {
	Format     string
	Quality    int
	SetFormat  bool
	SetQuality bool
}

// runSettings applies --format and --quality on top of the saved settings
// for this run only.
func runSettings(cmd *cobra.Command, a *app) (fixedSettings, error) {
	o := runOverrides{
		Format:     convertFormat,
		Quality:    convertQuality,
		SetFormat:  cmd.Flags().Changed("format"),
		SetQuality: cmd.Flags().Changed("quality"),
	}
	params, err := o.apply(a.settings.Current(), a.cfg)
	if err != nil {
		return fixedSettings{}, err
	}
	return fixedSettings{params}, nil
}

func (o runOverrides) apply(base settings.Settings, cfg *config.Config) (settings.Settings, error) {
	if o.SetFormat {
		if !cfg.SupportsOutput(o.Format) {
			return settings.Settings{}, &settings.FormatError{Format: o.Format, Supported: cfg.Upload.OutputTypes}
		}
		base.FileOutputID = o.Format
	}
	if o.SetQuality {
		if err := settings.ValidateQuality(o.Quality); err != nil {
			return settings.Settings{}, err
		}
		base.ImageQuality = o.Quality
	}
	return base, nil
}

// fixedSettings pins the parameters of one run.
type fixedSettings struct {
	s settings.Settings
}

func (f fixedSettings) Current() settings.Settings { return f.s }

func (f fixedSettings) Subscribe(func(settings.Settings)) func() { return func() {} }

func printUpdates(updates <-chan session.Update) {
	for u := range updates {
		switch u.Kind {
		case session.UpdateNotice:
			fmt.Fprintf(os.Stdout, "rejected  %s\n", u.Notice)
		case session.UpdateConverted, session.UpdateFailed:
			for _, r := range u.Results {
				if r.ID != u.FileID {
					continue
				}
				if r.Status == results.StatusFailed {
					fmt.Fprintf(os.Stdout, "failed    %s: %s\n", r.Name, r.Error)
				} else {
					fmt.Fprintf(os.Stdout, "converted %s (%s)\n", r.Name, r.Size)
				}
			}
		}
	}
}

var (
	convertFailStyle = lipgloss.NewStyle().Foreground(tui.ColorError)
	convertDimStyle  = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "output format for this run (overrides saved settings)")
	convertCmd.Flags().IntVarP(&convertQuality, "quality", "q", 0, "image quality for this run, 10-100 in steps of 10")
	convertCmd.Flags().BoolVar(&convertZip, "zip", false, "export converted files as one archive when done")
	convertCmd.Flags().StringVarP(&convertOutDir, "out", "o", "", "directory for files the service returns inline")
	convertCmd.Flags().BoolVar(&convertPlain, "plain", false, "print one line per file instead of the progress view")
	convertCmd.Flags().BoolVar(&convertStrip, "strip-metadata", false, "remove EXIF/XMP/IPTC from JPEG and PNG sources before upload")

	rootCmd.AddCommand(convertCmd)
}
