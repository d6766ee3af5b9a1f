package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"swiftconvert/internal/export"
	"swiftconvert/internal/results"
	"swiftconvert/internal/tui"
)

var (
	resultsSaveDest string
	resultsSaveDir  string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect the results of the last conversions",
	Args:  cobra.NoArgs,
	RunE:  listResults,
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results",
	Args:  cobra.NoArgs,
	RunE:  listResults,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id|#>",
	Short: "Show one result with its file information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		collection, err := a.history.Restore()
		if err != nil {
			return err
		}
		id, err := resolveResult(collection, args[0])
		if err != nil {
			return err
		}
		collection.SelectCurrent(id)
		current, _ := collection.Current()
		fmt.Fprintln(os.Stdout, tui.RenderDetail(current))
		return nil
	},
}

var resultsRmCmd = &cobra.Command{
	Use:   "rm <id|#>",
	Short: "Remove one result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		collection, err := a.history.Restore()
		if err != nil {
			return err
		}
		id, err := resolveResult(collection, args[0])
		if err != nil {
			return err
		}

		if empty := collection.Remove(id); empty {
			if err := a.history.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, resultsDimStyle.Render("Last result removed; session reset."))
			return nil
		}
		if err := a.history.Save(collection.Snapshot()); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tui.RenderResults(collection.Snapshot()))
		return nil
	},
}

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.history.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Results cleared.")
		return nil
	},
}

var resultsSaveCmd = &cobra.Command{
	Use:   "save [id|#]...",
	Short: "Download converted files one by one",
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
		collection, err := a.history.Restore()
		if err != nil {
			return err
		}

		selected := export.Completed(collection.Snapshot())
		if len(args) > 0 {
			selected = nil
			for _, arg := range args {
				id, err := resolveResult(collection, arg)
				if err != nil {
					return err
				}
				r, _ := collection.Get(id)
				if r.Status != results.StatusDone {
					return fmt.Errorf("%s has not finished converting", r.Name)
				}
				selected = append(selected, r)
			}
		}
		if len(selected) == 0 {
			return export.ErrNothingToExport
		}

		ctx := context.Background()
		saver, err := export.NewSaver(ctx, a.cfg.Export, resultsSaveDest, resultsSaveDir, a.logger.Named("export"))
		if err != nil {
			return err
		}

		failed := 0
		for _, s := range export.New(client, saver, a.logger.Named("export")).SaveEach(ctx, selected) {
			if s.Err != nil {
				failed++
				fmt.Fprintf(os.Stdout, "%s %v\n", resultsFailStyle.Render(s.Name+":"), s.Err)
				continue
			}
			fmt.Fprintf(os.Stdout, "%s -> %s\n", s.Name, s.Location)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d downloads failed", failed, len(selected))
		}
		return nil
	},
}

func listResults(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rs, err := a.history.Load()
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, tui.RenderResults(rs))
	return nil
}

// resolveResult accepts a result id or its 1-based position in the list.
func resolveResult(c *results.Collection, key string) (string, error) {
	if _, ok := c.Get(key); ok {
		return key, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		rs := c.Snapshot()
		if n >= 1 && n <= len(rs) {
			return rs[n-1].ID, nil
		}
	}
	return "", fmt.Errorf("no result %q", key)
}

var (
	resultsFailStyle = lipgloss.NewStyle().Foreground(tui.ColorError)
	resultsDimStyle  = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	resultsSaveCmd.Flags().StringVar(&resultsSaveDest, "dest", "", "local, s3, gcs or sftp (default from SWIFTCONVERT_EXPORT_DEST)")
	resultsSaveCmd.Flags().StringVar(&resultsSaveDir, "dir", "", "local directory (default from SWIFTCONVERT_EXPORT_DIR)")

	resultsCmd.AddCommand(resultsListCmd, resultsShowCmd, resultsRmCmd, resultsClearCmd, resultsSaveCmd)
	rootCmd.AddCommand(resultsCmd)
}
