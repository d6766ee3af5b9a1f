package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swiftconvert/internal/tui"
)

var (
	settingsOutput  string
	settingsQuality int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the saved conversion settings",
	Args:  cobra.NoArgs,
	RunE:  showSettings,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved conversion settings",
	Args:  cobra.NoArgs,
	RunE:  showSettings,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [--output FORMAT] [--quality N]",
	Short: "Save new conversion settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("output") && !cmd.Flags().Changed("quality") {
			return fmt.Errorf("nothing to change: pass --output and/or --quality")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		next := a.settings.Current()
		if cmd.Flags().Changed("output") {
			next.FileOutputID = settingsOutput
		}
		if cmd.Flags().Changed("quality") {
			next.ImageQuality = settingsQuality
		}
		if err := a.settings.Save(next); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Settings saved.")
		return printSettings(a)
	},
}

func showSettings(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return printSettings(a)
}

func printSettings(a *app) error {
	s := a.settings.Current()
	fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
		{Label: "Input format", Value: s.FileInputID},
		{Label: "Output format", Value: s.FileOutputID},
		{Label: "Image quality", Value: fmt.Sprintf("%d", s.ImageQuality)},
	}))
	return nil
}

func init() {
	settingsSetCmd.Flags().StringVar(&settingsOutput, "output", "", "output format, e.g. jpeg or png")
	settingsSetCmd.Flags().IntVar(&settingsQuality, "quality", 0, "image quality, 10-100 in steps of 10")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
