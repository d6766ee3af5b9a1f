package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swiftconvert/internal/export"
)

var (
	exportDest string
	exportDir  string
)

var exportCmd = &cobra.Command{
	Use:   "export [--dest local|s3|gcs|sftp] [--dir DIR]",
	Short: "Bundle every converted file into one zip archive",
	Args:  cobra.NoArgs,
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
		rs, err := a.history.Load()
		if err != nil {
			return err
		}

		ctx := context.Background()
		saver, err := export.NewSaver(ctx, a.cfg.Export, exportDest, exportDir, a.logger.Named("export"))
		if err != nil {
			return err
		}
		location, err := export.New(client, saver, a.logger.Named("export")).ExportAll(ctx, export.Completed(rs))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Archive written to: %s\n", location)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDest, "dest", "", "local, s3, gcs or sftp (default from SWIFTCONVERT_EXPORT_DEST)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "local directory (default from SWIFTCONVERT_EXPORT_DIR)")

	rootCmd.AddCommand(exportCmd)
}
