package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"swiftconvert/internal/apiclient"
	"swiftconvert/internal/config"
	"swiftconvert/internal/tui"
)

var authToken string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the access token sent to the conversion service",
}

var authLoginCmd = &cobra.Command{
	Use:   "login --token TOKEN",
	Short: "Store an access token in the system keychain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if info, err := apiclient.InspectToken(authToken); err == nil && info.Expired(time.Now()) {
			return fmt.Errorf("token already expired at %s", info.Expiry.Format(time.RFC3339))
		}
		if err := apiclient.StoreToken(authToken); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Token stored.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which token will be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		token, err := apiclient.ResolveToken(cfg.Token)
		if errors.Is(err, apiclient.ErrTokenNotFound) {
			fmt.Fprintln(os.Stdout, "Not logged in; requests are sent without a token.")
			return nil
		}
		if err != nil {
			return err
		}

		source := "keychain"
		if cfg.Token != "" {
			source = "SWIFTCONVERT_TOKEN"
		}
		rows := []tui.SummaryRow{{Label: "Source", Value: source}}
		info, err := apiclient.InspectToken(token)
		if err != nil {
			rows = append(rows, tui.SummaryRow{Label: "Format", Value: "opaque"})
			fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
			return nil
		}
		rows = append(rows,
			tui.SummaryRow{Label: "Subject", Value: orDash(info.Subject)},
			tui.SummaryRow{Label: "Issuer", Value: orDash(info.Issuer)},
		)
		if !info.IssuedAt.IsZero() {
			rows = append(rows, tui.SummaryRow{Label: "Issued", Value: info.IssuedAt.Local().Format(time.RFC3339)})
		}
		if !info.Expiry.IsZero() {
			state := "valid"
			if info.Expired(time.Now()) {
				state = "expired"
			}
			rows = append(rows, tui.SummaryRow{Label: "Expires", Value: info.Expiry.Local().Format(time.RFC3339) + " (" + state + ")"})
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiclient.DeleteToken(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Token removed.")
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "access token issued by the service")
	_ = authLoginCmd.MarkFlagRequired("token")

	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
