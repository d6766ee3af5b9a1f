package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swiftconvert/internal/apiclient"
)

var waitlistEntry apiclient.WaitlistEntry

var waitlistCmd = &cobra.Command{
	Use:   "waitlist --feature ID --name NAME --email EMAIL",
	Short: "Join the waitlist for an upcoming feature",
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
		if err := client.JoinWaitlist(context.Background(), waitlistEntry); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Added %s to the %s waitlist.\n", waitlistEntry.Email, waitlistEntry.FeatureID)
		return nil
	},
}

func init() {
	waitlistCmd.Flags().StringVar(&waitlistEntry.FeatureID, "feature", "", "feature to wait for")
	waitlistCmd.Flags().StringVar(&waitlistEntry.Name, "name", "", "your name")
	waitlistCmd.Flags().StringVar(&waitlistEntry.Email, "email", "", "where to send the invite")
	waitlistCmd.Flags().BoolVar(&waitlistEntry.IsEarlyAdopter, "early-adopter", false, "opt in to early access")
	_ = waitlistCmd.MarkFlagRequired("feature")
	_ = waitlistCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(waitlistCmd)
}
