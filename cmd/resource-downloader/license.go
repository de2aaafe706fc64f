package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/service"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the license state and today's usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.handler.Handle(cmd.Context(), service.Message{Action: service.ActionGetLicenseStatus})
			if !resp.Success {
				return errors.New(resp.Error)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, resp.Message)
			if resp.License.ExpiryDate != nil {
				fmt.Fprintf(w, "Expires:          %s\n", resp.License.ExpiryDate.Local().Format(time.RFC1123))
			}
			if !resp.Remaining.Unlimited {
				fmt.Fprintf(w, "Used today:       %d/%d\n", resp.Remaining.Used, resp.Remaining.Total)
			}
			fmt.Fprintf(w, "This week:        %d\n", resp.Engagement.WeeklyDownloads)
			fmt.Fprintf(w, "Total downloads:  %d\n", resp.Engagement.TotalDownloads)
			fmt.Fprintf(w, "Days in use:      %d (%.1f per day)\n",
				resp.Engagement.DaysSinceFirstUse, resp.Engagement.AverageDownloadsPerDay)
			return nil
		},
	}
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate KEY",
		Short: "Activate a Pro license key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLicenseAction(cmd, service.Message{Action: service.ActionActivateLicense, LicenseKey: args[0]})
		},
	}
}

func newTrialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trial",
		Short: "Start the one-time 7-day Pro trial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLicenseAction(cmd, service.Message{Action: service.ActionStartTrial})
		},
	}
}

func runLicenseAction(cmd *cobra.Command, msg service.Message) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.handler.Handle(cmd.Context(), msg)
	if !resp.Success {
		return errors.New(resp.Error)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	if resp.License != nil && resp.License.ExpiryDate != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Valid until %s\n", resp.License.ExpiryDate.Local().Format(time.RFC1123))
	}
	return nil
}
