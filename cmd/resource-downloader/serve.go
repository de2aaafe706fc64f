package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer JSON action messages read line by line from stdin",
		Long: `Reads one JSON message per line from stdin, for example
  {"action":"scanPage","url":"https://example.com/"}
and writes one JSON response per line to stdout. Actions: scanPage,
downloadResources, getDownloadProgress, getLicenseStatus, canDownload,
activateLicense, startTrial, getSettings, saveSettings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries only responses
			if logFile, _ := cmd.Flags().GetString("log-file"); logFile == "" {
				logger.SetOutput(os.Stderr, os.Stderr)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Infof("Serving action messages on stdin")
			return a.handler.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
