package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/service"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the download settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.handler.Handle(cmd.Context(), service.Message{Action: service.ActionGetSettings})
			return printSettings(cmd, resp.Settings)
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change individual settings",
		Example: `  resource-downloader settings set --folder media --subfolders
  resource-downloader settings set --avoid-duplicates=false`,
		Args: cobra.NoArgs,
		RunE: runSettingsSet,
	}
	set.Flags().String("folder", "", "folder under the download directory")
	set.Flags().Bool("subfolders", false, "sort downloads into images, videos, audio and subtitles folders")
	set.Flags().Bool("avoid-duplicates", true, "rename instead of overwriting existing files")
	set.Flags().Bool("preserve-structure", false, "mirror the site's host and path as folders")
	set.Flags().Bool("timestamp", false, "append a timestamp to file names")
	set.Flags().Bool("website-name", false, "prefix file names with the site's host")

	cmd.AddCommand(show, set)
	return cmd
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	current := a.settings.Load(ctx)

	flags := cmd.Flags()
	changed := false
	if flags.Changed("folder") {
		current.DownloadFolder, _ = flags.GetString("folder")
		changed = true
	}
	toggles := map[string]*bool{
		"subfolders":         &current.CreateSubfolders,
		"avoid-duplicates":   &current.AvoidDuplicates,
		"preserve-structure": &current.PreserveStructure,
		"timestamp":          &current.AddTimestamp,
		"website-name":       &current.AddWebsiteName,
	}
	for name, field := range toggles {
		if flags.Changed(name) {
			*field, _ = flags.GetBool(name)
			changed = true
		}
	}
	if !changed {
		return errors.New("no setting given")
	}

	if !a.quota.HasFeature(ctx, "customFolders") && current.DownloadFolder != "" {
		logger.Warningf("Custom folders are a Pro feature; the setting is saved but consider upgrading")
	}

	resp := a.handler.Handle(ctx, service.Message{Action: service.ActionSaveSettings, Settings: &current})
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return printSettings(cmd, resp.Settings)
}

func printSettings(cmd *cobra.Command, s *settings.Settings) error {
	if s == nil {
		return errors.New("no settings returned")
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to print settings: %w", err)
	}
	return nil
}
