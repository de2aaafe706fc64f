package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/report"
	"github.com/deploymenttheory/go-resource-downloader/internal/service"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download resources from a saved scan or a live page",
		Example: `  resource-downloader download --from scan.json --index 1,3-4
  resource-downloader download -u https://example.com/gallery --type image`,
		Args: cobra.NoArgs,
		RunE: runDownload,
	}
	addSourceFlags(cmd)
	cmd.Flags().String("from", "", "report written by scan -o")
	cmd.Flags().String("index", "", "1-based resource numbers to download, e.g. 1,3,5-7 (default all)")
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resources, err := a.selectResources(cmd)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		logger.Infof("Nothing to download")
		return nil
	}

	logger.Infof("Downloading %d files to %s", len(resources), a.cfg.DownloadDir)
	resp := a.handler.Handle(cmd.Context(), service.Message{
		Action:    service.ActionDownloadResources,
		Resources: resources,
	})
	if !resp.Success {
		return errors.New(resp.Error)
	}

	printOutcomes(cmd.OutOrStdout(), resp.Items)
	logger.Infof("Download complete! %d successful, %d failed out of %d total",
		resp.Downloaded, resp.Failed, resp.Total)

	stats := a.host.Stats()
	logger.Debugf("Bytes downloaded: %d", stats.BytesDownloaded)

	if resp.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", resp.Failed, resp.Total)
	}
	return nil
}

// selectResources loads the candidate list from --from or a fresh scan and
// narrows it to --index
func (a *app) selectResources(cmd *cobra.Command) ([]types.ResourceDescriptor, error) {
	from, _ := cmd.Flags().GetString("from")

	var resources []types.ResourceDescriptor
	if from != "" {
		rep, err := report.ReadFile(from)
		if err != nil {
			return nil, err
		}
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return nil, err
		}
		resources = filter.Apply(rep.Resources)
	} else {
		rep, err := a.scanSource(cmd)
		if err != nil {
			return nil, err
		}
		resources = rep.Resources
	}

	index, _ := cmd.Flags().GetString("index")
	if index == "" {
		return resources, nil
	}

	picked, err := parseIndexes(index, len(resources))
	if err != nil {
		return nil, err
	}
	selected := make([]types.ResourceDescriptor, 0, len(picked))
	for _, i := range picked {
		selected = append(selected, resources[i])
	}
	return selected, nil
}

func printOutcomes(w io.Writer, items []types.ItemOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tPATH\tBYTES\tTYPE\tDETAIL")
	for _, item := range items {
		if item.Succeeded() {
			fmt.Fprintf(tw, "ok\t%s\t%d\t%s\t%s\n", item.Path, item.Bytes, item.MediaType, item.SHA3)
			continue
		}
		fmt.Fprintf(tw, "failed\t%s\t-\t-\t%s\n", item.Path, item.Error)
	}
	tw.Flush()
}
