package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/manifest"
	"github.com/deploymenttheory/go-resource-downloader/internal/page"
	"github.com/deploymenttheory/go-resource-downloader/internal/report"
	"github.com/deploymenttheory/go-resource-downloader/internal/scanner"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the downloadable resources of a page",
		Example: `  resource-downloader scan -u https://example.com/gallery
  resource-downloader scan --file saved.html --base-url https://example.com/ -o scan.json.zst`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	addSourceFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "save the scan as a report (.json, .json.gz or .json.zst)")
	cmd.Flags().Bool("probe-manifests", false, "fetch HLS manifests found on the page and report their variants")
	return cmd
}

// addSourceFlags registers the flags that pick a page and filter its resources
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("url", "u", "", "page URL to scan")
	cmd.Flags().String("file", "", "scan a saved HTML file instead of fetching a page")
	cmd.Flags().String("base-url", "", "URL relative references in --file resolve against")
	cmd.Flags().StringSliceP("type", "t", nil, "only keep these resource types (link, image, video, audio, subtitle)")
	cmd.Flags().StringSliceP("include", "i", nil, "regex patterns a resource URL must match")
	cmd.Flags().StringSliceP("exclude", "x", nil, "regex patterns that drop a resource URL")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	rep, err := a.scanSource(cmd)
	if err != nil {
		return err
	}

	probe, _ := cmd.Flags().GetBool("probe-manifests")
	if probe {
		rep.Manifests = a.probeManifests(cmd, rep.Resources)
	}

	logger.Infof("Found %d resources on %s in %v", len(rep.Resources), rep.PageURL, time.Since(started))

	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		if err := report.WriteFile(output, rep); err != nil {
			return err
		}
		logger.Infof("Results saved to: %s", output)
		return nil
	}

	printResources(cmd.OutOrStdout(), rep.Resources)
	printManifests(cmd.OutOrStdout(), rep.Manifests)
	return nil
}

// scanSource scans the page named by --url or --file and applies the
// type and pattern filters
func (a *app) scanSource(cmd *cobra.Command) (report.Report, error) {
	pageURL, _ := cmd.Flags().GetString("url")
	file, _ := cmd.Flags().GetString("file")

	var (
		resources []types.ResourceDescriptor
		err       error
	)
	switch {
	case pageURL != "" && file != "":
		return report.Report{}, errors.New("--url and --file are mutually exclusive")
	case pageURL != "":
		resources, err = a.handler.Scan(cmd.Context(), pageURL)
	case file != "":
		pageURL, _ = cmd.Flags().GetString("base-url")
		resources, err = a.scanFile(file, pageURL)
	default:
		return report.Report{}, errors.New("either --url or --file is required")
	}
	if err != nil {
		return report.Report{}, err
	}

	filter, err := filterFromFlags(cmd)
	if err != nil {
		return report.Report{}, err
	}

	return report.Report{
		PageURL:   pageURL,
		ScannedAt: time.Now().UTC(),
		Resources: filter.Apply(resources),
	}, nil
}

func (a *app) scanFile(path, baseURL string) ([]types.ResourceDescriptor, error) {
	if baseURL == "" {
		return nil, errors.New("--base-url is required with --file")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer file.Close()

	doc, err := page.Parse(file, baseURL)
	if err != nil {
		return nil, err
	}
	return a.scanner.Scan(doc), nil
}

func filterFromFlags(cmd *cobra.Command) (*scanner.Filter, error) {
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	typeNames, _ := cmd.Flags().GetStringSlice("type")

	kinds, err := parseTypes(typeNames)
	if err != nil {
		return nil, err
	}
	return scanner.NewFilter(include, exclude, kinds)
}

func parseTypes(names []string) ([]types.ResourceType, error) {
	var kinds []types.ResourceType
	for _, name := range names {
		kind := types.ResourceType(strings.ToLower(strings.TrimSpace(name)))
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource type %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// parseIndexes turns a 1-based selection like "1,3,5-7" into 0-based
// indexes into a list of n items
func parseIndexes(selection string, n int) ([]int, error) {
	var indexes []int
	seen := make(map[int]bool)

	add := func(i int) error {
		if i < 1 || i > n {
			return fmt.Errorf("index %d out of range 1-%d", i, n)
		}
		if !seen[i] {
			seen[i] = true
			indexes = append(indexes, i-1)
		}
		return nil
	}

	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil || last < first {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		for i := first; i <= last; i++ {
			if err := add(i); err != nil {
				return nil, err
			}
		}
	}
	return indexes, nil
}

// probeManifests fetches every HLS manifest among resources. Failures are
// logged and skipped.
func (a *app) probeManifests(cmd *cobra.Command, resources []types.ResourceDescriptor) []manifest.Info {
	prober := manifest.NewProber(a.cfg.RequestTimeout, a.cfg.UserAgent)

	var infos []manifest.Info
	for _, r := range resources {
		if r.Element != types.ElementStreamingManifest {
			continue
		}
		info, err := prober.Probe(cmd.Context(), r.URL)
		if errors.Is(err, manifest.ErrNotHLS) {
			logger.Debugf("Skipping DASH manifest %s", r.URL)
			continue
		}
		if err != nil {
			logger.Warningf("Failed to probe %s: %v", r.URL, err)
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

func printResources(w io.Writer, resources []types.ResourceDescriptor) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tFILENAME\tSOURCE\tURL")
	for i, r := range resources {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Type, r.Filename, r.Element, r.URL)
	}
	tw.Flush()
}

func printManifests(w io.Writer, infos []manifest.Info) {
	for _, info := range infos {
		switch info.Type {
		case manifest.Master:
			fmt.Fprintf(w, "\n%s: master playlist, %d variants\n", info.URL, len(info.Variants))
			for _, v := range info.Variants {
				fmt.Fprintf(w, "  %8d bps  %-10s %s\n", v.Bandwidth, v.Resolution, v.URL)
			}
		default:
			fmt.Fprintf(w, "\n%s: %d segments, %.1fs, live=%t, encrypted=%t\n",
				info.URL, info.Segments, info.Duration, info.Live, info.Encrypted)
		}
	}
}
