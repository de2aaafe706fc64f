package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-resource-downloader/internal/config"
	"github.com/deploymenttheory/go-resource-downloader/internal/crawler"
	"github.com/deploymenttheory/go-resource-downloader/internal/downloader"
	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/pathbuilder"
	"github.com/deploymenttheory/go-resource-downloader/internal/quota"
	"github.com/deploymenttheory/go-resource-downloader/internal/scanner"
	"github.com/deploymenttheory/go-resource-downloader/internal/service"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

const metricsNamespace = "resource_downloader"

func main() {
	rootCmd := &cobra.Command{
		Use:   "resource-downloader",
		Short: "Find and download the resources embedded in a web page",
		Long: `Scans a web page for downloadable resources (links, images, video, audio,
subtitles, embedded players and streaming manifests) and downloads a selection of
them into an organized folder tree. Free use is limited per batch and per day.`,
		PersistentPreRun: setupLogging,
		SilenceUsage:     true,
		SilenceErrors:    true,
	}

	// Logging flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose debugging output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (error, warning, info, debug)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("log-file", "", "log to file instead of stdout")

	// Configuration overrides
	rootCmd.PersistentFlags().String("state-backend", "", "state store backend (json, sqlite, memory)")
	rootCmd.PersistentFlags().String("state-path", "", "state store file")
	rootCmd.PersistentFlags().StringP("download-dir", "d", "", "directory downloads are saved under")
	rootCmd.PersistentFlags().String("user-agent", "", "User-Agent header for page and file requests")
	rootCmd.PersistentFlags().Duration("scan-timeout", 0, "maximum time for fetching and scanning a page")
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "timeout of a single file download")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		newScanCmd(),
		newDownloadCmd(),
		newStatusCmd(),
		newActivateCmd(),
		newTrialCmd(),
		newSettingsCmd(),
		newServeCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		stop()
		os.Exit(1)
	}
}

// setupLogging configures the logger based on command line flags
func setupLogging(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	levelName, _ := cmd.Flags().GetString("log-level")

	switch {
	case verbose:
		logger.SetLevel(logger.LevelDebug)
		logger.Infof("Debug logging enabled")
	case levelName != "":
		level, err := logger.ParseLevel(levelName)
		if err != nil {
			logger.Warningf("%v, using info", err)
		}
		logger.SetLevel(level)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		logger.DisableColors()
	}

	logFile, _ := cmd.Flags().GetString("log-file")
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logger.Errorf("Failed to open log file: %v", err)
		} else {
			// Disable colors when logging to file
			logger.DisableColors()
			logger.SetOutput(file, file)
			logger.Infof("Logging to file: %s", logFile)
		}
	}
}

// app holds the components every subcommand works with
type app struct {
	cfg      config.Config
	store    storage.Store
	registry *prometheus.Registry

	fetcher  *crawler.Fetcher
	host     *downloader.HTTPDownloader
	quota    *quota.Quota
	settings *settings.Store
	scanner  *scanner.Scanner
	handler  *service.Handler
}

// newApp loads the configuration, applies flag overrides and wires the
// components. Close must be called when the command finishes.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	logger.Debugf("Configuration: %+v", cfg)

	store, err := storage.Open(cfg.StateBackend, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := downloader.NewMetrics(metricsNamespace, registry)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		fetcher:  crawler.New(cfg.UserAgent, cfg.ScanTimeout),
		host: downloader.NewHTTPDownloader(cfg.DownloadDir, downloader.Options{
			Timeout:      cfg.RequestTimeout,
			UserAgent:    cfg.UserAgent,
			MaxRedirects: cfg.MaxRedirects,
			Metrics:      metrics,
		}),
		quota:    quota.New(store, nil),
		settings: settings.NewStore(store),
		scanner:  scanner.New(nil),
	}

	a.handler = service.New(service.Components{
		Fetcher:      a.fetcher,
		Scanner:      a.scanner,
		Orchestrator: downloader.NewOrchestrator(a.host, a.settings, pathbuilder.New(nil), nil),
		Quota:        a.quota,
		Settings:     a.settings,
		ScanTimeout:  cfg.ScanTimeout,
	})
	return a, nil
}

// Close writes the metrics file, when configured, and closes the state store
func (a *app) Close() {
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
			logger.Warningf("Failed to write metrics to %s: %v", a.cfg.MetricsFile, err)
		} else {
			logger.Debugf("Metrics written to %s", a.cfg.MetricsFile)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warningf("Failed to close state store: %v", err)
	}
}

// loadConfig reads the environment configuration and applies the flags the
// user set explicitly
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("state-backend") {
		cfg.StateBackend, _ = flags.GetString("state-backend")
	}
	if flags.Changed("state-path") {
		cfg.StatePath, _ = flags.GetString("state-path")
	}
	if flags.Changed("download-dir") {
		cfg.DownloadDir, _ = flags.GetString("download-dir")
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if flags.Changed("scan-timeout") {
		cfg.ScanTimeout, _ = flags.GetDuration("scan-timeout")
	}
	if flags.Changed("request-timeout") {
		cfg.RequestTimeout, _ = flags.GetDuration("request-timeout")
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if cfg.Verbose && !flags.Changed("verbose") {
		logger.SetLevel(logger.LevelDebug)
	}

	return cfg, cfg.Validate()
}
