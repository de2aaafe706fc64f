// Package service routes action messages to the scanner, the download
// orchestrator, the usage quota and the settings store, and answers each with
// a Response envelope.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-resource-downloader/internal/downloader"
	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/page"
	"github.com/deploymenttheory/go-resource-downloader/internal/quota"
	"github.com/deploymenttheory/go-resource-downloader/internal/scanner"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

// DefaultScanTimeout bounds a scanPage request
const DefaultScanTimeout = 10 * time.Second

// ErrScanTimeout is returned when a scan does not finish in time
var ErrScanTimeout = errors.New("scan timeout")

// Actions understood by Handle
const (
	ActionScanPage            = "scanPage"
	ActionDownloadResources   = "downloadResources"
	ActionGetDownloadProgress = "getDownloadProgress"
	ActionGetLicenseStatus    = "getLicenseStatus"
	ActionCanDownload         = "canDownload"
	ActionActivateLicense     = "activateLicense"
	ActionStartTrial          = "startTrial"
	ActionGetSettings         = "getSettings"
	ActionSaveSettings        = "saveSettings"
)

// PageFetcher loads the page a scan runs over
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*page.Document, error)
}

// Components are the collaborators a Handler dispatches to
type Components struct {
	Fetcher      PageFetcher
	Scanner      *scanner.Scanner
	Orchestrator *downloader.Orchestrator
	Quota        *quota.Quota
	Settings     *settings.Store
	ScanTimeout  time.Duration
}

// Handler answers action messages. It is safe for concurrent use.
type Handler struct {
	fetcher      PageFetcher
	scanner      *scanner.Scanner
	orchestrator *downloader.Orchestrator
	quota        *quota.Quota
	settings     *settings.Store
	scanTimeout  time.Duration
}

func New(c Components) *Handler {
	timeout := c.ScanTimeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Handler{
		fetcher:      c.Fetcher,
		scanner:      c.Scanner,
		orchestrator: c.Orchestrator,
		quota:        c.Quota,
		settings:     c.Settings,
		scanTimeout:  timeout,
	}
}

// Handle dispatches msg by its action. Failures are reported in the
// Response, never as a Go error.
func (h *Handler) Handle(ctx context.Context, msg Message) Response {
	logger.Debugf("Handling action %q", msg.Action)

	switch msg.Action {
	case ActionScanPage:
		return h.scanPage(ctx, msg.URL)
	case ActionDownloadResources:
		return h.downloadResources(ctx, msg.Resources)
	case ActionGetDownloadProgress:
		return Response{Success: true, Progress: h.orchestrator.Progress().Snapshot()}
	case ActionGetLicenseStatus:
		return h.licenseStatus(ctx)
	case ActionCanDownload:
		decision := h.quota.CanDownload(ctx, msg.Count)
		return Response{Success: true, Decision: &decision}
	case ActionActivateLicense:
		return h.activateLicense(ctx, msg.LicenseKey)
	case ActionStartTrial:
		return h.startTrial(ctx)
	case ActionGetSettings:
		current := h.settings.Load(ctx)
		return Response{Success: true, Settings: &current}
	case ActionSaveSettings:
		return h.saveSettings(ctx, msg.Settings)
	}

	logger.Warningf("Unknown action %q", msg.Action)
	return failure("Unknown action")
}

// Scan fetches pageURL and scans it. The fetch and scan run in their own
// goroutine; when the timeout fires first the result is discarded.
func (h *Handler) Scan(ctx context.Context, pageURL string) ([]types.ResourceDescriptor, error) {
	scanCtx, cancel := context.WithTimeout(ctx, h.scanTimeout)
	defer cancel()

	type result struct {
		resources []types.ResourceDescriptor
		err       error
	}
	done := make(chan result, 1)

	go func() {
		doc, err := h.fetcher.Fetch(scanCtx, pageURL)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{resources: h.scanner.Scan(doc)}
	}()

	select {
	case r := <-done:
		if r.err != nil && h.timedOut(ctx, scanCtx) {
			return nil, fmt.Errorf("%w after %v", ErrScanTimeout, h.scanTimeout)
		}
		return r.resources, r.err
	case <-scanCtx.Done():
		if h.timedOut(ctx, scanCtx) {
			return nil, fmt.Errorf("%w after %v", ErrScanTimeout, h.scanTimeout)
		}
		return nil, ctx.Err()
	}
}

// timedOut reports whether scanCtx ended by its own deadline rather than
// through the caller's ctx
func (h *Handler) timedOut(ctx, scanCtx context.Context) bool {
	return errors.Is(scanCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
}

func (h *Handler) scanPage(ctx context.Context, pageURL string) Response {
	if pageURL == "" {
		return failure("No page URL provided")
	}

	resources, err := h.Scan(ctx, pageURL)
	if err != nil {
		logger.Errorf("Error scanning %s: %v", pageURL, err)
		return failure(err.Error())
	}

	logger.Infof("Found %d resources on %s", len(resources), pageURL)
	return Response{Success: true, Resources: resources}
}

// downloadResources gates the batch on the quota, runs it and records the
// number of successful downloads.
func (h *Handler) downloadResources(ctx context.Context, resources []types.ResourceDescriptor) Response {
	if len(resources) == 0 {
		return Response{Success: true}
	}

	decision := h.quota.CanDownload(ctx, len(resources))
	if !decision.Allowed {
		logger.Warningf("Download of %d files refused: %s", len(resources), decision.Reason)
		resp := failure(denialMessage(decision))
		resp.Decision = &decision
		return resp
	}

	result := h.orchestrator.DownloadAll(ctx, resources)
	logger.Infof("Download complete: %d successful, %d failed out of %d total",
		result.Downloaded, result.Failed, result.Total)

	if result.Downloaded > 0 {
		if _, err := h.quota.RecordDownload(ctx, result.Downloaded); err != nil {
			logger.Warningf("Failed to record downloads: %v", err)
		}
	}

	return Response{
		Success:    true,
		Downloaded: result.Downloaded,
		Failed:     result.Failed,
		Total:      result.Total,
		Items:      result.Items,
	}
}

func (h *Handler) licenseStatus(ctx context.Context) Response {
	state := h.quota.GetStatus(ctx)
	remaining := h.quota.Remaining(ctx)
	engagement := h.quota.EngagementStats(ctx)
	return Response{
		Success:    true,
		License:    &state,
		Remaining:  &remaining,
		Engagement: &engagement,
		Message:    h.quota.StatusMessage(ctx),
	}
}

func (h *Handler) activateLicense(ctx context.Context, key string) Response {
	state, err := h.quota.ActivateLicense(ctx, key)
	switch {
	case errors.Is(err, quota.ErrInvalidLicense):
		return failure("Invalid license key")
	case err != nil:
		logger.Errorf("License activation failed: %v", err)
		return failure(err.Error())
	}
	return Response{Success: true, Message: "License activated successfully!", License: &state}
}

func (h *Handler) startTrial(ctx context.Context) Response {
	state, err := h.quota.StartTrial(ctx)
	switch {
	case errors.Is(err, quota.ErrTrialUsed):
		return failure("Trial already used")
	case err != nil:
		logger.Errorf("Trial start failed: %v", err)
		return failure(err.Error())
	}
	return Response{Success: true, Message: "7-day free trial started!", License: &state}
}

func (h *Handler) saveSettings(ctx context.Context, s *settings.Settings) Response {
	if s == nil {
		return failure("No settings provided")
	}
	if err := h.settings.Save(ctx, *s); err != nil {
		logger.Errorf("Failed to save settings: %v", err)
		return failure(err.Error())
	}
	return Response{Success: true, Settings: s}
}

func denialMessage(d quota.Decision) string {
	switch d.Reason {
	case quota.ReasonBatchLimit:
		return fmt.Sprintf("Free users can download %d files at once. Pro users get unlimited batch downloads!", d.Limit)
	case quota.ReasonDailyLimit:
		return fmt.Sprintf("You've used %d/%d daily downloads. Upgrade to Pro for unlimited downloads!",
			d.Limit-d.Remaining, d.Limit)
	}
	return "Download not allowed"
}

func failure(msg string) Response {
	return Response{Success: false, Error: msg}
}
