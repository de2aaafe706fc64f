package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-resource-downloader/internal/downloader"
	"github.com/deploymenttheory/go-resource-downloader/internal/page"
	"github.com/deploymenttheory/go-resource-downloader/internal/pathbuilder"
	"github.com/deploymenttheory/go-resource-downloader/internal/quota"
	"github.com/deploymenttheory/go-resource-downloader/internal/scanner"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

var now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func clockNow() time.Time { return now }

const galleryHTML = `<html><body>
<a href="/files/report.pdf">Report</a>
<img src="photo.jpg" alt="Photo">
<video src="clip.mp4"></video>
</body></html>`

type htmlFetcher struct {
	html  string
	block chan struct{}
}

func (f *htmlFetcher) Fetch(ctx context.Context, pageURL string) (*page.Document, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.html == "" {
		return nil, errors.New("connection refused")
	}
	return page.Parse(strings.NewReader(f.html), pageURL)
}

type recordingHost struct {
	mutex    sync.Mutex
	requests []downloader.Request
	fail     map[string]bool
}

func (h *recordingHost) Download(ctx context.Context, req downloader.Request) (downloader.Receipt, error) {
	h.mutex.Lock()
	h.requests = append(h.requests, req)
	h.mutex.Unlock()
	if h.fail[req.URL] {
		return downloader.Receipt{}, errors.New("network error")
	}
	return downloader.Receipt{ID: "dl-" + req.Path, Path: req.Path}, nil
}

type fixture struct {
	handler *Handler
	host    *recordingHost
	fetcher *htmlFetcher
	quota   *quota.Quota
	kv      *storage.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := storage.NewMemoryStore()
	host := &recordingHost{fail: map[string]bool{}}
	fetcher := &htmlFetcher{html: galleryHTML}
	settingsStore := settings.NewStore(kv)
	q := quota.New(kv, clockNow)

	h := New(Components{
		Fetcher:      fetcher,
		Scanner:      scanner.New(clockNow),
		Orchestrator: downloader.NewOrchestrator(host, settingsStore, pathbuilder.New(clockNow), nil),
		Quota:        q,
		Settings:     settingsStore,
		ScanTimeout:  time.Second,
	})
	return &fixture{handler: h, host: host, fetcher: fetcher, quota: q, kv: kv}
}

func resources(n int) []types.ResourceDescriptor {
	out := make([]types.ResourceDescriptor, n)
	for i := range out {
		out[i] = types.ResourceDescriptor{
			URL:       fmt.Sprintf("https://example.com/img%d.png", i+1),
			Type:      types.TypeImage,
			Filename:  fmt.Sprintf("img%d.png", i+1),
			Extension: "png",
		}
	}
	return out
}

func TestScanPage(t *testing.T) {
	f := newFixture(t)

	resp := f.handler.Handle(context.Background(), Message{Action: ActionScanPage, URL: "https://example.com/gallery/"})
	require.True(t, resp.Success, resp.Error)

	urls := make([]string, 0, len(resp.Resources))
	for _, r := range resp.Resources {
		urls = append(urls, r.URL)
	}
	assert.Contains(t, urls, "https://example.com/files/report.pdf")
	assert.Contains(t, urls, "https://example.com/gallery/photo.jpg")
	assert.Contains(t, urls, "https://example.com/gallery/clip.mp4")
}

func TestScanPageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.handler.Handle(ctx, Message{Action: ActionScanPage})
	assert.False(t, resp.Success)
	assert.Equal(t, "No page URL provided", resp.Error)

	f.fetcher.html = ""
	resp = f.handler.Handle(ctx, Message{Action: ActionScanPage, URL: "https://example.com/"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "connection refused")
}

func TestScanTimeoutDiscardsLateResult(t *testing.T) {
	f := newFixture(t)
	f.handler.scanTimeout = 50 * time.Millisecond
	f.fetcher.block = make(chan struct{})
	defer close(f.fetcher.block)

	_, err := f.handler.Scan(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, ErrScanTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.handler.Scan(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadResourcesRecordsSuccesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := resources(3)
	f.host.fail[batch[1].URL] = true

	resp := f.handler.Handle(ctx, Message{Action: ActionDownloadResources, Resources: batch})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 2, resp.Downloaded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, f.host.requests, 3)

	state := f.quota.GetStatus(ctx)
	assert.Equal(t, 2, state.DailyDownloads)
	assert.Equal(t, 2, state.TotalDownloads)

	progress := f.handler.Handle(ctx, Message{Action: ActionGetDownloadProgress})
	require.True(t, progress.Success)
	assert.Len(t, progress.Progress, 3)
}

func TestDownloadResourcesBatchLimit(t *testing.T) {
	f := newFixture(t)

	resp := f.handler.Handle(context.Background(), Message{Action: ActionDownloadResources, Resources: resources(4)})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, quota.ReasonBatchLimit, resp.Decision.Reason)
	assert.Equal(t, "Free users can download 3 files at once. Pro users get unlimited batch downloads!", resp.Error)
	assert.Empty(t, f.host.requests)
}

func TestDownloadResourcesDailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.quota.RecordDownload(ctx, 24)
	require.NoError(t, err)

	resp := f.handler.Handle(ctx, Message{Action: ActionDownloadResources, Resources: resources(2)})
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, quota.ReasonDailyLimit, resp.Decision.Reason)
	assert.Equal(t, 1, resp.Decision.Remaining)
	assert.Equal(t, "You've used 24/25 daily downloads. Upgrade to Pro for unlimited downloads!", resp.Error)
}

func TestDownloadResourcesProIsUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.handler.Handle(ctx, Message{Action: ActionActivateLicense, LicenseKey: "PRO-2025-DOWNLOAD-PREMIUM"})
	require.True(t, resp.Success, resp.Error)

	resp = f.handler.Handle(ctx, Message{Action: ActionDownloadResources, Resources: resources(10)})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 10, resp.Downloaded)
}

func TestEmptyDownloadBatch(t *testing.T) {
	f := newFixture(t)
	resp := f.handler.Handle(context.Background(), Message{Action: ActionDownloadResources})
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Total)
}

func TestLicenseActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.handler.Handle(ctx, Message{Action: ActionGetLicenseStatus})
	require.True(t, resp.Success)
	assert.False(t, resp.License.IsPro)
	assert.Equal(t, "Free: 25/25 downloads today", resp.Message)
	assert.Equal(t, 25, resp.Remaining.Remaining)

	resp = f.handler.Handle(ctx, Message{Action: ActionActivateLicense, LicenseKey: "nope"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid license key", resp.Error)

	resp = f.handler.Handle(ctx, Message{Action: ActionStartTrial})
	require.True(t, resp.Success)
	assert.Equal(t, "7-day free trial started!", resp.Message)
	assert.Equal(t, quota.TrialKey, resp.License.LicenseKey)

	resp = f.handler.Handle(ctx, Message{Action: ActionStartTrial})
	assert.False(t, resp.Success)
	assert.Equal(t, "Trial already used", resp.Error)

	resp = f.handler.Handle(ctx, Message{Action: ActionActivateLicense, LicenseKey: "LIFETIME-ACCESS-2025"})
	require.True(t, resp.Success)
	assert.Equal(t, "License activated successfully!", resp.Message)
	assert.True(t, resp.License.IsPro)
}

func TestCanDownloadAction(t *testing.T) {
	f := newFixture(t)

	resp := f.handler.Handle(context.Background(), Message{Action: ActionCanDownload, Count: 2})
	require.True(t, resp.Success)
	assert.True(t, resp.Decision.Allowed)
	assert.Equal(t, quota.ReasonFree, resp.Decision.Reason)
}

func TestSettingsActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.handler.Handle(ctx, Message{Action: ActionGetSettings})
	require.True(t, resp.Success)
	assert.Equal(t, settings.Defaults(), *resp.Settings)

	resp = f.handler.Handle(ctx, Message{Action: ActionSaveSettings})
	assert.False(t, resp.Success)

	want := settings.Settings{DownloadFolder: "media", CreateSubfolders: true}
	resp = f.handler.Handle(ctx, Message{Action: ActionSaveSettings, Settings: &want})
	require.True(t, resp.Success)

	resp = f.handler.Handle(ctx, Message{Action: ActionGetSettings})
	assert.Equal(t, want, *resp.Settings)

	resp = f.handler.Handle(ctx, Message{Action: ActionDownloadResources, Resources: resources(1)})
	require.True(t, resp.Success)
	require.Len(t, f.host.requests, 1)
	assert.Equal(t, "media/images/img1.png", f.host.requests[0].Path)
	assert.Equal(t, downloader.ConflictOverwrite, f.host.requests[0].Conflict)
}

func TestUnknownAction(t *testing.T) {
	f := newFixture(t)
	resp := f.handler.Handle(context.Background(), Message{Action: "reticulateSplines"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action", resp.Error)
}

func TestServe(t *testing.T) {
	f := newFixture(t)
	in := strings.NewReader(`{"action":"canDownload","count":5}` + "\n\n" +
		`not json` + "\n" +
		`{"action":"getSettings"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, f.handler.Serve(context.Background(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.True(t, first.Success)
	assert.Equal(t, quota.ReasonBatchLimit, first.Decision.Reason)

	var second Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "invalid message")

	assert.Contains(t, lines[2], `"avoidDuplicates":true`)
}

func TestServeReportsZeroTallies(t *testing.T) {
	f := newFixture(t)
	batch := resources(2)
	for _, r := range batch {
		f.host.fail[r.URL] = true
	}

	var in bytes.Buffer
	encoder := json.NewEncoder(&in)
	require.NoError(t, encoder.Encode(Message{Action: ActionDownloadResources, Resources: batch}))
	require.NoError(t, encoder.Encode(Message{Action: ActionDownloadResources}))

	var out bytes.Buffer
	require.NoError(t, f.handler.Serve(context.Background(), &in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &failed))
	assert.Equal(t, true, failed["success"])
	assert.Equal(t, float64(0), failed["downloaded"])
	assert.Equal(t, float64(2), failed["failed"])
	assert.Equal(t, float64(2), failed["total"])
	assert.Contains(t, lines[0], `"progressId":`)
	assert.NotContains(t, lines[0], "_id")

	var empty map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &empty))
	assert.Equal(t, true, empty["success"])
	for _, key := range []string{"downloaded", "failed", "total"} {
		assert.Equal(t, float64(0), empty[key], key)
	}
}
