package downloader

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/pathbuilder"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

// SettingsSource supplies the settings read before every batch
type SettingsSource interface {
	Load(ctx context.Context) settings.Settings
}

// Orchestrator issues one download per resource and joins on all of them
type Orchestrator struct {
	host     HostDownloader
	settings SettingsSource
	paths    *pathbuilder.Builder
	progress *Progress
}

// NewOrchestrator creates an Orchestrator. progress may be shared with
// readers that poll it while a batch runs.
func NewOrchestrator(host HostDownloader, settings SettingsSource, paths *pathbuilder.Builder, progress *Progress) *Orchestrator {
	if progress == nil {
		progress = NewProgress()
	}
	return &Orchestrator{
		host:     host,
		settings: settings,
		paths:    paths,
		progress: progress,
	}
}

// Progress returns the progress map of the current batch
func (o *Orchestrator) Progress() *Progress {
	return o.progress
}

// DownloadAll downloads every resource concurrently and returns once each
// has settled. A failed item never cancels or blocks the others and is not
// retried.
func (o *Orchestrator) DownloadAll(ctx context.Context, resources []types.ResourceDescriptor) types.BatchResult {
	current := o.settings.Load(ctx)
	conflict := ConflictFor(current.AvoidDuplicates)

	o.progress.Reset()

	items := make([]types.ItemOutcome, len(resources))
	var wg sync.WaitGroup

	for i, resource := range resources {
		id := uuid.NewString()
		path := o.paths.Build(resource, current)

		items[i] = types.ItemOutcome{ProgressID: id, URL: resource.URL, Path: path}
		o.progress.Set(id, Entry{Status: StatusStarting, Filename: resource.Filename, URL: resource.URL})

		wg.Add(1)
		go func(i int, id string, req Request) {
			defer wg.Done()

			receipt, err := o.host.Download(ctx, req)
			if err != nil {
				logger.Warningf("Failed to download %s: %v", req.URL, err)
				items[i].Error = err.Error()
				o.progress.Update(id, func(e *Entry) {
					e.Status = StatusFailed
					e.Error = err.Error()
				})
				return
			}

			items[i].DownloadID = receipt.ID
			items[i].Bytes = receipt.Bytes
			items[i].SHA3 = receipt.SHA3
			items[i].MediaType = receipt.MediaType
			if receipt.Path != "" {
				items[i].Path = receipt.Path
			}
			o.progress.Update(id, func(e *Entry) {
				e.Status = StatusCompleted
				e.DownloadID = receipt.ID
			})
		}(i, id, Request{URL: resource.URL, Path: path, Conflict: conflict})
	}

	wg.Wait()

	result := types.BatchResult{Total: len(resources), Items: items}
	for _, item := range items {
		if item.Succeeded() {
			result.Downloaded++
		} else {
			result.Failed++
		}
	}

	logger.Infof("Batch finished: %d downloaded, %d failed, %d total", result.Downloaded, result.Failed, result.Total)
	return result
}
