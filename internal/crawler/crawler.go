// Package crawler fetches pages and turns them into snapshots for scanning.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/page"
)

// Stats holds fetcher statistics
type Stats struct {
	PagesFetched int
	BytesFetched int64
	Errors       int
}

// Fetcher loads a single page with colly and parses it
type Fetcher struct {
	userAgent string
	timeout   time.Duration

	stats      Stats
	statsMutex sync.RWMutex
}

// New creates a Fetcher. timeout bounds each request.
func New(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch downloads pageURL and returns its snapshot. Relative references in the
// snapshot resolve against the URL colly reports for the response.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*page.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	if f.userAgent != "" {
		c.UserAgent = f.userAgent
	}
	c.SetRequestTimeout(f.requestTimeout(ctx))

	var (
		doc      *page.Document
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		logger.Infof("Visiting %s", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		logger.Debugf("Got response from %s: status=%d, length=%d",
			r.Request.URL, r.StatusCode, len(r.Body))

		// Print first 200 chars of body in debug mode
		if logger.Enabled(logger.LevelDebug) {
			preview := string(r.Body)
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			logger.Debugf("Response preview: %s", preview)
		}

		doc, fetchErr = page.Parse(bytes.NewReader(r.Body), r.Request.URL.String())
		f.recordFetch(len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Warningf("Error on %s: %v", r.Request.URL, err)
		fetchErr = fmt.Errorf("failed to fetch %s: %w", r.Request.URL, err)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	if fetchErr != nil {
		f.recordError()
		return nil, fetchErr
	}
	if doc == nil {
		f.recordError()
		return nil, fmt.Errorf("no response from %s", pageURL)
	}
	return doc, nil
}

// requestTimeout is the configured timeout, shortened to the context deadline
func (f *Fetcher) requestTimeout(ctx context.Context) time.Duration {
	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout
}

// Stats returns the current fetcher statistics
func (f *Fetcher) Stats() Stats {
	f.statsMutex.RLock()
	defer f.statsMutex.RUnlock()
	return f.stats
}

func (f *Fetcher) recordFetch(n int) {
	f.statsMutex.Lock()
	f.stats.PagesFetched++
	f.stats.BytesFetched += int64(n)
	f.statsMutex.Unlock()
}

func (f *Fetcher) recordError() {
	f.statsMutex.Lock()
	f.stats.Errors++
	f.statsMutex.Unlock()
}
