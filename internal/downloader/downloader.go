// Package downloader saves discovered resources to disk and runs download
// batches.
package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/deploymenttheory/go-resource-downloader/internal/filename"
	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

// ErrUnsupportedScheme is returned for URLs the downloader cannot fetch, such
// as blob: URLs that only exist inside a browser.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// ConflictPolicy decides what happens when the target file already exists
type ConflictPolicy string

const (
	ConflictUniquify  ConflictPolicy = "uniquify"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// ConflictFor maps the avoid-duplicates setting to a conflict policy
func ConflictFor(avoidDuplicates bool) ConflictPolicy {
	if avoidDuplicates {
		return ConflictUniquify
	}
	return ConflictOverwrite
}

// Request is a single download handed to a HostDownloader
type Request struct {
	URL      string
	Path     string
	Conflict ConflictPolicy
}

// Receipt describes a finished download
type Receipt struct {
	ID        string
	Path      string
	Bytes     int64
	SHA3      string
	MediaType string
}

// HostDownloader is the download service a batch is issued against
type HostDownloader interface {
	Download(ctx context.Context, req Request) (Receipt, error)
}

// Stats holds downloader statistics
type Stats struct {
	FilesDownloaded int
	BytesDownloaded int64
	Errors          int
}

// Options configures an HTTPDownloader
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
	Metrics      *Metrics
}

// HTTPDownloader fetches http(s) resources and writes them under a root
// directory.
type HTTPDownloader struct {
	root      string
	userAgent string
	client    *http.Client
	metrics   *Metrics

	// serializes picking a free name and moving the file into place
	placeMutex sync.Mutex

	stats      Stats
	statsMutex sync.RWMutex
}

// NewHTTPDownloader creates an HTTPDownloader writing below root
func NewHTTPDownloader(root string, opts Options) *HTTPDownloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	maxRedirects := opts.MaxRedirects

	return &HTTPDownloader{
		root:      root,
		userAgent: opts.UserAgent,
		metrics:   opts.Metrics,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Download implements HostDownloader
func (d *HTTPDownloader) Download(ctx context.Context, req Request) (Receipt, error) {
	started := d.metrics.start()

	receipt, reason, err := d.download(ctx, req)
	if err != nil {
		d.metrics.failure(started, reason)
		d.incrementErrors()
		return Receipt{}, err
	}

	d.metrics.success(started, receipt.MediaType, receipt.Bytes)
	d.incrementDownloaded(receipt.Bytes)
	return receipt, nil
}

func (d *HTTPDownloader) download(ctx context.Context, req Request) (Receipt, string, error) {
	if !urlutil.IsHTTP(req.URL) {
		return Receipt{}, "scheme", fmt.Errorf("%w: %s", ErrUnsupportedScheme, req.URL)
	}

	target, err := d.resolveTarget(req.Path)
	if err != nil {
		return Receipt{}, "path", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Receipt{}, "io", fmt.Errorf("failed to create directory: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Receipt{}, "request", fmt.Errorf("failed to build request: %w", err)
	}
	if d.userAgent != "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}

	logger.Debugf("Downloading %s", req.URL)
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return Receipt{}, "network", fmt.Errorf("get request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Receipt{}, "http_status", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	part, err := os.CreateTemp(filepath.Dir(target), ".download-*.part")
	if err != nil {
		return Receipt{}, "io", fmt.Errorf("failed to create file: %w", err)
	}
	partPath := part.Name()

	hash := sha3.New256()
	header := &headerBuffer{}
	written, err := io.Copy(io.MultiWriter(part, hash, header), resp.Body)
	closeErr := part.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return Receipt{}, "io", fmt.Errorf("failed to save file: %w", err)
	}

	final, err := d.place(partPath, target, req.Conflict)
	if err != nil {
		os.Remove(partPath)
		return Receipt{}, "io", err
	}

	receipt := Receipt{
		ID:        uuid.NewString(),
		Path:      final,
		Bytes:     written,
		SHA3:      hex.EncodeToString(hash.Sum(nil)),
		MediaType: DetectMediaType(header.buf, resp.Header.Get("Content-Type")),
	}
	logger.Infof("Saved %s (%d bytes, %s)", final, written, receipt.MediaType)
	return receipt, "", nil
}

// resolveTarget joins the slash-separated relative path onto the root and
// rejects paths that would leave it.
func (d *HTTPDownloader) resolveTarget(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("empty download path")
	}
	root, err := filepath.Abs(d.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download root: %w", err)
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if r, err := filepath.Rel(root, target); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("download path %q escapes the download root", rel)
	}
	return target, nil
}

// place moves the finished file to target, choosing "name (n).ext" when the
// policy is uniquify and target is taken.
func (d *HTTPDownloader) place(partPath, target string, policy ConflictPolicy) (string, error) {
	d.placeMutex.Lock()
	defer d.placeMutex.Unlock()

	final := target
	if policy != ConflictOverwrite {
		final = uniqueName(target)
	}
	if err := os.Rename(partPath, final); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}
	return final, nil
}

func uniqueName(target string) string {
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		return target
	}

	dir, base := filepath.Split(target)
	ext := filename.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// Stats returns the current download statistics
func (d *HTTPDownloader) Stats() Stats {
	d.statsMutex.RLock()
	defer d.statsMutex.RUnlock()
	return d.stats
}

func (d *HTTPDownloader) incrementDownloaded(bytes int64) {
	d.statsMutex.Lock()
	d.stats.FilesDownloaded++
	d.stats.BytesDownloaded += bytes
	d.statsMutex.Unlock()
}

func (d *HTTPDownloader) incrementErrors() {
	d.statsMutex.Lock()
	d.stats.Errors++
	d.statsMutex.Unlock()
}
