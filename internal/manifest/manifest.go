// Package manifest inspects HLS playlists found while scanning a page.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grafov/m3u8"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

// ErrNotHLS is returned for manifests that are not HLS playlists
var ErrNotHLS = errors.New("not an HLS playlist")

type PlaylistType string

const (
	Master PlaylistType = "master"
	Media  PlaylistType = "media"
)

// Variant is one rendition listed in a master playlist
type Variant struct {
	URL        string `json:"url"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// Info summarizes a playlist
type Info struct {
	URL      string       `json:"url"`
	Type     PlaylistType `json:"type"`
	Variants []Variant    `json:"variants,omitempty"`
	Segments int          `json:"segments,omitempty"`
	// Duration is the sum of segment durations in seconds
	Duration  float64 `json:"duration,omitempty"`
	Live      bool    `json:"live,omitempty"`
	Encrypted bool    `json:"encrypted,omitempty"`
}

// Parse decodes a playlist. Relative variant URIs resolve against baseURL.
func Parse(r io.Reader, baseURL string) (Info, error) {
	p, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode playlist: %w", err)
	}

	info := Info{URL: baseURL}
	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		info.Type = Master
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			u, ok := urlutil.Resolve(v.URI, baseURL)
			if !ok {
				u = v.URI
			}
			info.Variants = append(info.Variants, Variant{
				URL:        u,
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		info.Type = Media
		info.Live = !media.Closed
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			info.Segments++
			info.Duration += seg.Duration
			if seg.Key != nil && seg.Key.Method != "" && seg.Key.Method != "NONE" {
				info.Encrypted = true
			}
		}
		if media.Key != nil && media.Key.Method != "" && media.Key.Method != "NONE" {
			info.Encrypted = true
		}
	default:
		return Info{}, fmt.Errorf("unknown playlist type")
	}
	return info, nil
}

// Prober fetches and parses manifests over HTTP
type Prober struct {
	client    *http.Client
	userAgent string
}

// NewProber creates a Prober with the given request timeout
func NewProber(timeout time.Duration, userAgent string) *Prober {
	return &Prober{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Probe downloads and parses the playlist at rawURL. DASH manifests return
// ErrNotHLS.
func (p *Prober) Probe(ctx context.Context, rawURL string) (Info, error) {
	if urlutil.Extension(rawURL) == "mpd" {
		return Info{}, ErrNotHLS
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to build request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	info, err := Parse(resp.Body, rawURL)
	if err != nil {
		return Info{}, err
	}
	logger.Debugf("Probed %s: %s playlist, %d variants, %d segments", rawURL, info.Type, len(info.Variants), info.Segments)
	return info, nil
}
