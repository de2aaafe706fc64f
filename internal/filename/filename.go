// Package filename derives safe, extension-complete filenames for discovered
// resources.
package filename

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

const (
	// MaxLength is the longest filename Generate returns, in characters.
	MaxLength = 150

	minSegmentLength = 3
	fallbackExt      = "file"
)

var (
	placeholders = map[string]bool{
		"download": true,
		"watch":    true,
		"embed":    true,
		"index":    true,
		"video":    true,
		"player":   true,
	}

	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	hasExtension = regexp.MustCompile(`\.[A-Za-z0-9]{1,10}$`)
	validExt     = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)

	youtubeID = regexp.MustCompile(`(?:v=|embed/|youtu\.be/)([A-Za-z0-9_-]{11})`)
	vimeoID   = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)

	videoHint    = regexp.MustCompile(`(?i)video|\.(mp4|webm|avi|mov|mkv|m4v|3gp|flv|wmv)`)
	audioHint    = regexp.MustCompile(`(?i)audio|\.(mp3|wav|ogg|m4a|aac|flac|wma)`)
	subtitleHint = regexp.MustCompile(`(?i)subtitle|caption|\.(srt|vtt|ass|ssa|sub|sbv|ttml|dfxp)\b`)
)

// Generator builds filenames. The zero value uses the wall clock.
type Generator struct {
	Now func() time.Time
}

// New returns a Generator driven by now, or the wall clock when now is nil.
func New(now func() time.Time) *Generator {
	return &Generator{Now: now}
}

func (g *Generator) now() time.Time {
	if g == nil || g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Generate derives a filename for rawURL, falling back to label when the URL
// carries no usable name.
func (g *Generator) Generate(rawURL, label string) string {
	name := lastSegment(rawURL)

	switch {
	case isYouTube(rawURL) && youtubeID.MatchString(rawURL):
		name = "youtube_" + youtubeID.FindStringSubmatch(rawURL)[1] + ".mp4"
	case strings.Contains(rawURL, "vimeo.com") && vimeoID.MatchString(rawURL):
		name = "vimeo_" + vimeoID.FindStringSubmatch(rawURL)[1] + ".mp4"
	case urlutil.IsBlob(rawURL):
		ext := urlExtension(rawURL)
		if ext == "" {
			ext = "mp4"
		}
		name = fmt.Sprintf("media_%d.%s", g.now().UnixMilli(), ext)
	case weakSegment(name):
		name = Sanitize(strings.TrimSpace(label))
		if name == "" {
			name = fmt.Sprintf("download_%d", g.now().UnixMilli())
		}
	}

	if !hasExtension.MatchString(name) {
		name = name + "." + inferExtension(rawURL, label)
	}

	return truncate(Sanitize(name), MaxLength)
}

// Sanitize replaces characters that are illegal in filenames with underscores.
func Sanitize(s string) string {
	return illegalChars.ReplaceAllString(s, "_")
}

// Ext returns the extension of name including the dot, or "".
func Ext(name string) string {
	if m := hasExtension.FindString(name); m != "" {
		return m
	}
	return ""
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := u.Path
	if seg == "" || strings.HasSuffix(seg, "/") {
		return ""
	}
	seg = path.Base(seg)
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	seg, _, _ = strings.Cut(seg, "?")
	return seg
}

func weakSegment(seg string) bool {
	if len([]rune(seg)) < minSegmentLength {
		return true
	}
	return placeholders[strings.ToLower(seg)]
}

func isYouTube(rawURL string) bool {
	return strings.Contains(rawURL, "youtube.com") || strings.Contains(rawURL, "youtu.be")
}

// urlExtension returns the URL's extension when it is short enough to count as
// one, or "".
func urlExtension(rawURL string) string {
	if ext := urlutil.Extension(rawURL); validExt.MatchString(ext) {
		return ext
	}
	return ""
}

func inferExtension(rawURL, label string) string {
	if ext := urlExtension(rawURL); ext != "" {
		return ext
	}
	hint := rawURL + " " + label
	switch {
	case videoHint.MatchString(hint):
		return "mp4"
	case audioHint.MatchString(hint):
		return "mp3"
	case subtitleHint.MatchString(hint):
		return "srt"
	}
	return fallbackExt
}

// truncate shortens the stem so the whole name fits in max characters while
// keeping the extension.
func truncate(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	ext := []rune(Ext(name))
	stem := runes[:len(runes)-len(ext)]
	keep := max - len(ext)
	if keep < 1 {
		return string(runes[:max])
	}
	return string(stem[:keep]) + string(ext)
}
