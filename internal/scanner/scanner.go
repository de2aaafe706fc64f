// Package scanner discovers downloadable resources in a page snapshot.
package scanner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/deploymenttheory/go-resource-downloader/internal/filename"
	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/page"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

var (
	youtubeEmbedID = regexp.MustCompile(`(?:youtube\.com/embed/|youtu\.be/)([A-Za-z0-9_-]{11})`)
	youtubeVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoEmbedID   = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)
	cssURL         = regexp.MustCompile(`url\(\s*['"]?([^'"()]+?)['"]?\s*\)`)

	subtitleURL  = regexp.MustCompile(`(?i)\.(srt|vtt|ass|ssa|sub|sbv|ttml|dfxp)(?:$|[?#])`)
	subtitleText = regexp.MustCompile(`(?i)\.(srt|vtt|ass|ssa|sub|sbv|ttml|dfxp)\b|\b(subtitles?|captions?|sub)\b`)

	excludedSchemes = []string{"javascript:", "mailto:", "tel:"}

	lazyImageAttrs   = []string{"data-src", "data-lazy", "data-original"}
	videoSourceAttrs = []string{"src", "data-src", "data-video", "data-url"}
	audioSourceAttrs = []string{"src", "data-src", "data-audio", "data-url"}
	playerAttrs      = []string{"data-video-url", "data-src", "data-source", "data-url"}
	manifestAttrs    = []string{"src", "data-src", "data-url", "href"}
	subtitleAttrs    = []string{"data-subtitle", "data-caption", "data-srt"}

	playerSelectors = []string{
		`[data-video-url]`,
		`[data-src*=".mp4"]`,
		`[data-src*=".webm"]`,
		`[data-src*=".ogg"]`,
		`[data-src*=".m4v"]`,
		`[data-src*=".mov"]`,
		`[data-source]`,
		`.video-player`,
		`.media-player`,
	}
)

// Scanner applies the per-element discovery rules to a page snapshot
type Scanner struct {
	names *filename.Generator
	now   func() time.Time
}

// New creates a Scanner. now drives the timestamp-based names of blob
// resources; nil means the wall clock.
func New(now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{
		names: filename.New(now),
		now:   now,
	}
}

// Scan walks the snapshot and returns every discovered resource once, in
// order of first discovery. Descriptors are deduplicated by full equality.
func (s *Scanner) Scan(snap page.Snapshot) []types.ResourceDescriptor {
	start := time.Now()
	set := newResourceSet()
	base := snap.URL()

	s.scanAnchors(snap, base, set)
	s.scanImages(snap, base, set)
	s.scanMedia(snap, base, set, "video", videoSourceAttrs, types.TypeVideo, "Video")
	s.scanMedia(snap, base, set, "audio", audioSourceAttrs, types.TypeAudio, "Audio")
	s.scanYouTube(snap, base, set)
	s.scanVimeo(snap, base, set)
	s.scanTwitch(snap, base, set)
	s.scanBlobMedia(snap, set)
	s.scanEmbeddedPlayers(snap, base, set)
	s.scanStreamingManifests(snap, base, set)
	s.scanSourceSets(snap, base, set)
	s.scanBackgrounds(snap, base, set)
	s.scanTracks(snap, base, set)
	s.scanSubtitleLinks(snap, base, set)
	s.scanSubtitleData(snap, base, set)

	logger.Debugf("Scanned %s in %v: %d resources", base, time.Since(start), set.Len())
	return set.Items()
}

func (s *Scanner) scanAnchors(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("a[href]") {
		u, ok := resolveHTTP(el.Attr("href"), base, false)
		if !ok {
			continue
		}
		text := firstNonEmpty(el.Text(), el.Attr("title"), "Link")
		set.Add(types.ResourceDescriptor{
			URL:       u,
			Type:      types.TypeLink,
			Filename:  s.names.Generate(u, text),
			Element:   types.ElementAnchor,
			Text:      text,
			Extension: urlutil.Extension(u),
		})
	}
}

func (s *Scanner) scanImages(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("img") {
		if u, ok := resolveHTTP(el.Attr("src"), base, false); ok {
			text := firstNonEmpty(el.Attr("alt"), el.Attr("title"), "Image")
			set.Add(s.image(u, types.ElementImage, text))
		}

		lazyText := firstNonEmpty(el.Attr("alt"), el.Attr("title"), "Lazy Image")
		for _, attr := range lazyImageAttrs {
			if u, ok := resolveHTTP(el.Attr(attr), base, false); ok {
				set.Add(s.image(u, types.ElementImage, lazyText))
			}
		}
		for _, candidate := range parseSrcset(el.Attr("data-srcset")) {
			if u, ok := resolveHTTP(candidate, base, false); ok {
				set.Add(s.image(u, types.ElementImage, lazyText))
			}
		}
	}
}

func (s *Scanner) scanMedia(snap page.Snapshot, base string, set *resourceSet, tag string, attrs []string, kind types.ResourceType, fallback string) {
	for _, el := range snap.Query(tag + ", " + tag + " source") {
		text := firstNonEmpty(el.Attr("title"), el.Attr("alt"), fallback)
		for _, attr := range attrs {
			u, ok := resolveHTTP(el.Attr(attr), base, true)
			if !ok {
				continue
			}
			set.Add(types.ResourceDescriptor{
				URL:       u,
				Type:      kind,
				Filename:  s.names.Generate(u, text),
				Element:   tag,
				Text:      text,
				Extension: urlutil.Extension(u),
			})
		}
	}
}

func (s *Scanner) scanYouTube(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query(`iframe[src*="youtube.com"], iframe[src*="youtu.be"]`) {
		src, ok := resolveHTTP(el.Attr("src"), base, false)
		if !ok {
			continue
		}
		m := youtubeEmbedID.FindStringSubmatch(src)
		if m == nil {
			continue
		}
		set.Add(youtubeResource(m[1], types.ElementYouTubeEmbed, firstNonEmpty(el.Attr("title"), "YouTube Video")))
	}

	for _, el := range snap.Query("[data-video-id]") {
		id := el.Attr("data-video-id")
		if !youtubeVideoID.MatchString(id) {
			continue
		}
		text := firstNonEmpty(el.Attr("title"), el.Attr("aria-label"), "YouTube Video")
		set.Add(youtubeResource(id, types.ElementYouTubePlayer, text))
	}
}

func youtubeResource(id, element, text string) types.ResourceDescriptor {
	return types.ResourceDescriptor{
		URL:       "https://www.youtube.com/watch?v=" + id,
		Type:      types.TypeVideo,
		Filename:  "youtube_video_" + id + ".mp4",
		Element:   element,
		Text:      text,
		Extension: "mp4",
	}
}

func (s *Scanner) scanVimeo(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query(`iframe[src*="vimeo.com"]`) {
		src, ok := resolveHTTP(el.Attr("src"), base, false)
		if !ok {
			continue
		}
		m := vimeoEmbedID.FindStringSubmatch(src)
		if m == nil {
			continue
		}
		set.Add(types.ResourceDescriptor{
			URL:       "https://vimeo.com/" + m[1],
			Type:      types.TypeVideo,
			Filename:  "vimeo_video_" + m[1] + ".mp4",
			Element:   types.ElementVimeoEmbed,
			Text:      firstNonEmpty(el.Attr("title"), "Vimeo Video"),
			Extension: "mp4",
		})
	}
}

func (s *Scanner) scanTwitch(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query(`iframe[src*="twitch.tv"]`) {
		src, ok := resolveHTTP(el.Attr("src"), base, false)
		if !ok {
			continue
		}
		set.Add(types.ResourceDescriptor{
			URL:       src,
			Type:      types.TypeVideo,
			Filename:  "twitch_stream.mp4",
			Element:   types.ElementTwitchEmbed,
			Text:      firstNonEmpty(el.Attr("title"), "Twitch Stream"),
			Extension: "mp4",
		})
	}
}

func (s *Scanner) scanBlobMedia(snap page.Snapshot, set *resourceSet) {
	for _, el := range snap.Query("video, audio") {
		src := strings.TrimSpace(el.Attr("src"))
		if !urlutil.IsBlob(src) {
			continue
		}
		class := Classify(el, src)
		ext := "mp3"
		if class == ClassVideo {
			ext = "mp4"
		}
		tag := el.Tag()
		set.Add(types.ResourceDescriptor{
			URL:       src,
			Type:      class.ResourceType(),
			Filename:  fmt.Sprintf("%s_%d.%s", tag, s.now().UnixMilli(), ext),
			Element:   types.ElementBlobMedia,
			Text:      firstNonEmpty(el.Attr("title"), strings.ToUpper(tag)+" (blob)"),
			Extension: ext,
		})
	}
}

func (s *Scanner) scanEmbeddedPlayers(snap page.Snapshot, base string, set *resourceSet) {
	for _, selector := range playerSelectors {
		for _, el := range snap.Query(selector) {
			for _, attr := range playerAttrs {
				u, ok := resolveHTTP(el.Attr(attr), base, true)
				if !ok {
					continue
				}
				ext := urlutil.Extension(u)
				class := ClassifyExtension(ext)
				if class != ClassVideo && class != ClassAudio {
					continue
				}
				label := "Audio Player"
				if class == ClassVideo {
					label = "Video Player"
				}
				text := firstNonEmpty(el.Attr("title"), el.Attr("alt"), label)
				set.Add(types.ResourceDescriptor{
					URL:       u,
					Type:      class.ResourceType(),
					Filename:  s.names.Generate(u, text),
					Element:   types.ElementEmbeddedPlayer,
					Text:      text,
					Extension: ext,
				})
			}
		}
	}
}

func (s *Scanner) scanStreamingManifests(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("*") {
		for _, attr := range manifestAttrs {
			raw := el.Attr(attr)
			isHLS := strings.Contains(raw, ".m3u8")
			if !isHLS && !strings.Contains(raw, ".mpd") {
				continue
			}
			u, ok := resolveHTTP(raw, base, false)
			if !ok {
				continue
			}
			ext, text := "mpd", "Streaming DASH Manifest"
			if isHLS {
				ext, text = "m3u8", "Streaming HLS Manifest"
			}
			set.Add(types.ResourceDescriptor{
				URL:       u,
				Type:      types.TypeVideo,
				Filename:  s.names.Generate(u, text),
				Element:   types.ElementStreamingManifest,
				Text:      text,
				Extension: ext,
			})
		}
	}
}

func (s *Scanner) scanSourceSets(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("source[srcset]") {
		for _, candidate := range parseSrcset(el.Attr("srcset")) {
			if u, ok := resolveHTTP(candidate, base, false); ok {
				set.Add(s.image(u, types.ElementSource, "Source Image"))
			}
		}
	}
}

func (s *Scanner) scanBackgrounds(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("*") {
		bg := el.Style("background-image")
		if bg == "" || bg == "none" {
			continue
		}
		for _, m := range cssURL.FindAllStringSubmatch(bg, -1) {
			if u, ok := resolveHTTP(m[1], base, false); ok {
				set.Add(s.image(u, types.ElementCSSBackground, "Background Image"))
			}
		}
	}
}

func (s *Scanner) scanTracks(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("track[src]") {
		u, ok := resolveHTTP(el.Attr("src"), base, false)
		if !ok {
			continue
		}
		label := firstNonEmpty(el.Attr("label"), el.Attr("srclang"), "Subtitle Track")
		text := label
		if kind := el.Attr("kind"); kind != "" {
			text = fmt.Sprintf("%s (%s)", label, kind)
		}
		set.Add(s.subtitle(u, types.ElementTrack, label, text))
	}
}

func (s *Scanner) scanSubtitleLinks(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("a[href]") {
		u, ok := resolveHTTP(el.Attr("href"), base, false)
		if !ok {
			continue
		}
		text, title := el.Text(), el.Attr("title")
		if !subtitleURL.MatchString(u) && !subtitleText.MatchString(text) && !subtitleText.MatchString(title) {
			continue
		}
		label := firstNonEmpty(text, title, "Subtitle")
		set.Add(s.subtitle(u, types.ElementSubtitleLink, label, label))
	}
}

func (s *Scanner) scanSubtitleData(snap page.Snapshot, base string, set *resourceSet) {
	for _, el := range snap.Query("[data-subtitle], [data-caption], [data-srt]") {
		label := firstNonEmpty(el.Attr("title"), "Subtitle")
		for _, attr := range subtitleAttrs {
			if u, ok := resolveHTTP(el.Attr(attr), base, false); ok {
				set.Add(s.subtitle(u, types.ElementSubtitleData, label, label))
			}
		}
	}
}

func (s *Scanner) image(u, element, text string) types.ResourceDescriptor {
	return types.ResourceDescriptor{
		URL:       u,
		Type:      types.TypeImage,
		Filename:  s.names.Generate(u, text),
		Element:   element,
		Text:      text,
		Extension: urlutil.Extension(u),
	}
}

// subtitle builds a subtitle descriptor. srt stands in when the URL carries no
// subtitle extension.
func (s *Scanner) subtitle(u, element, label, text string) types.ResourceDescriptor {
	ext := urlutil.Extension(u)
	if ClassifyExtension(ext) != ClassSubtitle {
		ext = "srt"
	}
	name := s.names.Generate(u, label)
	if ClassifyExtension(filename.Ext(name)) == ClassUnknown {
		name = strings.TrimSuffix(name, filename.Ext(name)) + "." + ext
	}
	return types.ResourceDescriptor{
		URL:       u,
		Type:      types.TypeSubtitle,
		Filename:  name,
		Element:   element,
		Text:      text,
		Extension: ext,
	}
}

// resolveHTTP resolves raw against base and accepts only absolute http(s)
// results, plus blob URLs when allowBlob is set.
func resolveHTTP(raw, base string, allowBlob bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range excludedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	u, ok := urlutil.Resolve(raw, base)
	if !ok {
		return "", false
	}
	if urlutil.IsHTTP(u) || (allowBlob && urlutil.IsBlob(u)) {
		return u, true
	}
	return "", false
}

// parseSrcset returns the URL token of every comma-separated candidate.
func parseSrcset(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type resourceSet struct {
	seen  map[types.ResourceDescriptor]bool
	items []types.ResourceDescriptor
}

func newResourceSet() *resourceSet {
	return &resourceSet{seen: make(map[types.ResourceDescriptor]bool)}
}

func (rs *resourceSet) Add(r types.ResourceDescriptor) {
	if rs.seen[r] {
		return
	}
	rs.seen[r] = true
	rs.items = append(rs.items, r)
}

func (rs *resourceSet) Len() int {
	return len(rs.items)
}

func (rs *resourceSet) Items() []types.ResourceDescriptor {
	return rs.items
}
