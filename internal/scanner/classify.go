package scanner

import (
	"regexp"
	"strings"

	"github.com/deploymenttheory/go-resource-downloader/internal/page"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

// MediaClass is the media category of a page element
type MediaClass int

const (
	ClassUnknown MediaClass = iota
	ClassVideo
	ClassAudio
	ClassImage
	ClassLink
	ClassSubtitle
)

var (
	videoExtensions    = regexp.MustCompile(`^(mp4|webm|ogg|m4v|mov|avi|mkv)$`)
	audioExtensions    = regexp.MustCompile(`^(mp3|wav|ogg|m4a|aac|flac)$`)
	imageExtensions    = regexp.MustCompile(`^(jpe?g|png|gif|webp|avif|svg|bmp|ico)$`)
	subtitleExtensions = regexp.MustCompile(`^(srt|vtt|ass|ssa|sub|sbv|ttml|dfxp)$`)
)

func (c MediaClass) String() string {
	switch c {
	case ClassVideo:
		return "video"
	case ClassAudio:
		return "audio"
	case ClassImage:
		return "image"
	case ClassLink:
		return "link"
	case ClassSubtitle:
		return "subtitle"
	}
	return "unknown"
}

// ResourceType maps the class to a resource type. Unknown maps to link.
func (c MediaClass) ResourceType() types.ResourceType {
	switch c {
	case ClassVideo:
		return types.TypeVideo
	case ClassAudio:
		return types.TypeAudio
	case ClassImage:
		return types.TypeImage
	case ClassSubtitle:
		return types.TypeSubtitle
	}
	return types.TypeLink
}

// ClassifyExtension classifies a bare extension. ogg counts as video.
func ClassifyExtension(ext string) MediaClass {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case ext == "":
		return ClassUnknown
	case videoExtensions.MatchString(ext):
		return ClassVideo
	case audioExtensions.MatchString(ext):
		return ClassAudio
	case subtitleExtensions.MatchString(ext):
		return ClassSubtitle
	case imageExtensions.MatchString(ext):
		return ClassImage
	}
	return ClassUnknown
}

// Classify returns the media class of el. The tag decides for media elements;
// otherwise the extension of rawURL does.
func Classify(el page.Element, rawURL string) MediaClass {
	switch el.Tag() {
	case "video":
		return ClassVideo
	case "audio":
		return ClassAudio
	case "img", "picture":
		return ClassImage
	case "track":
		return ClassSubtitle
	}

	if c := ClassifyExtension(urlutil.Extension(rawURL)); c != ClassUnknown {
		return c
	}
	if el.Tag() == "a" {
		return ClassLink
	}
	return ClassUnknown
}
