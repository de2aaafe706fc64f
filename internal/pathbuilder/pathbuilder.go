// Package pathbuilder turns a resource and the download settings into the
// relative path the resource is saved under.
package pathbuilder

import (
	"path"
	"strings"
	"time"

	"github.com/deploymenttheory/go-resource-downloader/internal/filename"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
	"github.com/deploymenttheory/go-resource-downloader/internal/urlutil"
)

// TimestampLayout is the second-precision UTC stamp added to filenames
const TimestampLayout = "2006-01-02T15-04-05"

var typeFolders = map[types.ResourceType]string{
	types.TypeImage:    "images",
	types.TypeVideo:    "videos",
	types.TypeAudio:    "audio",
	types.TypeSubtitle: "subtitles",
}

// Builder computes save paths. The zero value uses the wall clock.
type Builder struct {
	Now func() time.Time
}

func New(now func() time.Time) *Builder {
	return &Builder{Now: now}
}

func (b *Builder) now() time.Time {
	if b == nil || b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Build returns the slash-separated path for resource under s. The result is
// relative to the download root.
func (b *Builder) Build(resource types.ResourceDescriptor, s settings.Settings) string {
	name := resource.Filename
	host := strings.TrimPrefix(urlutil.Hostname(resource.URL), "www.")

	if s.AddWebsiteName && host != "" {
		name = filename.Sanitize(host) + "_" + name
	}

	if s.AddTimestamp {
		stamp := b.now().UTC().Format(TimestampLayout)
		ext := filename.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + stamp + ext
	}

	var folders []string
	folders = append(folders, splitSegments(s.DownloadFolder)...)

	if s.CreateSubfolders {
		folders = append(folders, TypeFolder(resource.Type))
	}

	if s.PreserveStructure && host != "" {
		folders = append(folders, host)
		folders = append(folders, splitSegments(path.Dir(urlutil.Path(resource.URL)))...)
	}

	if len(folders) == 0 {
		return name
	}
	return strings.Join(folders, "/") + "/" + name
}

// TypeFolder returns the subfolder name for a resource type
func TypeFolder(t types.ResourceType) string {
	if folder, ok := typeFolders[t]; ok {
		return folder
	}
	return "files"
}

// splitSegments sanitizes every segment of p and drops empty, "." and ".."
// segments so the result cannot leave the download root.
func splitSegments(p string) []string {
	var segments []string
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, filename.Sanitize(seg))
	}
	return segments
}
