package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

type fakeElement struct {
	tag   string
	attrs map[string]string
}

func (e fakeElement) Tag() string             { return e.tag }
func (e fakeElement) Attr(name string) string { return e.attrs[name] }
func (e fakeElement) Text() string            { return "" }
func (e fakeElement) Style(string) string     { return "" }

func TestClassify(t *testing.T) {
	tests := []struct {
		tag  string
		url  string
		want MediaClass
	}{
		{"video", "blob:https://x.com/1", ClassVideo},
		{"audio", "https://x.com/a", ClassAudio},
		{"img", "https://x.com/a", ClassImage},
		{"track", "https://x.com/a", ClassSubtitle},
		{"div", "https://x.com/a.webm", ClassVideo},
		{"div", "https://x.com/a.ogg", ClassVideo},
		{"div", "https://x.com/a.flac", ClassAudio},
		{"a", "https://x.com/a.vtt", ClassSubtitle},
		{"a", "https://x.com/a.zip", ClassLink},
		{"span", "https://x.com/a.zip", ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.tag+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(fakeElement{tag: tt.tag}, tt.url))
		})
	}
}

func TestMediaClassResourceType(t *testing.T) {
	assert.Equal(t, types.TypeVideo, ClassVideo.ResourceType())
	assert.Equal(t, types.TypeSubtitle, ClassSubtitle.ResourceType())
	assert.Equal(t, types.TypeLink, ClassUnknown.ResourceType())
	assert.Equal(t, "audio", ClassAudio.String())
}
