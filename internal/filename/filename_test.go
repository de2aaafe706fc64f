package filename

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGenerator() *Generator {
	return New(func() time.Time { return fixed })
}

func TestGenerate(t *testing.T) {
	millis := fixed.UnixMilli()
	tests := []struct {
		name  string
		url   string
		label string
		want  string
	}{
		{"plain file", "https://x.com/media/clip.mp4", "", "clip.mp4"},
		{"percent decoded", "https://x.com/a/my%20photo.JPG", "", "my photo.JPG"},
		{"extension from nothing falls back to file", "https://x.com/a/readme", "", "readme.file"},
		{"video keyword in url", "https://x.com/video/stream123", "", "stream123.mp4"},
		{"audio keyword in url", "https://x.com/audio/track01", "", "track01.mp3"},
		{"subtitle keyword in label", "https://x.com/files/abcdef", "English subtitle", "abcdef.srt"},
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "", "youtube_dQw4w9WgXcQ.mp4"},
		{"youtube embed", "https://www.youtube.com/embed/dQw4w9WgXcQ?rel=0", "", "youtube_dQw4w9WgXcQ.mp4"},
		{"youtu.be", "https://youtu.be/dQw4w9WgXcQ", "", "youtube_dQw4w9WgXcQ.mp4"},
		{"vimeo", "https://vimeo.com/76979871", "", "vimeo_76979871.mp4"},
		{"vimeo player", "https://player.vimeo.com/video/76979871", "", "vimeo_76979871.mp4"},
		{"blob", "blob:https://x.com/8c1e-44", "", "media_" + itoa(millis) + ".mp4"},
		{"placeholder uses label", "https://x.com/download", "Annual Report: 2025", "Annual Report_ 2025.file"},
		{"empty segment uses label", "https://x.com/", "Home page video", "Home page video.mp4"},
		{"empty segment and label", "https://x.com/", "", "download_" + itoa(millis) + ".file"},
		{"short segment", "https://x.com/ab", "", "download_" + itoa(millis) + ".file"},
		{"query stripped", "https://x.com/pic.png?w=200", "", "pic.png"},
	}

	g := newTestGenerator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Generate(tt.url, tt.label))
		})
	}
}

func TestGenerateIsSafe(t *testing.T) {
	g := newTestGenerator()
	inputs := []struct{ url, label string }{
		{"https://x.com/a%3Cb%3E%7Cc.png", ""},
		{"https://x.com/" + strings.Repeat("long", 60) + ".jpeg", ""},
		{"https://x.com/", strings.Repeat("label*", 40)},
		{"https://x.com/x", `a<b>c:"d"/e\f|g?h*`},
		{"blob:https://x.com/1", ""},
	}

	for _, in := range inputs {
		name := g.Generate(in.url, in.label)
		assert.LessOrEqual(t, len([]rune(name)), MaxLength, name)
		assert.NotContains(t, name, "/")
		for _, c := range `<>:"/\|?*` {
			assert.NotContains(t, name, string(c), name)
		}
		assert.NotEmpty(t, Ext(name), name)
	}
}

func TestTruncateKeepsExtension(t *testing.T) {
	g := newTestGenerator()
	name := g.Generate("https://x.com/"+strings.Repeat("a", 200)+".webm", "")
	assert.Len(t, name, MaxLength)
	assert.True(t, strings.HasSuffix(name, ".webm"))
}

func TestGenerateOverlongExtension(t *testing.T) {
	g := newTestGenerator()

	assert.Equal(t, "a.bbbbbbbbbbbb.file", g.Generate("https://x.com/a.bbbbbbbbbbbb", ""))

	name := g.Generate("https://x.com/"+strings.Repeat("n", 200)+"."+strings.Repeat("e", 12), "")
	assert.Len(t, name, MaxLength)
	assert.Equal(t, ".file", Ext(name))
	assert.Equal(t, 1, strings.Count(name, ".file"))

	assert.Equal(t, "media_"+itoa(fixed.UnixMilli())+".mp4", g.Generate("blob:https://x.com/a.bbbbbbbbbbbb", ""))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g_h_i", Sanitize(`a<b>c:d"e/f\g|h?i`))
	assert.Equal(t, "fine name.txt", Sanitize("fine name.txt"))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
