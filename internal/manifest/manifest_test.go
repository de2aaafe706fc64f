package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720
https://cdn.example.com/hi/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.5,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXTINF:4.5,
seg2.ts
#EXT-X-ENDLIST
`

func TestParseMaster(t *testing.T) {
	info, err := Parse(strings.NewReader(masterPlaylist), "https://example.com/live/master.m3u8")
	require.NoError(t, err)

	assert.Equal(t, Master, info.Type)
	require.Len(t, info.Variants, 2)
	assert.Equal(t, Variant{
		URL:        "https://example.com/live/low/index.m3u8",
		Bandwidth:  1280000,
		Resolution: "640x360",
		Codecs:     "avc1.4d401e,mp4a.40.2",
	}, info.Variants[0])
	assert.Equal(t, "https://cdn.example.com/hi/index.m3u8", info.Variants[1].URL)
}

func TestParseMedia(t *testing.T) {
	info, err := Parse(strings.NewReader(mediaPlaylist), "https://example.com/vod/index.m3u8")
	require.NoError(t, err)

	assert.Equal(t, Media, info.Type)
	assert.Equal(t, 3, info.Segments)
	assert.InDelta(t, 24.0, info.Duration, 0.001)
	assert.False(t, info.Live)
	assert.False(t, info.Encrypted)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(strings.NewReader("<html></html>"), "https://example.com/x.m3u8")
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			w.Write([]byte(masterPlaylist))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProber(5*time.Second, "probe-test")
	ctx := context.Background()

	info, err := p.Probe(ctx, srv.URL+"/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, Master, info.Type)
	assert.Equal(t, srv.URL+"/low/index.m3u8", info.Variants[0].URL)

	_, err = p.Probe(ctx, srv.URL+"/gone.m3u8")
	assert.ErrorContains(t, err, "404")

	_, err = p.Probe(ctx, srv.URL+"/stream.mpd")
	assert.ErrorIs(t, err, ErrNotHLS)
}
