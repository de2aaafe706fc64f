package downloader

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
)

// sniffLen is how many leading bytes are kept for detection
const sniffLen = 512

// FileSignature is a magic-byte pattern at a fixed offset
type FileSignature struct {
	Name      string
	Offset    int
	Magic     []byte
	MediaType string
}

// REF: https://en.wikipedia.org/wiki/List_of_file_signatures
var knownSignatures = []FileSignature{
	// Video
	{Name: "MP4/QuickTime", Offset: 4, Magic: []byte("ftyp"), MediaType: "video/mp4"},
	{Name: "Matroska/WebM", Magic: []byte{0x1A, 0x45, 0xDF, 0xA3}, MediaType: "video/webm"},
	{Name: "AVI", Offset: 8, Magic: []byte("AVI "), MediaType: "video/x-msvideo"},
	{Name: "Ogg", Magic: []byte("OggS"), MediaType: "application/ogg"},

	// Audio
	{Name: "MP3 with ID3", Magic: []byte("ID3"), MediaType: "audio/mpeg"},
	{Name: "MP3 frame", Magic: []byte{0xFF, 0xFB}, MediaType: "audio/mpeg"},
	{Name: "FLAC", Magic: []byte("fLaC"), MediaType: "audio/flac"},
	{Name: "WAV", Offset: 8, Magic: []byte("WAVE"), MediaType: "audio/wav"},

	// Images
	{Name: "PNG", Magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, MediaType: "image/png"},
	{Name: "JPEG", Magic: []byte{0xFF, 0xD8, 0xFF}, MediaType: "image/jpeg"},
	{Name: "GIF", Magic: []byte("GIF8"), MediaType: "image/gif"},
	{Name: "WebP", Offset: 8, Magic: []byte("WEBP"), MediaType: "image/webp"},

	// Text formats
	{Name: "WebVTT", Magic: []byte("WEBVTT"), MediaType: "text/vtt"},
	{Name: "HLS playlist", Magic: []byte("#EXTM3U"), MediaType: "application/vnd.apple.mpegurl"},

	// Documents and archives
	{Name: "PDF", Magic: []byte("%PDF"), MediaType: "application/pdf"},
	{Name: "ZIP Archive", Magic: []byte{0x50, 0x4B, 0x03, 0x04}, MediaType: "application/zip"},
}

// DetectMediaType identifies the media type of a downloaded file from its
// leading bytes, then the server's Content-Type, then content sniffing.
func DetectMediaType(header []byte, contentType string) string {
	for _, sig := range knownSignatures {
		end := sig.Offset + len(sig.Magic)
		if len(header) >= end && bytes.Equal(header[sig.Offset:end], sig.Magic) {
			return sig.MediaType
		}
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil &&
			mediaType != "application/octet-stream" {
			return strings.ToLower(mediaType)
		}
	}

	if len(header) == 0 {
		return "application/octet-stream"
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(header))
	return mediaType
}

// headerBuffer keeps the first sniffLen bytes written to it
type headerBuffer struct {
	buf []byte
}

func (h *headerBuffer) Write(p []byte) (int, error) {
	if room := sniffLen - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}
