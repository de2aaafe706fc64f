// Package report reads and writes scan results as JSON, optionally gzip or
// zstd compressed.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/deploymenttheory/go-resource-downloader/internal/manifest"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

// Compression of a report file
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

// Report is the saved result of one page scan
type Report struct {
	PageURL   string                     `json:"pageUrl"`
	ScannedAt time.Time                  `json:"scannedAt"`
	Resources []types.ResourceDescriptor `json:"resources"`
	Manifests []manifest.Info            `json:"manifests,omitempty"`
}

// CompressionFor picks the compression from the file extension
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	}
	return None
}

// Encode writes r to w as indented JSON
func Encode(w io.Writer, c Compression, r Report) error {
	var (
		out    io.Writer = w
		closer io.Closer
	)

	switch c {
	case Gzip:
		gz := gzip.NewWriter(w)
		out, closer = gz, gz
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		out, closer = zw, zw
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		if closer != nil {
			closer.Close()
		}
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

// Decode reads a report written by Encode
func Decode(rd io.Reader, c Compression) (Report, error) {
	in := rd
	switch c {
	case Gzip:
		gz, err := gzip.NewReader(rd)
		if err != nil {
			return Report{}, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		in = gz
	case Zstd:
		zr, err := zstd.NewReader(rd)
		if err != nil {
			return Report{}, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		in = zr
	}

	var r Report
	if err := json.NewDecoder(in).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}

// WriteFile saves r to path, compressed according to its extension
func WriteFile(path string, r Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Encode(file, CompressionFor(path), r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadFile loads a report saved by WriteFile
func ReadFile(path string) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open report: %w", err)
	}
	defer file.Close()
	return Decode(file, CompressionFor(path))
}
