package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-resource-downloader/internal/downloader"
	"github.com/deploymenttheory/go-resource-downloader/internal/quota"
	"github.com/deploymenttheory/go-resource-downloader/internal/settings"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

// Message is a request to the handler. Which fields are read depends on
// Action.
type Message struct {
	Action     string                     `json:"action"`
	URL        string                     `json:"url,omitempty"`
	Resources  []types.ResourceDescriptor `json:"resources,omitempty"`
	Count      int                        `json:"count,omitempty"`
	LicenseKey string                     `json:"licenseKey,omitempty"`
	Settings   *settings.Settings         `json:"settings,omitempty"`
}

// Response is the answer to a Message
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// scanPage
	Resources []types.ResourceDescriptor `json:"resources,omitempty"`

	// downloadResources
	Downloaded int                 `json:"downloaded"`
	Failed     int                 `json:"failed"`
	Total      int                 `json:"total"`
	Items      []types.ItemOutcome `json:"items,omitempty"`

	// getDownloadProgress
	Progress map[string]downloader.Entry `json:"progress,omitempty"`

	// license and quota
	License    *quota.State      `json:"license,omitempty"`
	Remaining  *quota.Remaining  `json:"remaining,omitempty"`
	Engagement *quota.Engagement `json:"engagement,omitempty"`
	Decision   *quota.Decision   `json:"decision,omitempty"`

	Settings *settings.Settings `json:"settings,omitempty"`
}

// Serve reads newline-delimited JSON messages from r and writes one JSON
// response line per message to w until r is exhausted or ctx is done. A line
// that is not valid JSON is answered with an error response.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	encoder := json.NewEncoder(w)

	for lines.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := lines.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp Response
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			resp = failure(fmt.Sprintf("invalid message: %v", err))
		} else {
			resp = h.Handle(ctx, msg)
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	return nil
}
