package downloader

import "sync"

// Status of a single tracked download
type Status string

const (
	StatusStarting  Status = "starting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is the progress record of one download
type Entry struct {
	Status     Status `json:"status"`
	Filename   string `json:"filename"`
	URL        string `json:"url,omitempty"`
	DownloadID string `json:"downloadId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Progress tracks the downloads of the current batch, keyed by a synthetic
// per-item id. It is safe for concurrent use.
type Progress struct {
	entries map[string]Entry
	mutex   sync.RWMutex
}

func NewProgress() *Progress {
	return &Progress{entries: make(map[string]Entry)}
}

// Reset drops every entry
func (p *Progress) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.entries = make(map[string]Entry)
}

// Set stores entry under id
func (p *Progress) Set(id string, entry Entry) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.entries[id] = entry
}

// Update applies fn to the entry stored under id, if any
func (p *Progress) Update(id string, fn func(*Entry)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	entry, ok := p.entries[id]
	if !ok {
		return
	}
	fn(&entry)
	p.entries[id] = entry
}

// Get returns the entry stored under id
func (p *Progress) Get(id string) (Entry, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	entry, ok := p.entries[id]
	return entry, ok
}

// Snapshot returns a copy of every entry
func (p *Progress) Snapshot() map[string]Entry {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	out := make(map[string]Entry, len(p.entries))
	for id, entry := range p.entries {
		out[id] = entry
	}
	return out
}
