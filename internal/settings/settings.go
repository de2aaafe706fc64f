// Package settings loads and saves the user's download settings.
package settings

import (
	"context"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

// Settings controls where and under which name downloads are saved
type Settings struct {
	DownloadFolder    string `json:"downloadFolder"`
	CreateSubfolders  bool   `json:"createSubfolders"`
	AvoidDuplicates   bool   `json:"avoidDuplicates"`
	PreserveStructure bool   `json:"preserveStructure"`
	AddTimestamp      bool   `json:"addTimestamp"`
	AddWebsiteName    bool   `json:"addWebsiteName"`
}

// Defaults returns the settings used when nothing has been saved
func Defaults() Settings {
	return Settings{AvoidDuplicates: true}
}

// Store reads and writes Settings through a key-value store
type Store struct {
	kv storage.Store
}

func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Load returns the persisted settings merged over the defaults. A storage
// failure yields the defaults.
func (s *Store) Load(ctx context.Context) Settings {
	current := Defaults()
	if _, err := storage.Load(ctx, s.kv, &current); err != nil {
		logger.Warningf("Failed to load settings, using defaults: %v", err)
		return Defaults()
	}
	return current
}

// Save persists every field of settings
func (s *Store) Save(ctx context.Context, settings Settings) error {
	if err := storage.Save(ctx, s.kv, settings); err != nil {
		return err
	}
	logger.Debugf("Settings saved: %+v", settings)
	return nil
}
