// Package sources manages vector backend configurations: loading them from
// sources.yaml, persisting them in the relational store, resolving adapters,
// and hot-reloading the file on change.
package sources

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// FileConfig is the shape of sources.yaml.
type FileConfig struct {
	// Default names the source used when no explicit source is requested.
	Default string `yaml:"default"`

	// Sources lists the configured backends.
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry is one backend in sources.yaml.
type SourceEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // qdrant, pinecone, mongodb, chromadb, pgvector, chromem
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Enabled    *bool  `yaml:"enabled"` // default true

	// SyncInterval is a Go duration string ("2m", "1h"). Default 5m.
	SyncInterval string `yaml:"sync_interval"`
}

// LoadFile reads and validates sources.yaml. It returns the sources and the
// default source ID.
func LoadFile(path string) ([]types.MemorySource, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("sources: failed to read %s: %w", path, err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, "", fmt.Errorf("sources: invalid yaml in %s: %w", path, err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(config.Sources))
	sources := make([]types.MemorySource, 0, len(config.Sources))
	for i, entry := range config.Sources {
		if entry.ID == "" {
			return nil, "", fmt.Errorf("%w: source %d has no id", storage.ErrInvalidInput, i)
		}
		if seen[entry.ID] {
			return nil, "", fmt.Errorf("%w: duplicate source id %q", storage.ErrInvalidInput, entry.ID)
		}
		seen[entry.ID] = true

		srcType := types.SourceType(entry.Type)
		if !types.IsValidSourceType(srcType) {
			return nil, "", fmt.Errorf("%w: source %q has unknown type %q", storage.ErrInvalidInput, entry.ID, entry.Type)
		}

		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		interval := 5 * time.Minute
		if entry.SyncInterval != "" {
			interval, err = time.ParseDuration(entry.SyncInterval)
			if err != nil {
				return nil, "", fmt.Errorf("%w: source %q has invalid sync_interval: %v", storage.ErrInvalidInput, entry.ID, err)
			}
		}

		sources = append(sources, types.MemorySource{
			ID:           entry.ID,
			Name:         name,
			Type:         srcType,
			URL:          entry.URL,
			APIKey:       entry.APIKey,
			Collection:   entry.Collection,
			Enabled:      enabled,
			SyncInterval: interval,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if config.Default != "" && !seen[config.Default] {
		return nil, "", fmt.Errorf("%w: default source %q is not defined", storage.ErrInvalidInput, config.Default)
	}

	return sources, config.Default, nil
}
