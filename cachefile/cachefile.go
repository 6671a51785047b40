// Package cachefile implements the persisted sync cache: the full
// source-language snapshot recorded after the last successful commit.
// Comparing the current source content against it yields the keys that
// need (re)translation, so unchanged strings are never re-submitted.
//
// The cache is one JSON document per project, stored alongside the project
// config. An absent file, or a cache recorded for a different source
// language, is treated as "no cache".
package cachefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the default cache file name.
const FileName = ".langsync-cache.json"

// Cache is the persisted snapshot. Only the reconciliation engine writes
// it, after a successful non-preview commit.
type Cache struct {
	SourceLang string            `json:"source_lang"`
	Content    map[string]string `json:"content"`
	LastSync   time.Time         `json:"last_sync"`

	mu   sync.Mutex
	path string
}

// Load reads the cache from dir. A missing file yields an empty cache, not
// an error.
func Load(dir string) (*Cache, error) {
	path := filepath.Join(dir, FileName)
	c := &Cache{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	c.path = path
	return c, nil
}

// Path returns the cache file path.
func (c *Cache) Path() string { return c.path }

// ContentFor returns the cached snapshot when it was recorded for
// sourceLang. Any mismatch (different language, never synced) returns nil.
func (c *Cache) ContentFor(sourceLang string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SourceLang != sourceLang || c.Content == nil {
		return nil
	}
	out := make(map[string]string, len(c.Content))
	for k, v := range c.Content {
		out[k] = v
	}
	return out
}

// Replace swaps in a fresh snapshot for sourceLang and stamps LastSync.
func (c *Cache) Replace(sourceLang string, content map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SourceLang = sourceLang
	c.Content = make(map[string]string, len(content))
	for k, v := range content {
		c.Content[k] = v
	}
	c.LastSync = time.Now().UTC()
}

// Save writes the cache to disk.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return fmt.Errorf("cache file path not set")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", c.path, err)
	}
	return nil
}
