package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry is a cached HTTP response body with its validators.
type Entry struct {
	Body        []byte    `json:"body"`
	ETag        string    `json:"etag,omitempty"`
	LastMod     string    `json:"last_modified,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	StatusCode  int       `json:"status_code"`
	CachedAt    time.Time `json:"cached_at"`
}

// FileCache stores entries as JSON files named by the SHA-256 of their key.
type FileCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates the cache directory if needed.
func New(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Get returns the entry for key and whether it is still fresh. An expired
// entry is still returned so the caller can revalidate it with
// If-None-Match / If-Modified-Since.
func (c *FileCache) Get(key string) (*Entry, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return nil, false
	}

	if c.now().Sub(entry.CachedAt) > c.ttl {
		return &entry, false
	}
	return &entry, true
}

// Set stores entry under key, stamping it with the current time.
func (c *FileCache) Set(key string, entry *Entry) error {
	entry.CachedAt = c.now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return os.WriteFile(c.path(key), data, 0o644)
}

// Invalidate drops the entry for key. A missing entry is not an error.
func (c *FileCache) Invalidate(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

func (c *FileCache) path(key string) string {
	h := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(h[:]))
}
