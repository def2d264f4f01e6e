// Package fileset tracks uploaded test files and decides which of them
// must be redistributed to captured browsers.
package fileset

import (
	"sort"
	"sync"
)

// FileInfo describes one uploaded test file.
type FileInfo struct {
	ID          string `json:"id" yaml:"id"`
	Timestamp   int64  `json:"timestamp" yaml:"timestamp"`
	Weight      int    `json:"weight" yaml:"weight"` // -1 when unset
	IsPatch     bool   `json:"is_patch,omitempty" yaml:"is_patch,omitempty"`
	ServeOnly   bool   `json:"serve_only,omitempty" yaml:"serve_only,omitempty"`
	Data        string `json:"data,omitempty" yaml:"data,omitempty"`
	DisplayPath string `json:"display_path,omitempty" yaml:"display_path,omitempty"`
}

// Equal reports structural equality across every field.
func (f FileInfo) Equal(other FileInfo) bool {
	return f == other
}

// SameVersion reports whether other is the same file at the same timestamp.
func (f FileInfo) SameVersion(other FileInfo) bool {
	return f.ID == other.ID && f.Timestamp == other.Timestamp
}

// Expired returns the entries of current that are new or whose timestamp
// differs from the previous entry with the same id. Only id and timestamp
// take part in the comparison; ids present only in previous are ignored.
func Expired(current, previous []FileInfo) []FileInfo {
	known := make(map[string]int64, len(previous))
	for _, f := range previous {
		known[f.ID] = f.Timestamp
	}
	expired := make([]FileInfo, 0, len(current))
	for _, f := range current {
		ts, ok := known[f.ID]
		if ok && ts == f.Timestamp {
			continue
		}
		expired = append(expired, f)
	}
	return expired
}

// Cache holds the last known version of every uploaded file.
type Cache struct {
	mu    sync.RWMutex
	files map[string]FileInfo
}

// NewCache returns an empty cache, optionally preloaded.
func NewCache(preloaded ...FileInfo) *Cache {
	c := &Cache{files: make(map[string]FileInfo, len(preloaded))}
	for _, f := range preloaded {
		c.files[f.ID] = f
	}
	return c
}

// Expired diffs current against the cached versions.
func (c *Cache) Expired(current []FileInfo) []FileInfo {
	return Expired(current, c.Snapshot())
}

// Put stores files, replacing any cached entry with the same id.
func (c *Cache) Put(files ...FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.files[f.ID] = f
	}
}

func (c *Cache) Get(id string) (FileInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[id]
	return f, ok
}

// Snapshot returns the cached files ordered by weight, then id.
func (c *Cache) Snapshot() []FileInfo {
	c.mu.RLock()
	out := make([]FileInfo, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = make(map[string]FileInfo)
}
