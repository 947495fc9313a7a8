package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileExt is the on-disk suffix of a saved index.
const FileExt = ".hnsw"

// Catalog is a set of named backends. It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{backends: make(map[string]Backend)}
}

// Register adds or replaces a backend under its descriptor name.
func (c *Catalog) Register(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[b.Descriptor().Name] = b
}

// Get returns the backend called name.
func (c *Catalog) Get(name string) (Backend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.backends[name]
	return b, ok
}

// Names returns registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.backends))
	for name := range c.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptors returns every backend's descriptor, sorted by name.
func (c *Catalog) Descriptors() []Descriptor {
	names := c.Names()
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		if b, ok := c.Get(n); ok {
			out = append(out, b.Descriptor())
		}
	}
	return out
}

// Path returns where index name lives under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+FileExt)
}

// LoadDir opens every saved index in dir. A missing dir yields an empty
// catalog.
func LoadDir(dir string) (*Catalog, error) {
	c := NewCatalog()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+FileExt))
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	for _, path := range matches {
		idx, err := OpenHNSWIndex(path)
		if err != nil {
			return nil, fmt.Errorf("load index %s: %w", filepath.Base(path), err)
		}
		c.Register(idx)
	}
	return c, nil
}

// OpenOrCreate loads the index at Path(dir, cfg.Name) or returns a new empty
// one built from cfg.
func OpenOrCreate(dir string, cfg Config) (*HNSWIndex, error) {
	path := Path(dir, cfg.Name)
	if _, err := os.Stat(path); err == nil {
		idx, err := OpenHNSWIndex(path)
		if err != nil {
			return nil, err
		}
		if idx.config.Dimensions != cfg.Dimensions {
			return nil, ErrDimensionMismatch{Expected: idx.config.Dimensions, Got: cfg.Dimensions}
		}
		return idx, nil
	}
	return NewHNSWIndex(cfg)
}
