package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// Config configures an HNSWIndex.
type Config struct {
	Name       string
	EntityType string
	Dimensions int
	M          int
	EfSearch   int
}

// DefaultConfig returns defaults for an index of the given size.
func DefaultConfig(name, entityType string, dimensions int) Config {
	return Config{
		Name:       name,
		EntityType: entityType,
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// HNSWIndex is a Backend over coder/hnsw.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	refs    map[string]string
	nextKey uint64

	closed bool
}

// hnswMetadata is persisted next to the exported graph.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Refs    map[string]string
	NextKey uint64
	Config  Config
}

// NewHNSWIndex returns an empty index.
func NewHNSWIndex(cfg Config) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index %q: dimensions must be positive", cfg.Name)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}
	if cfg.EntityType == "" {
		cfg.EntityType = EntityHotel
	}

	return &HNSWIndex{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		refs:   make(map[string]string),
	}, nil
}

// newGraph orders neighbours by cosine distance. On unit vectors this is the
// same order as squared L2, which is what Search reports.
func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Descriptor implements Backend.
func (s *HNSWIndex) Descriptor() Descriptor {
	return Descriptor{
		Name:       s.config.Name,
		Dimensions: s.config.Dimensions,
		Count:      s.Count(),
		EntityType: s.config.EntityType,
	}
}

// Add inserts items. An existing id is replaced.
func (s *HNSWIndex) Add(_ context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index %q is closed", s.config.Name)
	}
	for _, it := range items {
		if len(it.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(it.Vector)}
		}
	}

	for _, it := range items {
		// Lazy deletion: coder/hnsw misbehaves when the last node is deleted,
		// so a replaced node is orphaned rather than removed.
		if old, ok := s.idMap[it.ID]; ok {
			delete(s.keyMap, old)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(it.Vector))
		copy(vec, it.Vector)
		normalizeInPlace(vec)
		s.graph.Add(hnsw.MakeNode(key, vec))

		ref := it.Ref
		if ref == "" {
			ref = it.ID
		}
		s.idMap[it.ID] = key
		s.keyMap[key] = it.ID
		s.refs[it.ID] = ref
	}
	return nil
}

// Search implements Backend.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index %q is closed", s.config.Name)
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Orphans can crowd out live nodes, so ask for extra.
	want := k
	if orphans := s.graph.Len() - len(s.idMap); orphans > 0 {
		want += orphans
	}

	nodes := s.graph.Search(q, want)
	out := make([]Neighbor, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{ID: id, Ref: s.refs[id], Distance: squaredL2(q, node.Value)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Delete removes ids. Nodes stay in the graph as orphans.
func (s *HNSWIndex) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index %q is closed", s.config.Name)
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.refs, id)
		}
	}
	return nil
}

// Contains reports whether id is indexed.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok && !s.closed
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save writes the graph to path and the id mappings to path+".meta".
// Both are written to temp files and renamed into place.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("index %q is closed", s.config.Name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, Refs: s.refs, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// OpenHNSWIndex loads an index written by Save.
func OpenHNSWIndex(path string) (*HNSWIndex, error) {
	meta, err := readMetadata(path + ".meta")
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close index file", slog.String("error", err.Error()))
		}
	}()

	graph := newGraph(meta.Config)
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}

	idx := &HNSWIndex{
		graph:   graph,
		config:  meta.Config,
		idMap:   meta.IDMap,
		keyMap:  make(map[uint64]string, len(meta.IDMap)),
		refs:    meta.Refs,
		nextKey: meta.NextKey,
	}
	if idx.idMap == nil {
		idx.idMap = make(map[string]uint64)
	}
	if idx.refs == nil {
		idx.refs = make(map[string]string)
	}
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}
	return idx, nil
}

func readMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata
	file, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}

// Close releases the graph.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

var _ Backend = (*HNSWIndex)(nil)

// squaredL2 is the squared Euclidean distance. For unit vectors it equals
// 2 - 2cos and falls in [0, 4].
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
