package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// HNSWVectorStore implements VectorStore on the pure Go coder/hnsw
// graph. String chunk IDs map to internal uint64 keys; replaced
// entries are lazily deleted (the node stays in the graph, orphaned
// from the mapping) because removing graph nodes is unreliable in
// coder/hnsw.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	metas   map[string]EntryMeta
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWVectorStore)(nil)

// hnswMetadata is the gob-persisted sidecar: ID mappings, per-entry
// metadata and the store configuration.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Metas   map[string]EntryMeta
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWVectorStore creates an empty vector store.
func NewHNSWVectorStore(cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, ragerr.ConfigError(
			fmt.Sprintf("vector store dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		metas:  make(map[string]EntryMeta),
	}, nil
}

// Upsert inserts vectors with their IDs and metadata. An existing ID
// is replaced. Dimensions are validated for the whole batch before
// anything is written, so a mismatch never leaves a partial batch.
func (s *HNSWVectorStore) Upsert(ctx context.Context, ids []string, vectors [][]float32, metas []EntryMeta) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return ragerr.StoreError(
			fmt.Sprintf("ids/vectors/metas length mismatch: %d/%d/%d", len(ids), len(vectors), len(metas)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ragerr.StoreError("vector store is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ragerr.New(ragerr.ErrCodeDimensionMismatch,
				ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}.Error(), nil)
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
		s.metas[id] = metas[i]
	}

	return nil
}

// Delete removes vectors by ID, lazily. Unknown IDs are ignored.
func (s *HNSWVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ragerr.StoreError("vector store is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.metas, id)
		}
	}

	return nil
}

// Exists reports whether the ID holds an active vector.
func (s *HNSWVectorStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Meta returns the metadata stored with an entry.
func (s *HNSWVectorStore) Meta(id string) (EntryMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return EntryMeta{}, false
	}
	meta, ok := s.metas[id]
	return meta, ok
}

// AllIDs returns every active ID. Used by the consistency sweep.
func (s *HNSWVectorStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active vectors. Lazily deleted orphans
// are not counted.
func (s *HNSWVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the configured embedding dimension.
func (s *HNSWVectorStore) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the graph and its metadata sidecar atomically
// (temp file + rename).
func (s *HNSWVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ragerr.StoreError("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ragerr.StoreError("create vector store directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return ragerr.StoreError("create vector store file", err)
	}

	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("export vector graph", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("close vector store file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("rename vector store file", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return err
	}

	return nil
}

func (s *HNSWVectorStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return ragerr.StoreError("create vector metadata file", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		Metas:   s.metas,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("encode vector metadata", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("close vector metadata file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ragerr.StoreError("rename vector metadata file", err)
	}

	return nil
}

// Load restores the graph and metadata from disk. A missing file is
// not an error: the store starts empty.
func (s *HNSWVectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ragerr.StoreError("vector store is closed", nil)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreCorrupt, "open vector store file", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreCorrupt, "import vector graph", err)
	}

	return nil
}

func (s *HNSWVectorStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return ragerr.New(ragerr.ErrCodeStoreCorrupt, "open vector metadata file", err)
	}
	defer func() { _ = file.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return ragerr.New(ragerr.ErrCodeStoreCorrupt, "decode vector metadata", err)
	}

	s.idMap = meta.IDMap
	s.metas = meta.Metas
	s.nextKey = meta.NextKey
	s.config = meta.Config
	if s.metas == nil {
		s.metas = make(map[string]EntryMeta)
	}

	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close releases the graph.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace scales a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
