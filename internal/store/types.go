// Package store holds the three persistence backends: the lexical
// index (bleve, BM25), the semantic store (HNSW vectors) and the
// document store (SQLite, parent chunks). The load coordinator is the
// only writer; all three are keyed by chunk identity so repeated
// writes of the same chunk replace instead of accumulate.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDimensionMismatch is returned when a vector's dimensionality does
// not match the store configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// EntryMeta is the filterable metadata carried by every indexed child.
type EntryMeta struct {
	// SourceID is the originating document.
	SourceID string
	// ParentID is the owning parent chunk.
	ParentID string
	// Category is the user-supplied category, if any.
	Category string
}

// LexicalEntry is one child chunk as seen by the lexical index.
type LexicalEntry struct {
	ID   string
	Text string
	Meta EntryMeta
}

// LexicalIndex is the BM25 side of the dual index. Upserting an
// existing ID replaces the previous entry; corpus statistics follow
// from the index content, never from incremental approximation.
type LexicalIndex interface {
	Upsert(ctx context.Context, entries []LexicalEntry) error
	Delete(ctx context.Context, ids []string) error
	Exists(id string) (bool, error)
	ParentID(id string) (string, error)
	AllIDs() ([]string, error)
	Count() (int, error)
	Close() error
}

// VectorStore is the semantic side of the dual index.
type VectorStore interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32, metas []EntryMeta) error
	Delete(ctx context.Context, ids []string) error
	Exists(id string) bool
	AllIDs() []string
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ParentRecord is a parent chunk as persisted in the document store.
type ParentRecord struct {
	ID       string
	SourceID string
	Ordinal  int
	Section  string
	Text     string
	Metadata map[string]string
}

// DocumentStore holds parent chunks. Every child in either index must
// resolve to a parent here; the coordinator writes parents first to
// keep that invariant.
type DocumentStore interface {
	Upsert(ctx context.Context, rec *ParentRecord) error
	Get(ctx context.Context, id string) (*ParentRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	AllIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// VectorStoreConfig configures the HNSW store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension; writes are validated
	// against it.
	Dimensions int
	// Metric is "cos" or "l2".
	Metric string
	// M is the HNSW connectivity parameter.
	M int
	// EfSearch is the HNSW search breadth parameter.
	EfSearch int
}
