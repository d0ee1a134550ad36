package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

func newVectorStore(t *testing.T, dims int) *HNSWVectorStore {
	t.Helper()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vec(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	v[0] = seed
	v[1] = 1
	return v
}

func meta(parentID string) EntryMeta {
	return EntryMeta{SourceID: "doc.md", ParentID: parentID}
}

func TestHNSWUpsertAndExists(t *testing.T) {
	s := newVectorStore(t, 4)

	err := s.Upsert(context.Background(),
		[]string{"c1", "c2"},
		[][]float32{vec(4, 1), vec(4, 2)},
		[]EntryMeta{meta("p1"), meta("p1")})
	require.NoError(t, err)

	assert.True(t, s.Exists("c1"))
	assert.False(t, s.Exists("missing"))
	assert.Equal(t, 2, s.Count())

	m, ok := s.Meta("c1")
	require.True(t, ok)
	assert.Equal(t, "p1", m.ParentID)
}

func TestHNSWUpsertReplacesSameID(t *testing.T) {
	s := newVectorStore(t, 4)

	require.NoError(t, s.Upsert(context.Background(),
		[]string{"c1"}, [][]float32{vec(4, 1)}, []EntryMeta{meta("p1")}))
	require.NoError(t, s.Upsert(context.Background(),
		[]string{"c1"}, [][]float32{vec(4, 9)}, []EntryMeta{meta("p2")}))

	// Replaced entry is still one active vector; the stale graph node
	// is orphaned, not counted.
	assert.Equal(t, 1, s.Count())

	m, ok := s.Meta("c1")
	require.True(t, ok)
	assert.Equal(t, "p2", m.ParentID)
}

func TestHNSWDimensionMismatchRejectsWholeBatch(t *testing.T) {
	s := newVectorStore(t, 4)

	err := s.Upsert(context.Background(),
		[]string{"good", "bad"},
		[][]float32{vec(4, 1), vec(8, 1)},
		[]EntryMeta{meta("p1"), meta("p1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.New(ragerr.ErrCodeDimensionMismatch, "", nil))

	// Nothing from the batch was written.
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Exists("good"))
}

func TestHNSWDelete(t *testing.T) {
	s := newVectorStore(t, 4)

	require.NoError(t, s.Upsert(context.Background(),
		[]string{"c1", "c2"},
		[][]float32{vec(4, 1), vec(4, 2)},
		[]EntryMeta{meta("p1"), meta("p1")}))

	require.NoError(t, s.Delete(context.Background(), []string{"c1", "unknown"}))
	assert.False(t, s.Exists("c1"))
	assert.True(t, s.Exists("c2"))
	assert.Equal(t, 1, s.Count())
}

func TestHNSWAllIDs(t *testing.T) {
	s := newVectorStore(t, 4)

	require.NoError(t, s.Upsert(context.Background(),
		[]string{"c1", "c2", "c3"},
		[][]float32{vec(4, 1), vec(4, 2), vec(4, 3)},
		[]EntryMeta{meta("p1"), meta("p1"), meta("p2")}))

	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, s.AllIDs())
}

func TestHNSWSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newVectorStore(t, 4)
	require.NoError(t, s.Upsert(context.Background(),
		[]string{"c1", "c2"},
		[][]float32{vec(4, 1), vec(4, 2)},
		[]EntryMeta{meta("p1"), meta("p2")}))
	require.NoError(t, s.Save(path))

	loaded := newVectorStore(t, 4)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Exists("c1"))
	m, ok := loaded.Meta("c2")
	require.True(t, ok)
	assert.Equal(t, "p2", m.ParentID)
}

func TestHNSWLoadMissingFileStartsEmpty(t *testing.T) {
	s := newVectorStore(t, 4)
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "absent.hnsw")))
	assert.Equal(t, 0, s.Count())
}

func TestHNSWInvalidDimensionsConfig(t *testing.T) {
	_, err := NewHNSWVectorStore(VectorStoreConfig{Dimensions: 0})
	require.Error(t, err)
	assert.Equal(t, ragerr.CategoryConfig, ragerr.CategoryOf(err))
}
