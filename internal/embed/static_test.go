package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbed_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "hybrid retrieval with parent context")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hybrid retrieval with parent context")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbed_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "some indexable content here")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbed_EmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   \n ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbed_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "vector similarity search")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "keyword frequency statistics")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbed_KoreanText(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "하이브리드 검색 시스템")
	require.NoError(t, err)

	var nonZero int
	for _, v := range vec {
		if v != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0)
}

func TestStaticEmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"first chunk", "second chunk", "third chunk"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), "second chunk")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestStaticEmbed_Closed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}
