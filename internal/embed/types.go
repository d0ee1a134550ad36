// Package embed provides the embedding collaborator behind the
// semantic store. The backend is an HTTP embedding service speaking
// the Ollama protocol; a deterministic hash embedder covers offline
// use and tests.
package embed

import (
	"context"
	"math"
	"time"
)

// Embedding defaults.
const (
	// DefaultBatchSize is the batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request to bound memory.
	MaxBatchSize = 256

	// DefaultDimensions matches bge-m3, the default model.
	DefaultDimensions = 1024

	// StaticDimensions is the hash embedder's vector size.
	StaticDimensions = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// ConnectTimeout bounds the availability probe.
	ConnectTimeout = 5 * time.Second

	// DefaultPoolSize is the HTTP connection pool size.
	DefaultPoolSize = 4

	// DefaultCacheSize is the embedding cache entry count.
	DefaultCacheSize = 1000
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks whether the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Cosine similarity
// over unit vectors reduces to a dot product.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
