package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/seongho-dev/ragload/internal/analyze"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// Hash vector weights. Tokens carry the semantic signal; character
// n-grams add robustness to inflection, which matters for Korean.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticEmbedder generates embeddings by hashing tokens and character
// n-grams into a fixed-size vector. Deterministic, offline, and fast;
// semantic quality is reduced. Used for offline mode and tests.
type StaticEmbedder struct {
	analyzer analyze.Analyzer

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder. It tokenizes with the
// same analyzer family as the lexical index, so both views of a chunk
// agree on what a term is.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{analyzer: analyze.NewDefaultAnalyzer()}
}

// Embed generates an embedding for a single text. Whitespace-only
// input yields a zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ragerr.EmbeddingError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch embeds each text independently.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range e.analyzer.Tokens(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return vector
}

// normalizeForNgrams keeps letters and digits, lowercased.
func normalizeForNgrams(text string) []rune {
	var out []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// extractNgrams slides an n-rune window. Rune windows, not byte
// windows, so multibyte scripts produce meaningful grams.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		return nil
	}
	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex maps a string to a vector index with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports readiness; always true until closed.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
