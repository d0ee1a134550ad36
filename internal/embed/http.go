package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// Default embedding service settings.
const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "bge-m3"
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Endpoint is the embedding service base URL.
	Endpoint string

	// Model is the embedding model identifier.
	Model string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// MaxRetries bounds retries of a failed request.
	MaxRetries int

	// PoolSize is the HTTP connection pool size.
	PoolSize int

	// SkipHealthCheck skips the startup availability probe.
	SkipHealthCheck bool
}

// DefaultHTTPConfig returns the default client settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:   DefaultEndpoint,
		Model:      DefaultModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: 3,
		PoolSize:   DefaultPoolSize,
	}
}

// embedRequest is the /api/embed request body.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// embedResponse is the /api/embed response body.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// HTTPEmbedder talks to an Ollama-protocol embedding service.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedder backed by an HTTP service. Unless
// SkipHealthCheck is set it probes the service and auto-detects the
// embedding dimension by embedding a probe string.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: each request carries its own context
	// deadline, and a static client timeout would override it.
	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if !e.Available(ctx) {
			transport.CloseIdleConnections()
			return nil, ragerr.New(ragerr.ErrCodeEmbedderUnavailable,
				fmt.Sprintf("embedding service at %s is not reachable", cfg.Endpoint), nil)
		}
		if e.dims == 0 {
			dims, err := e.detectDimensions(ctx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, err
			}
			e.dims = dims
		}
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// detectDimensions embeds a probe string and measures the result.
func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, ragerr.New(ragerr.ErrCodeEmbedderUnavailable,
			"failed to detect embedding dimensions", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, ragerr.New(ragerr.ErrCodeEmbedderUnavailable,
			"embedding service returned an empty probe vector", nil)
	}
	return len(vecs[0]), nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in BatchSize groups, preserving order.
// Transport-level failures are retried with backoff; a dimension
// mismatch is not retryable and fails the whole batch.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ragerr.EmbeddingError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[start:end]
		retryCfg := ragerr.DefaultRetryConfig()
		retryCfg.MaxRetries = e.config.MaxRetries

		var vecs [][]float32
		var fatal error
		err := ragerr.Retry(ctx, retryCfg, func() error {
			v, embedErr := e.doEmbed(ctx, batch)
			if embedErr != nil {
				if !ragerr.IsRetryable(embedErr) {
					// Stop the attempt loop; carried out below.
					fatal = embedErr
					return nil
				}
				return embedErr
			}
			vecs = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		if fatal != nil {
			return nil, fatal
		}

		results = append(results, vecs...)
	}

	return results, nil
}

// doEmbed performs one /api/embed call.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, ragerr.EmbeddingError("encode embed request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.EmbeddingError("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeEmbedderUnavailable,
			fmt.Sprintf("embedding service unreachable: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerr.EmbeddingError("read embed response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ragerr.EmbeddingError(
			fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, truncate(string(payload), 200)), nil)
	}

	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, ragerr.EmbeddingError("decode embed response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, ragerr.EmbeddingError(
			fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(out.Embeddings)), nil)
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, raw := range out.Embeddings {
		if e.dims > 0 && len(raw) != e.dims {
			return nil, ragerr.New(ragerr.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(raw)), nil)
		}
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vecs[i] = normalizeVector(vec)
	}

	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the service with a short timeout.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		e.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
