package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seongho-dev/ragload/internal/config"
	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderHTTP   = "http"
	ProviderStatic = "static"
)

// NewEmbedder builds the configured embedder, wrapped with the LRU
// cache. The http provider probes the service at startup and fails
// fast when it is unreachable; static always succeeds.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case ProviderStatic:
		inner = NewStaticEmbedder()

	case ProviderHTTP, "":
		httpCfg := DefaultHTTPConfig()
		if cfg.Endpoint != "" {
			httpCfg.Endpoint = cfg.Endpoint
		}
		if cfg.Model != "" {
			httpCfg.Model = cfg.Model
		}
		if cfg.Dimensions > 0 {
			httpCfg.Dimensions = cfg.Dimensions
		}
		if cfg.BatchSize > 0 {
			httpCfg.BatchSize = cfg.BatchSize
		}

		e, err := NewHTTPEmbedder(ctx, httpCfg)
		if err != nil {
			return nil, err
		}
		inner = e

	default:
		return nil, ragerr.ConfigError(
			fmt.Sprintf("unknown embeddings provider %q (want %s or %s)",
				cfg.Provider, ProviderHTTP, ProviderStatic), nil)
	}

	slog.Info("embedder ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
