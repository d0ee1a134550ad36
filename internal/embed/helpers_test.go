package embed

import "github.com/seongho-dev/ragload/internal/config"

func configStatic() config.EmbeddingsConfig {
	return config.EmbeddingsConfig{
		Provider:  ProviderStatic,
		CacheSize: 16,
	}
}
