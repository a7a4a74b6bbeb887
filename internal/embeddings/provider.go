package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Embedder produces raw vectors for documents and queries.
type Embedder interface {
	// EmbedDocuments embeds texts that will be stored and searched.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder bound to one model.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Provider names accepted by NewProvider.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
	ProviderHash      = "hash"
)

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of fastembed, tei, openai or hash. Empty means fastembed.
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the service URL for tei and openai.
	BaseURL string
	// APIKey authenticates against openai-compatible services.
	APIKey string
	// Dimension overrides the detected dimension (openai, hash).
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// knownModelDimensions lists dimensions for models the providers ship with.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
	"snowflake-arctic-embed:xs":              384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderFastEmbed, "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case ProviderTEI:
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, err
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = detectDimensionFromModel(cfg.Model)
		}
		return &teiProvider{Service: svc, dimension: dim}, nil
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case ProviderHash:
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
