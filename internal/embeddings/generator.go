package embeddings

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

const instrumentationName = "vecfs.embeddings"

// Generator produces embeddings tagged with a node id and model type.
type Generator interface {
	// GenerateEmbedding embeds text for storage under id.
	GenerateEmbedding(ctx context.Context, text, id string) (resource.Embedding, error)
	// GenerateEmbeddingDefault embeds a query with an empty id.
	GenerateEmbeddingDefault(ctx context.Context, text string) (resource.Embedding, error)
	// GenerateEmbeddings embeds texts in one batch; ids pairs with texts.
	GenerateEmbeddings(ctx context.Context, texts, ids []string) ([]resource.Embedding, error)
	// ModelType names the model behind the vectors.
	ModelType() resource.ModelType
}

// ProviderGenerator adapts a Provider to Generator.
type ProviderGenerator struct {
	provider Provider
	model    resource.ModelType
	limiter  *rate.Limiter
	tracer   trace.Tracer
}

// GeneratorOption configures a ProviderGenerator.
type GeneratorOption func(*ProviderGenerator)

// WithRateLimit caps provider calls at rps with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) GeneratorOption {
	return func(g *ProviderGenerator) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewGenerator wraps p. model is recorded on every embedding.
func NewGenerator(p Provider, model resource.ModelType, opts ...GeneratorOption) *ProviderGenerator {
	g := &ProviderGenerator{
		provider: p,
		model:    model,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelType returns the configured model.
func (g *ProviderGenerator) ModelType() resource.ModelType {
	return g.model
}

// Dimension returns the provider's vector size.
func (g *ProviderGenerator) Dimension() int {
	return g.provider.Dimension()
}

// Close closes the provider.
func (g *ProviderGenerator) Close() error {
	return g.provider.Close()
}

// GenerateEmbedding embeds text as a document.
func (g *ProviderGenerator) GenerateEmbedding(ctx context.Context, text, id string) (resource.Embedding, error) {
	embs, err := g.GenerateEmbeddings(ctx, []string{text}, []string{id})
	if err != nil {
		return resource.Embedding{}, err
	}
	return embs[0], nil
}

// GenerateEmbeddingDefault embeds text as a query.
func (g *ProviderGenerator) GenerateEmbeddingDefault(ctx context.Context, text string) (resource.Embedding, error) {
	ctx, span := g.tracer.Start(ctx, "embeddings.query")
	defer span.End()
	span.SetAttributes(attribute.String("model", g.model.String()))

	if err := g.wait(ctx); err != nil {
		return resource.Embedding{}, err
	}
	vector, err := g.provider.EmbedQuery(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resource.Embedding{}, err
	}
	return resource.Embedding{Vector: vector, Model: g.model}, nil
}

// GenerateEmbeddings embeds texts in one provider call.
func (g *ProviderGenerator) GenerateEmbeddings(ctx context.Context, texts, ids []string) ([]resource.Embedding, error) {
	if len(texts) != len(ids) {
		return nil, fmt.Errorf("%w: %d texts but %d ids", ErrInvalidConfig, len(texts), len(ids))
	}

	ctx, span := g.tracer.Start(ctx, "embeddings.documents")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.model.String()),
		attribute.Int("batch_size", len(texts)),
	)

	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	vectors, err := g.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}

	out := make([]resource.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = resource.Embedding{ID: ids[i], Vector: v, Model: g.model}
	}
	return out, nil
}

func (g *ProviderGenerator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

// NewHashGenerator returns a deterministic generator, used offline and in tests.
func NewHashGenerator(dimension int, model resource.ModelType) *ProviderGenerator {
	return NewGenerator(NewHashProvider(dimension), model)
}
