package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(0)
	assert.Equal(t, DefaultHashDimension, p.Dimension())

	ctx := context.Background()
	a, err := p.EmbedQuery(ctx, "The cat sat")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "the CAT sat!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestHashGenerator_SimilarTextScoresHigher(t *testing.T) {
	g := NewHashGenerator(128, resource.ModelAllMiniLML6V2)
	ctx := context.Background()

	docs, err := g.GenerateEmbeddings(ctx,
		[]string{"cats are small furry animals", "stock markets closed lower today"},
		[]string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, resource.ModelAllMiniLML6V2, docs[1].Model)

	query, err := g.GenerateEmbeddingDefault(ctx, "furry cats")
	require.NoError(t, err)
	assert.Empty(t, query.ID)
	assert.Len(t, query.Vector, 128)

	assert.Greater(t, query.ScoreSimilarity(docs[0]), query.ScoreSimilarity(docs[1]))
}

func TestGenerator_GenerateEmbedding(t *testing.T) {
	g := NewHashGenerator(16, resource.ModelBGESmallENV15)
	assert.Equal(t, resource.ModelBGESmallENV15, g.ModelType())
	assert.Equal(t, 16, g.Dimension())

	emb, err := g.GenerateEmbedding(context.Background(), "hello", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", emb.ID)
	assert.InDelta(t, 1.0, emb.ScoreSimilarity(emb), 1e-6)

	_, err = g.GenerateEmbeddings(context.Background(), []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGenerator_RateLimit(t *testing.T) {
	g := NewGenerator(NewHashProvider(8), resource.ModelBGESmallENV15, WithRateLimit(0.001, 1))
	ctx := context.Background()

	_, err := g.GenerateEmbeddingDefault(ctx, "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = g.GenerateEmbeddingDefault(ctx, "second")
	assert.Error(t, err)
}
