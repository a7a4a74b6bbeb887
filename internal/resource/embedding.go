package resource

import (
	"math"
	"sort"
)

// ModelType names the embedding model that produced a vector.
type ModelType string

// Known embedding models.
const (
	ModelSnowflakeArcticEmbedXS ModelType = "snowflake-arctic-embed:xs"
	ModelAllMiniLML6V2          ModelType = "sentence-transformers/all-MiniLM-L6-v2"
	ModelBGESmallENV15          ModelType = "BAAI/bge-small-en-v1.5"
	ModelBGEBaseENV15           ModelType = "BAAI/bge-base-en-v1.5"
	ModelOpenAITextEmbedding3S  ModelType = "text-embedding-3-small"
	ModelOpenAITextEmbeddingAda ModelType = "text-embedding-ada-002"
)

// normalizationFactors scale raw cosine scores so results from different models
// can be pooled. Models absent from the table use 1.0.
var normalizationFactors = map[ModelType]float32{
	ModelSnowflakeArcticEmbedXS: 1.0,
	ModelAllMiniLML6V2:          1.0,
	ModelBGESmallENV15:          0.95,
	ModelBGEBaseENV15:           0.95,
	ModelOpenAITextEmbedding3S:  1.5,
	ModelOpenAITextEmbeddingAda: 1.1,
}

// NormalizationFactor returns the multiplier applied to scores produced by m.
func (m ModelType) NormalizationFactor() float32 {
	if f, ok := normalizationFactors[m]; ok {
		return f
	}
	return 1.0
}

// String returns the model identifier.
func (m ModelType) String() string {
	return string(m)
}

// Embedding is a vector tied to a node id (or "RE" for a resource embedding).
type Embedding struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
	Model  ModelType `json:"model,omitempty"`
}

// ResourceEmbeddingID is the id used for a resource's own embedding.
const ResourceEmbeddingID = "RE"

// NewEmbedding creates an embedding.
func NewEmbedding(id string, vector []float32) Embedding {
	return Embedding{ID: id, Vector: vector}
}

// EmptyEmbedding returns an embedding with no vector, used for folders.
func EmptyEmbedding() Embedding {
	return Embedding{Vector: []float32{}}
}

// IsEmpty reports whether the embedding has no vector.
func (e Embedding) IsEmpty() bool {
	return len(e.Vector) == 0
}

// WithID returns a copy of e using id.
func (e Embedding) WithID(id string) Embedding {
	c := e.Clone()
	c.ID = id
	return c
}

// Clone deep-copies the vector.
func (e Embedding) Clone() Embedding {
	v := make([]float32, len(e.Vector))
	copy(v, e.Vector)
	return Embedding{ID: e.ID, Vector: v, Model: e.Model}
}

// ScoreSimilarity returns the cosine similarity between e and other.
// Mismatched dimensions and zero vectors score 0.
func (e Embedding) ScoreSimilarity(other Embedding) float32 {
	if len(e.Vector) == 0 || len(e.Vector) != len(other.Vector) {
		return 0
	}
	var dot, na, nb float64
	for i := range e.Vector {
		a, b := float64(e.Vector[i]), float64(other.Vector[i])
		dot += a * b
		na += a * a
		nb += b * b
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Score pairs a similarity score with the id of the embedding that produced it.
type Score struct {
	Value float32
	ID    string
}

// ScoreSimilarities scores every candidate and returns the top k in descending
// order. Equal scores keep candidate order. k <= 0 returns all scores.
func (e Embedding) ScoreSimilarities(candidates []Embedding, k int) []Score {
	scores := make([]Score, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, Score{Value: e.ScoreSimilarity(c), ID: c.ID})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Value > scores[j].Value
	})
	if k > 0 && len(scores) > k {
		scores = scores[:k]
	}
	return scores
}
