// Package resource implements vector resources: trees of nodes and their
// embeddings, addressed by VRPath and searched by embedding similarity.
//
// Two variants exist. Document keeps nodes in order with dense 1-based ids.
// Map keys nodes by arbitrary string ids and is what the filesystem uses for
// folders.
package resource

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VectorResource is implemented by *Document and *Map only.
type VectorResource interface {
	BaseType() BaseType

	Name() string
	SetName(name string)
	Description() string
	SetDescription(desc string)
	Source() Source
	SetSource(src Source)
	ResourceID() string
	SetResourceID(id string)
	GenerateResourceID()
	ResourceEmbedding() Embedding
	SetResourceEmbedding(e Embedding)
	EmbeddingModelUsed() ModelType
	SetEmbeddingModelUsed(m ModelType)
	CreatedDatetime() time.Time
	LastWrittenDatetime() time.Time
	SetLastWrittenDatetime(t time.Time)
	MerkleRoot() string
	SetMerkleRoot(hash string)
	DataTagIndex() *DataTagIndex
	MetadataIndex() *MetadataIndex

	// NodeCount equals len(Nodes()) and len(Embeddings()).
	NodeCount() int
	// Nodes returns the root nodes in order. The slice is a copy; nested
	// resources are shared.
	Nodes() []Node
	// Embeddings returns the root node embeddings, parallel to Nodes.
	Embeddings() []Embedding
	GetNode(id string) (Node, error)
	GetNodeEmbedding(id string) (Embedding, error)

	InsertNode(id string, n Node, e Embedding) error
	ReplaceNode(id string, n Node, e Embedding) (Node, Embedding, error)
	RemoveNode(id string) (Node, Embedding, error)
	RemoveAllNodes() []Node

	Header() VRHeader
	ReferenceString() string
	Clone() VectorResource

	nodeRef(id string) (*Node, *Embedding, error)
}

// OrderedResource is implemented by resources whose ids carry order.
type OrderedResource interface {
	VectorResource
	NextNodeID() string
	LastNodeID() (string, bool)
	NodeProximity(id string, window int) ([]Node, []Embedding, error)
}

var (
	_ VectorResource  = (*Document)(nil)
	_ VectorResource  = (*Map)(nil)
	_ OrderedResource = (*Document)(nil)
)

var now = func() time.Time { return time.Now().UTC() }

// base holds everything shared by both variants.
type base struct {
	name              string
	description       string
	source            Source
	resourceID        string
	resourceEmbedding Embedding
	modelUsed         ModelType
	created           time.Time
	lastWritten       time.Time
	merkleRoot        string

	nodes      []Node
	embeddings []Embedding
	tags       *DataTagIndex
	meta       *MetadataIndex
}

func newBase(name, description string, src Source, model ModelType) base {
	t := now()
	return base{
		name:              name,
		description:       description,
		source:            src,
		resourceID:        newResourceID(),
		resourceEmbedding: EmptyEmbedding(),
		modelUsed:         model,
		created:           t,
		lastWritten:       t,
		tags:              NewDataTagIndex(),
		meta:              NewMetadataIndex(),
	}
}

func newResourceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (b *base) Name() string                       { return b.name }
func (b *base) SetName(name string)                { b.name = name }
func (b *base) Description() string                { return b.description }
func (b *base) SetDescription(desc string)         { b.description = desc }
func (b *base) Source() Source                     { return b.source }
func (b *base) SetSource(src Source)               { b.source = src }
func (b *base) ResourceID() string                 { return b.resourceID }
func (b *base) SetResourceID(id string)            { b.resourceID = id }
func (b *base) GenerateResourceID()                { b.resourceID = newResourceID() }
func (b *base) ResourceEmbedding() Embedding       { return b.resourceEmbedding.Clone() }
func (b *base) EmbeddingModelUsed() ModelType      { return b.modelUsed }
func (b *base) SetEmbeddingModelUsed(m ModelType)  { b.modelUsed = m }
func (b *base) CreatedDatetime() time.Time         { return b.created }
func (b *base) LastWrittenDatetime() time.Time     { return b.lastWritten }
func (b *base) SetLastWrittenDatetime(t time.Time) { b.lastWritten = t }
func (b *base) MerkleRoot() string                 { return b.merkleRoot }
func (b *base) SetMerkleRoot(hash string)          { b.merkleRoot = hash }
func (b *base) DataTagIndex() *DataTagIndex        { return b.tags }
func (b *base) MetadataIndex() *MetadataIndex      { return b.meta }
func (b *base) NodeCount() int                     { return len(b.nodes) }

// SetResourceEmbedding stores e under the resource embedding id.
func (b *base) SetResourceEmbedding(e Embedding) {
	b.resourceEmbedding = e.WithID(ResourceEmbeddingID)
}

func (b *base) Nodes() []Node {
	out := make([]Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

func (b *base) Embeddings() []Embedding {
	out := make([]Embedding, len(b.embeddings))
	copy(out, b.embeddings)
	return out
}

func (b *base) ReferenceString() string {
	return ReferenceString(b.name, b.resourceID)
}

func (b *base) header(bt BaseType) VRHeader {
	h := VRHeader{
		ResourceName:                b.name,
		ResourceID:                  b.resourceID,
		ResourceBaseType:            bt,
		ResourceSource:              b.source,
		ResourceCreatedDatetime:     b.created,
		ResourceLastWrittenDatetime: b.lastWritten,
		ResourceEmbeddingModelUsed:  b.modelUsed,
		ResourceMerkleRoot:          b.merkleRoot,
		ResourceDescription:         b.description,
		DataTagNames:                b.tags.Names(),
		MetadataIndexKeys:           b.meta.Keys(),
	}
	if !b.resourceEmbedding.IsEmpty() {
		e := b.resourceEmbedding.Clone()
		h.ResourceEmbedding = &e
	}
	return h
}

func (b *base) cloneBase() base {
	c := *b
	c.resourceEmbedding = b.resourceEmbedding.Clone()
	c.nodes = make([]Node, len(b.nodes))
	for i, n := range b.nodes {
		c.nodes[i] = n.Clone()
	}
	c.embeddings = make([]Embedding, len(b.embeddings))
	for i, e := range b.embeddings {
		c.embeddings[i] = e.Clone()
	}
	c.tags = b.tags.Clone()
	c.meta = b.meta.Clone()
	return c
}

func (b *base) indexNode(n Node) {
	b.tags.AddNode(n)
	b.meta.AddNode(n)
}

func (b *base) unindexNode(n Node) {
	b.tags.RemoveNode(n)
	b.meta.RemoveNode(n)
}

func (b *base) rebuildIndices() {
	b.tags = NewDataTagIndex()
	b.meta = NewMetadataIndex()
	for _, n := range b.nodes {
		b.indexNode(n)
	}
}

func (b *base) removeAll() []Node {
	removed := b.nodes
	b.nodes = nil
	b.embeddings = nil
	b.tags = NewDataTagIndex()
	b.meta = NewMetadataIndex()
	b.lastWritten = now()
	return removed
}

// embeddingFor picks the embedding a node contributes to its parent. Nested
// resources contribute their resource embedding.
func embeddingFor(n Node, e Embedding) Embedding {
	if n.Kind == ContentResource && n.Resource != nil && e.IsEmpty() {
		return n.Resource.ResourceEmbedding()
	}
	return e
}
