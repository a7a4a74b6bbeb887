package resource

import (
	"encoding/json"
	"fmt"
	"time"
)

type resourceJSON struct {
	BaseType           BaseType    `json:"resource_base_type"`
	Name               string      `json:"name"`
	Description        string      `json:"description,omitempty"`
	Source             Source      `json:"source"`
	ResourceID         string      `json:"resource_id"`
	ResourceEmbedding  Embedding   `json:"resource_embedding"`
	EmbeddingModelUsed ModelType   `json:"embedding_model_used"`
	CreatedDatetime    time.Time   `json:"created_datetime"`
	LastWritten        time.Time   `json:"last_written_datetime"`
	MerkleRoot         string      `json:"merkle_root,omitempty"`
	Nodes              []Node      `json:"nodes"`
	Embeddings         []Embedding `json:"embeddings"`
}

type nodeJSON struct {
	ID           string            `json:"id"`
	Kind         ContentKind       `json:"kind"`
	Text         string            `json:"text,omitempty"`
	Resource     json.RawMessage   `json:"resource,omitempty"`
	Header       *VRHeader         `json:"header,omitempty"`
	External     *Source           `json:"external,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DataTagNames []string          `json:"data_tag_names,omitempty"`
	LastWritten  time.Time         `json:"last_written_datetime"`
	MerkleHash   string            `json:"merkle_hash,omitempty"`
}

func (b *base) toJSON(bt BaseType) resourceJSON {
	return resourceJSON{
		BaseType:           bt,
		Name:               b.name,
		Description:        b.description,
		Source:             b.source,
		ResourceID:         b.resourceID,
		ResourceEmbedding:  b.resourceEmbedding,
		EmbeddingModelUsed: b.modelUsed,
		CreatedDatetime:    b.created,
		LastWritten:        b.lastWritten,
		MerkleRoot:         b.merkleRoot,
		Nodes:              b.nodes,
		Embeddings:         b.embeddings,
	}
}

func baseFromJSON(r resourceJSON) (base, error) {
	if len(r.Nodes) != len(r.Embeddings) {
		return base{}, fmt.Errorf("resource %s: %d nodes but %d embeddings", r.Name, len(r.Nodes), len(r.Embeddings))
	}
	b := base{
		name:              r.Name,
		description:       r.Description,
		source:            r.Source,
		resourceID:        r.ResourceID,
		resourceEmbedding: r.ResourceEmbedding,
		modelUsed:         r.EmbeddingModelUsed,
		created:           r.CreatedDatetime,
		lastWritten:       r.LastWritten,
		merkleRoot:        r.MerkleRoot,
		nodes:             r.Nodes,
		embeddings:        r.Embeddings,
	}
	if b.resourceEmbedding.Vector == nil {
		b.resourceEmbedding.Vector = []float32{}
	}
	b.rebuildIndices()
	return b, nil
}

// MarshalJSON encodes the document with its base type.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toJSON(BaseTypeDocument))
}

// UnmarshalJSON decodes a document.
func (d *Document) UnmarshalJSON(data []byte) error {
	var r resourceJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	b, err := baseFromJSON(r)
	if err != nil {
		return err
	}
	d.base = b
	return nil
}

// MarshalJSON encodes the map with its base type.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toJSON(BaseTypeMap))
}

// UnmarshalJSON decodes a map.
func (m *Map) UnmarshalJSON(data []byte) error {
	var r resourceJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	b, err := baseFromJSON(r)
	if err != nil {
		return err
	}
	m.base = b
	m.reindexPositions()
	return nil
}

// MarshalResource encodes any resource variant.
func MarshalResource(vr VectorResource) ([]byte, error) {
	return json.Marshal(vr)
}

// UnmarshalResource decodes a resource, dispatching on its base type.
func UnmarshalResource(data []byte) (VectorResource, error) {
	var probe struct {
		BaseType BaseType `json:"resource_base_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.BaseType {
	case BaseTypeDocument:
		d := &Document{}
		if err := json.Unmarshal(data, d); err != nil {
			return nil, err
		}
		return d, nil
	case BaseTypeMap:
		m := &Map{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBaseType, probe.BaseType)
	}
}

// MarshalJSON encodes the node, including a nested resource.
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		ID:           n.ID,
		Kind:         n.Kind,
		Text:         n.Text,
		Header:       n.Header,
		External:     n.External,
		Metadata:     n.Metadata,
		DataTagNames: n.DataTagNames,
		LastWritten:  n.LastWritten,
		MerkleHash:   n.MerkleHash,
	}
	if n.Resource != nil {
		raw, err := MarshalResource(n.Resource)
		if err != nil {
			return nil, err
		}
		out.Resource = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a node.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		ID:           in.ID,
		Kind:         in.Kind,
		Text:         in.Text,
		Header:       in.Header,
		External:     in.External,
		Metadata:     in.Metadata,
		DataTagNames: in.DataTagNames,
		LastWritten:  in.LastWritten,
		MerkleHash:   in.MerkleHash,
	}
	if len(in.Resource) > 0 {
		vr, err := UnmarshalResource(in.Resource)
		if err != nil {
			return err
		}
		n.Resource = vr
	}
	return nil
}
