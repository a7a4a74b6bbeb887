package resource

import (
	"fmt"
	"strconv"
)

// Document is an ordered resource. Node ids are "1".."node_count" with no gaps;
// inserting or deleting renumbers the following siblings.
type Document struct {
	base
}

// NewDocument creates an empty document resource.
func NewDocument(name, description string, src Source, model ModelType) *Document {
	return &Document{base: newBase(name, description, src, model)}
}

// BaseType returns BaseTypeDocument.
func (d *Document) BaseType() BaseType { return BaseTypeDocument }

// Header describes the document.
func (d *Document) Header() VRHeader { return d.header(BaseTypeDocument) }

// Clone deep-copies the document.
func (d *Document) Clone() VectorResource {
	return &Document{base: d.cloneBase()}
}

// parseID validates id against [1, limit].
func (d *Document) parseID(id string, limit int) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > limit {
		return 0, fmt.Errorf("%w: %q (node count %d)", ErrInvalidNodeID, id, len(d.nodes))
	}
	return n, nil
}

// GetNode returns the node with the given id.
func (d *Document) GetNode(id string) (Node, error) {
	n, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return Node{}, err
	}
	return d.nodes[n-1], nil
}

// GetNodeEmbedding returns the embedding of the node with the given id.
func (d *Document) GetNodeEmbedding(id string) (Embedding, error) {
	n, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return Embedding{}, err
	}
	return d.embeddings[n-1], nil
}

func (d *Document) nodeRef(id string) (*Node, *Embedding, error) {
	n, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return nil, nil, err
	}
	return &d.nodes[n-1], &d.embeddings[n-1], nil
}

// NextNodeID returns the id an appended node receives.
func (d *Document) NextNodeID() string {
	return strconv.Itoa(len(d.nodes) + 1)
}

// LastNodeID returns the id of the final node.
func (d *Document) LastNodeID() (string, bool) {
	if len(d.nodes) == 0 {
		return "", false
	}
	return strconv.Itoa(len(d.nodes)), true
}

// InsertNode inserts at position id, shifting later nodes up by one.
// Valid ids are 1 through node_count+1.
func (d *Document) InsertNode(id string, n Node, e Embedding) error {
	pos, err := d.parseID(id, len(d.nodes)+1)
	if err != nil {
		return err
	}
	n.ID = id
	e = embeddingFor(n, e).WithID(id)
	n.LastWritten = now()

	if pos == len(d.nodes)+1 {
		d.nodes = append(d.nodes, n)
		d.embeddings = append(d.embeddings, e)
		d.indexNode(n)
	} else {
		d.nodes = append(d.nodes, Node{})
		copy(d.nodes[pos:], d.nodes[pos-1:])
		d.nodes[pos-1] = n
		d.embeddings = append(d.embeddings, Embedding{})
		copy(d.embeddings[pos:], d.embeddings[pos-1:])
		d.embeddings[pos-1] = e
		d.renumberFrom(pos)
		d.rebuildIndices()
	}
	d.lastWritten = n.LastWritten
	return nil
}

// ReplaceNode swaps the node at id, returning the old node and embedding.
func (d *Document) ReplaceNode(id string, n Node, e Embedding) (Node, Embedding, error) {
	pos, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return Node{}, Embedding{}, err
	}
	oldNode, oldEmb := d.nodes[pos-1], d.embeddings[pos-1]
	n.ID = id
	n.LastWritten = now()
	d.unindexNode(oldNode)
	d.nodes[pos-1] = n
	d.embeddings[pos-1] = embeddingFor(n, e).WithID(id)
	d.indexNode(n)
	d.lastWritten = n.LastWritten
	return oldNode, oldEmb, nil
}

// RemoveNode deletes the node at id and renumbers every following sibling.
func (d *Document) RemoveNode(id string) (Node, Embedding, error) {
	pos, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return Node{}, Embedding{}, err
	}
	oldNode, oldEmb := d.nodes[pos-1], d.embeddings[pos-1]
	d.nodes = append(d.nodes[:pos-1], d.nodes[pos:]...)
	d.embeddings = append(d.embeddings[:pos-1], d.embeddings[pos:]...)
	if pos-1 == len(d.nodes) {
		d.unindexNode(oldNode)
	} else {
		d.renumberFrom(pos)
		d.rebuildIndices()
	}
	d.lastWritten = now()
	return oldNode, oldEmb, nil
}

// RemoveAllNodes clears the document and returns the removed nodes.
func (d *Document) RemoveAllNodes() []Node {
	return d.removeAll()
}

// renumberFrom rewrites ids from 1-based position start onward.
func (d *Document) renumberFrom(start int) {
	for i := start - 1; i < len(d.nodes); i++ {
		id := strconv.Itoa(i + 1)
		d.nodes[i].ID = id
		d.embeddings[i].ID = id
	}
}

// AppendText appends a text node. Tags are recorded only when they validate
// against the text.
func (d *Document) AppendText(text string, metadata map[string]string, e Embedding, tagRules []DataTag) {
	n := NewTextNode("", text, metadata, ValidateTags(text, tagRules))
	d.AppendNodeUnchecked(n, e)
}

// AppendResource appends a node holding nested, using its resource embedding.
func (d *Document) AppendResource(nested VectorResource, metadata map[string]string) {
	d.AppendNodeUnchecked(NewResourceNode("", nested, metadata), nested.ResourceEmbedding())
}

// AppendHeader appends a node pointing at an externally stored resource.
func (d *Document) AppendHeader(h VRHeader, e Embedding, metadata map[string]string) {
	d.AppendNodeUnchecked(NewHeaderNode("", h, metadata), e)
}

// AppendNodeUnchecked appends n as given. Its tags are indexed without
// validation.
func (d *Document) AppendNodeUnchecked(n Node, e Embedding) {
	// Appending at node_count+1 cannot fail.
	_ = d.InsertNode(d.NextNodeID(), n, e)
}

// ReplaceText replaces the node at id with a text node.
func (d *Document) ReplaceText(id, text string, metadata map[string]string, e Embedding, tagRules []DataTag) (Node, error) {
	old, _, err := d.ReplaceNode(id, NewTextNode(id, text, metadata, ValidateTags(text, tagRules)), e)
	return old, err
}

// ReplaceResource replaces the node at id with a nested resource node.
func (d *Document) ReplaceResource(id string, nested VectorResource, metadata map[string]string) (Node, error) {
	old, _, err := d.ReplaceNode(id, NewResourceNode(id, nested, metadata), nested.ResourceEmbedding())
	return old, err
}

// DeleteNode removes the node at id.
func (d *Document) DeleteNode(id string) (Node, Embedding, error) {
	return d.RemoveNode(id)
}

// PopNode removes the last node.
func (d *Document) PopNode() (Node, Embedding, error) {
	id, ok := d.LastNodeID()
	if !ok {
		return Node{}, Embedding{}, fmt.Errorf("%w: document is empty", ErrInvalidNodeID)
	}
	return d.RemoveNode(id)
}

// NodeProximity returns the node at id plus up to window siblings on each
// side, clamped to [1, node_count].
func (d *Document) NodeProximity(id string, window int) ([]Node, []Embedding, error) {
	pos, err := d.parseID(id, len(d.nodes))
	if err != nil {
		return nil, nil, err
	}
	if window < 0 {
		window = 0
	}
	start := pos - window
	if start < 1 {
		start = 1
	}
	end := pos + window
	if end > len(d.nodes) {
		end = len(d.nodes)
	}
	nodes := make([]Node, 0, end-start+1)
	embs := make([]Embedding, 0, end-start+1)
	for i := start; i <= end; i++ {
		nodes = append(nodes, d.nodes[i-1])
		embs = append(embs, d.embeddings[i-1])
	}
	return nodes, embs, nil
}
