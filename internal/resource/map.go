package resource

import "fmt"

// Map is a keyed resource. Ids are arbitrary strings (folder and item names in
// the filesystem). Iteration follows insertion order.
type Map struct {
	base
	pos map[string]int
}

// NewMap creates an empty map resource.
func NewMap(name, description string, src Source, model ModelType) *Map {
	return &Map{base: newBase(name, description, src, model), pos: make(map[string]int)}
}

// BaseType returns BaseTypeMap.
func (m *Map) BaseType() BaseType { return BaseTypeMap }

// Header describes the map.
func (m *Map) Header() VRHeader { return m.header(BaseTypeMap) }

// Clone deep-copies the map.
func (m *Map) Clone() VectorResource {
	c := &Map{base: m.cloneBase(), pos: make(map[string]int, len(m.pos))}
	for k, v := range m.pos {
		c.pos[k] = v
	}
	return c
}

func (m *Map) lookup(id string) (int, error) {
	i, ok := m.pos[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNodeID, id)
	}
	return i, nil
}

// GetNode returns the node keyed by id.
func (m *Map) GetNode(id string) (Node, error) {
	i, err := m.lookup(id)
	if err != nil {
		return Node{}, err
	}
	return m.nodes[i], nil
}

// GetNodeEmbedding returns the embedding keyed by id.
func (m *Map) GetNodeEmbedding(id string) (Embedding, error) {
	i, err := m.lookup(id)
	if err != nil {
		return Embedding{}, err
	}
	return m.embeddings[i], nil
}

func (m *Map) nodeRef(id string) (*Node, *Embedding, error) {
	i, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return &m.nodes[i], &m.embeddings[i], nil
}

// HasNode reports whether id exists at the root of the map.
func (m *Map) HasNode(id string) bool {
	_, ok := m.pos[id]
	return ok
}

// InsertNode stores n under id, overwriting an existing entry in place.
func (m *Map) InsertNode(id string, n Node, e Embedding) error {
	if id == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidNodeID)
	}
	n.ID = id
	n.LastWritten = now()
	e = embeddingFor(n, e).WithID(id)
	if i, ok := m.pos[id]; ok {
		m.unindexNode(m.nodes[i])
		m.nodes[i] = n
		m.embeddings[i] = e
	} else {
		m.pos[id] = len(m.nodes)
		m.nodes = append(m.nodes, n)
		m.embeddings = append(m.embeddings, e)
	}
	m.indexNode(n)
	m.lastWritten = n.LastWritten
	return nil
}

// ReplaceNode swaps an existing entry, returning the old node and embedding.
func (m *Map) ReplaceNode(id string, n Node, e Embedding) (Node, Embedding, error) {
	i, err := m.lookup(id)
	if err != nil {
		return Node{}, Embedding{}, err
	}
	oldNode, oldEmb := m.nodes[i], m.embeddings[i]
	if err := m.InsertNode(id, n, e); err != nil {
		return Node{}, Embedding{}, err
	}
	return oldNode, oldEmb, nil
}

// RemoveNode deletes the entry keyed by id.
func (m *Map) RemoveNode(id string) (Node, Embedding, error) {
	i, err := m.lookup(id)
	if err != nil {
		return Node{}, Embedding{}, err
	}
	oldNode, oldEmb := m.nodes[i], m.embeddings[i]
	m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
	m.embeddings = append(m.embeddings[:i], m.embeddings[i+1:]...)
	m.unindexNode(oldNode)
	m.reindexPositions()
	m.lastWritten = now()
	return oldNode, oldEmb, nil
}

// RemoveAllNodes clears the map and returns the removed nodes.
func (m *Map) RemoveAllNodes() []Node {
	m.pos = make(map[string]int)
	return m.removeAll()
}

func (m *Map) reindexPositions() {
	m.pos = make(map[string]int, len(m.nodes))
	for i, n := range m.nodes {
		m.pos[n.ID] = i
	}
}

// InsertText stores a text node under key.
func (m *Map) InsertText(key, text string, metadata map[string]string, e Embedding, tagRules []DataTag) error {
	return m.InsertNode(key, NewTextNode(key, text, metadata, ValidateTags(text, tagRules)), e)
}

// InsertResource stores a nested resource under key.
func (m *Map) InsertResource(key string, nested VectorResource, metadata map[string]string) error {
	return m.InsertNode(key, NewResourceNode(key, nested, metadata), nested.ResourceEmbedding())
}

// InsertHeader stores a header node under key.
func (m *Map) InsertHeader(key string, h VRHeader, e Embedding, metadata map[string]string) error {
	return m.InsertNode(key, NewHeaderNode(key, h, metadata), e)
}
