package resource

import (
	"fmt"
	"sort"
	"time"
)

// ContentKind discriminates what a Node holds.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentResource ContentKind = "resource"
	ContentVRHeader ContentKind = "vr_header"
	ContentExternal ContentKind = "external_content"
)

// Node is a single addressable entry inside a VectorResource. Exactly one of
// Text, Resource, Header or External is meaningful, selected by Kind.
type Node struct {
	ID           string
	Kind         ContentKind
	Text         string
	Resource     VectorResource
	Header       *VRHeader
	External     *Source
	Metadata     map[string]string
	DataTagNames []string
	LastWritten  time.Time
	MerkleHash   string
}

// NewTextNode creates a text node.
func NewTextNode(id, text string, metadata map[string]string, tagNames []string) Node {
	return Node{
		ID:           id,
		Kind:         ContentText,
		Text:         text,
		Metadata:     copyMetadata(metadata),
		DataTagNames: append([]string(nil), tagNames...),
		LastWritten:  time.Now().UTC(),
	}
}

// NewResourceNode creates a node holding a nested resource. Tag names are
// taken from the nested resource's data tag index.
func NewResourceNode(id string, vr VectorResource, metadata map[string]string) Node {
	return Node{
		ID:           id,
		Kind:         ContentResource,
		Resource:     vr,
		Metadata:     copyMetadata(metadata),
		DataTagNames: vr.DataTagIndex().Names(),
		LastWritten:  time.Now().UTC(),
	}
}

// NewHeaderNode creates a node pointing at an externally stored resource.
func NewHeaderNode(id string, header VRHeader, metadata map[string]string) Node {
	h := header.Clone()
	return Node{
		ID:           id,
		Kind:         ContentVRHeader,
		Header:       &h,
		Metadata:     copyMetadata(metadata),
		DataTagNames: append([]string(nil), header.DataTagNames...),
		LastWritten:  time.Now().UTC(),
	}
}

// NewExternalNode creates a node that references external content.
func NewExternalNode(id string, src Source, metadata map[string]string) Node {
	return Node{
		ID:          id,
		Kind:        ContentExternal,
		External:    &src,
		Metadata:    copyMetadata(metadata),
		LastWritten: time.Now().UTC(),
	}
}

// TextContent returns the text of a text node.
func (n Node) TextContent() (string, error) {
	if n.Kind != ContentText {
		return "", fmt.Errorf("%w: node %s holds %s, not text", ErrInvalidNodeType, n.ID, n.Kind)
	}
	return n.Text, nil
}

// ResourceContent returns the nested resource of a resource node.
func (n Node) ResourceContent() (VectorResource, error) {
	if n.Kind != ContentResource || n.Resource == nil {
		return nil, fmt.Errorf("%w: node %s holds %s, not a resource", ErrInvalidNodeType, n.ID, n.Kind)
	}
	return n.Resource, nil
}

// HeaderContent returns the header of a VRHeader node.
func (n Node) HeaderContent() (VRHeader, error) {
	if n.Kind != ContentVRHeader || n.Header == nil {
		return VRHeader{}, fmt.Errorf("%w: node %s holds %s, not a header", ErrInvalidNodeType, n.ID, n.Kind)
	}
	return *n.Header, nil
}

// MetadataKeys returns the metadata keys in sorted order.
func (n Node) MetadataKeys() []string {
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetMetadata sets a single metadata value.
func (n *Node) SetMetadata(key, value string) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	n.Metadata[key] = value
}

// Clone deep-copies the node, including a nested resource.
func (n Node) Clone() Node {
	c := n
	c.Metadata = copyMetadata(n.Metadata)
	c.DataTagNames = append([]string(nil), n.DataTagNames...)
	if n.Resource != nil {
		c.Resource = n.Resource.Clone()
	}
	if n.Header != nil {
		h := n.Header.Clone()
		c.Header = &h
	}
	if n.External != nil {
		s := *n.External
		c.External = &s
	}
	return c
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
