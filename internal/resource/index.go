package resource

import (
	"fmt"
	"regexp"
	"sort"
)

// DataTag marks text that matches a pattern. Tags validated against a node's
// text are recorded in the resource's DataTagIndex for syntactic prefiltering.
type DataTag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern"`

	re *regexp.Regexp
}

// NewDataTag compiles a data tag.
func NewDataTag(name, description, pattern string) (DataTag, error) {
	if name == "" {
		return DataTag{}, fmt.Errorf("%w: empty name", ErrInvalidDataTag)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return DataTag{}, fmt.Errorf("%w: %s: %v", ErrInvalidDataTag, name, err)
	}
	return DataTag{Name: name, Description: description, Pattern: pattern, re: re}, nil
}

// Matches reports whether text matches the tag pattern.
func (t DataTag) Matches(text string) bool {
	re := t.re
	if re == nil {
		var err error
		if re, err = regexp.Compile(t.Pattern); err != nil {
			return false
		}
	}
	return re.MatchString(text)
}

// ValidateTags returns the names of the rules that match text.
func ValidateTags(text string, rules []DataTag) []string {
	var names []string
	for _, r := range rules {
		if r.Matches(text) {
			names = append(names, r.Name)
		}
	}
	return names
}

// idIndex maps a name to the ordered, unique node ids carrying it.
type idIndex map[string][]string

func (x idIndex) add(name, id string) {
	for _, existing := range x[name] {
		if existing == id {
			return
		}
	}
	x[name] = append(x[name], id)
}

func (x idIndex) remove(name, id string) {
	ids := x[name]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(x, name)
		return
	}
	x[name] = ids
}

func (x idIndex) names() []string {
	out := make([]string, 0, len(x))
	for k := range x {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (x idIndex) clone() idIndex {
	out := make(idIndex, len(x))
	for k, ids := range x {
		out[k] = append([]string(nil), ids...)
	}
	return out
}

// DataTagIndex maps data tag names to node ids.
type DataTagIndex struct {
	index idIndex
}

// NewDataTagIndex creates an empty index.
func NewDataTagIndex() *DataTagIndex {
	return &DataTagIndex{index: make(idIndex)}
}

// AddNode indexes every tag name on n.
func (d *DataTagIndex) AddNode(n Node) {
	for _, name := range n.DataTagNames {
		d.index.add(name, n.ID)
	}
}

// RemoveNode drops n from every tag it carries.
func (d *DataTagIndex) RemoveNode(n Node) {
	for _, name := range n.DataTagNames {
		d.index.remove(name, n.ID)
	}
}

// NodeIDs returns the ids carrying tag name.
func (d *DataTagIndex) NodeIDs(name string) []string {
	return append([]string(nil), d.index[name]...)
}

// Names returns all indexed tag names, sorted.
func (d *DataTagIndex) Names() []string {
	return d.index.names()
}

// Clone deep-copies the index.
func (d *DataTagIndex) Clone() *DataTagIndex {
	return &DataTagIndex{index: d.index.clone()}
}

// MetadataIndex maps metadata keys to node ids.
type MetadataIndex struct {
	index idIndex
}

// NewMetadataIndex creates an empty index.
func NewMetadataIndex() *MetadataIndex {
	return &MetadataIndex{index: make(idIndex)}
}

// AddNode indexes every metadata key on n.
func (m *MetadataIndex) AddNode(n Node) {
	for key := range n.Metadata {
		m.index.add(key, n.ID)
	}
}

// RemoveNode drops n from every key it carries.
func (m *MetadataIndex) RemoveNode(n Node) {
	for key := range n.Metadata {
		m.index.remove(key, n.ID)
	}
}

// NodeIDs returns the ids carrying key.
func (m *MetadataIndex) NodeIDs(key string) []string {
	return append([]string(nil), m.index[key]...)
}

// Keys returns all indexed metadata keys, sorted.
func (m *MetadataIndex) Keys() []string {
	return m.index.names()
}

// Clone deep-copies the index.
func (m *MetadataIndex) Clone() *MetadataIndex {
	return &MetadataIndex{index: m.index.clone()}
}
