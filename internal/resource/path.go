package resource

import (
	"fmt"
	"strings"
)

// VRPath addresses a node inside a vector resource tree as an ordered list of
// node ids. The zero value is the root path "/".
type VRPath struct {
	ids []string
}

// Root returns the root path "/".
func Root() VRPath {
	return VRPath{}
}

// NewVRPath builds a path from already separated ids. Each id is cleaned.
func NewVRPath(ids ...string) VRPath {
	p := VRPath{ids: make([]string, 0, len(ids))}
	for _, id := range ids {
		p.ids = append(p.ids, CleanPathID(id))
	}
	return p
}

// ParseVRPath parses "/a/b/c". The string must start with "/".
func ParseVRPath(s string) (VRPath, error) {
	if !strings.HasPrefix(s, "/") {
		return VRPath{}, fmt.Errorf("%w: %q", ErrInvalidPathString, s)
	}
	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return Root(), nil
	}
	return NewVRPath(strings.Split(trimmed, "/")...), nil
}

// MustParseVRPath is ParseVRPath that panics on error. Intended for tests and
// package-level constants.
func MustParseVRPath(s string) VRPath {
	p, err := ParseVRPath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// CleanPathID removes characters that would break a path or a reference string.
func CleanPathID(id string) string {
	return strings.NewReplacer("/", "-", ":", "_").Replace(id)
}

// IsRoot reports whether p points at "/".
func (p VRPath) IsRoot() bool {
	return len(p.ids) == 0
}

// Depth is 0 for both the root and first-level nodes, matching UntilDepth.
func (p VRPath) Depth() int {
	if len(p.ids) == 0 {
		return 0
	}
	return len(p.ids) - 1
}

// DepthInclusive counts every id including the final one.
func (p VRPath) DepthInclusive() int {
	return len(p.ids)
}

// IDs returns a copy of the path ids.
func (p VRPath) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

// Push returns a new path with id appended.
func (p VRPath) Push(id string) VRPath {
	ids := make([]string, len(p.ids), len(p.ids)+1)
	copy(ids, p.ids)
	return VRPath{ids: append(ids, CleanPathID(id))}
}

// Append returns p followed by every id of other.
func (p VRPath) Append(other VRPath) VRPath {
	ids := make([]string, 0, len(p.ids)+len(other.ids))
	ids = append(ids, p.ids...)
	ids = append(ids, other.ids...)
	return VRPath{ids: ids}
}

// Parent returns the path without its last id. The parent of root is root.
func (p VRPath) Parent() VRPath {
	if len(p.ids) == 0 {
		return p
	}
	return VRPath{ids: p.IDs()[:len(p.ids)-1]}
}

// FrontPop splits off the first id.
func (p VRPath) FrontPop() (string, VRPath) {
	if len(p.ids) == 0 {
		return "", p
	}
	return p.ids[0], VRPath{ids: p.IDs()[1:]}
}

// LastID returns the id of the node the path points at.
func (p VRPath) LastID() (string, error) {
	if len(p.ids) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidVRPath, p)
	}
	return p.ids[len(p.ids)-1], nil
}

// Equal reports whether both paths hold the same ids.
func (p VRPath) Equal(other VRPath) bool {
	if len(p.ids) != len(other.ids) {
		return false
	}
	for i := range p.ids {
		if p.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// IsParentOf reports whether p is the immediate parent of child.
func (p VRPath) IsParentOf(child VRPath) bool {
	return len(child.ids) == len(p.ids)+1 && p.IsAncestorOf(child)
}

// IsAncestorOf reports whether p is a strict prefix of other.
func (p VRPath) IsAncestorOf(other VRPath) bool {
	if len(other.ids) <= len(p.ids) {
		return false
	}
	for i := range p.ids {
		if p.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// Lineage returns every non-root prefix of p from depth 1 down to p itself.
func (p VRPath) Lineage() []VRPath {
	out := make([]VRPath, 0, len(p.ids))
	for i := 1; i <= len(p.ids); i++ {
		out = append(out, VRPath{ids: p.IDs()[:i]})
	}
	return out
}

// Rebase swaps the from prefix of p for to. p must equal from or descend from it.
func (p VRPath) Rebase(from, to VRPath) (VRPath, bool) {
	if !p.Equal(from) && !from.IsAncestorOf(p) {
		return p, false
	}
	return to.Append(VRPath{ids: p.IDs()[len(from.ids):]}), true
}

// String formats the path as "/a/b".
func (p VRPath) String() string {
	return "/" + strings.Join(p.ids, "/")
}

// MarshalText encodes the path in its string form.
func (p VRPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes "/a/b".
func (p *VRPath) UnmarshalText(b []byte) error {
	parsed, err := ParseVRPath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
