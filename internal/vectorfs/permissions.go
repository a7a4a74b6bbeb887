package vectorfs

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// ReadPermission controls who may read a path.
type ReadPermission string

const (
	ReadPrivate      ReadPermission = "private"
	ReadNodeProfiles ReadPermission = "node_profiles"
	ReadWhitelist    ReadPermission = "whitelist"
	ReadPublic       ReadPermission = "public"
)

// ParseReadPermission validates s.
func ParseReadPermission(s string) (ReadPermission, error) {
	switch p := ReadPermission(s); p {
	case ReadPrivate, ReadNodeProfiles, ReadWhitelist, ReadPublic:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown read permission %q", ErrDataConversion, s)
}

// WritePermission controls who may write a path.
type WritePermission string

const (
	WritePrivate      WritePermission = "private"
	WriteNodeProfiles WritePermission = "node_profiles"
	WriteWhitelist    WritePermission = "whitelist"
)

// ParseWritePermission validates s.
func ParseWritePermission(s string) (WritePermission, error) {
	switch p := WritePermission(s); p {
	case WritePrivate, WriteNodeProfiles, WriteWhitelist:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown write permission %q", ErrDataConversion, s)
}

// WhitelistPermission is what a whitelisted identity may do.
type WhitelistPermission string

const (
	WhitelistRead      WhitelistPermission = "read"
	WhitelistWrite     WhitelistPermission = "write"
	WhitelistReadWrite WhitelistPermission = "read_write"
)

// ParseWhitelistPermission validates s.
func ParseWhitelistPermission(s string) (WhitelistPermission, error) {
	switch p := WhitelistPermission(s); p {
	case WhitelistRead, WhitelistWrite, WhitelistReadWrite:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown whitelist permission %q", ErrDataConversion, s)
}

func (w WhitelistPermission) allowsRead() bool {
	return w == WhitelistRead || w == WhitelistReadWrite
}

func (w WhitelistPermission) allowsWrite() bool {
	return w == WhitelistWrite || w == WhitelistReadWrite
}

// PathPermission is the permission entry stored for one path. ReadProfiles
// and WriteProfiles hold the full names granted by the node profiles modes.
type PathPermission struct {
	Read          ReadPermission                 `json:"read_permission"`
	Write         WritePermission                `json:"write_permission"`
	ReadProfiles  []string                       `json:"read_profiles,omitempty"`
	WriteProfiles []string                       `json:"write_profiles,omitempty"`
	Whitelist     map[string]WhitelistPermission `json:"whitelist,omitempty"`
}

// PermissionOption adjusts a permission entry being set.
type PermissionOption func(*PathPermission)

// WithReadProfiles lists the profiles of the owner's node that ReadNodeProfiles
// grants. Without it an entry keeps its current list.
func WithReadProfiles(names ...identity.Name) PermissionOption {
	return func(p *PathPermission) {
		p.ReadProfiles = profileStrings(names)
	}
}

// WithWriteProfiles lists the profiles of the owner's node that
// WriteNodeProfiles grants. Without it an entry keeps its current list.
func WithWriteProfiles(names ...identity.Name) PermissionOption {
	return func(p *PathPermission) {
		p.WriteProfiles = profileStrings(names)
	}
}

func profileStrings(names []identity.Name) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n.String())
	}
	sort.Strings(out)
	return out
}

// withModes sets read and write, applies opts and drops a profile list whose
// mode is no longer node profiles.
func (p PathPermission) withModes(read ReadPermission, write WritePermission, opts ...PermissionOption) PathPermission {
	c := p.Clone()
	c.Read, c.Write = read, write
	for _, opt := range opts {
		opt(&c)
	}
	if c.Read != ReadNodeProfiles {
		c.ReadProfiles = nil
	}
	if c.Write != WriteNodeProfiles {
		c.WriteProfiles = nil
	}
	return c
}

// PrivatePermission denies everyone except the owner.
func PrivatePermission() PathPermission {
	return PathPermission{Read: ReadPrivate, Write: WritePrivate}
}

// Clone deep-copies the whitelist and profile lists.
func (p PathPermission) Clone() PathPermission {
	c := p
	if p.ReadProfiles != nil {
		c.ReadProfiles = append([]string(nil), p.ReadProfiles...)
	}
	if p.WriteProfiles != nil {
		c.WriteProfiles = append([]string(nil), p.WriteProfiles...)
	}
	if p.Whitelist != nil {
		c.Whitelist = make(map[string]WhitelistPermission, len(p.Whitelist))
		for k, v := range p.Whitelist {
			c.Whitelist[k] = v
		}
	}
	return c
}

// whitelisted returns the whitelist entry matching requester, trying the full
// identity before the node identity.
func (p PathPermission) whitelisted(requester identity.Name) (WhitelistPermission, bool) {
	if w, ok := p.Whitelist[requester.String()]; ok {
		return w, true
	}
	w, ok := p.Whitelist[requester.NodeName().String()]
	return w, ok
}

type permissionLookup func(path resource.VRPath) (PathPermission, bool)

// access selects the read or write side of a permission check.
type access int

const (
	accessRead access = iota
	accessWrite
)

func (a access) deniedKind() error {
	if a == accessWrite {
		return ErrInvalidWriterPermission
	}
	return ErrInvalidReaderPermission
}

// validateAccess requires every level from depth 1 down to path to grant
// access. Root is checked only when it is the target. The owner always passes.
func validateAccess(owner, requester identity.Name, path resource.VRPath, a access, lookup permissionLookup) error {
	if requester.Equal(owner) {
		return nil
	}
	levels := path.Lineage()
	if path.IsRoot() {
		levels = []resource.VRPath{resource.Root()}
	}
	for _, level := range levels {
		perm, ok := lookup(level)
		if !ok {
			return denied(a.deniedKind(), requester, path, "no permission entry at "+level.String())
		}
		if !grants(owner, requester, level, perm, a, lookup) {
			return denied(a.deniedKind(), requester, path, "access denied at "+level.String())
		}
	}
	return nil
}

func grants(owner, requester identity.Name, level resource.VRPath, perm PathPermission, a access, lookup permissionLookup) bool {
	if a == accessRead {
		switch perm.Read {
		case ReadPublic:
			return true
		case ReadNodeProfiles:
			return nodeProfileGrants(owner, requester, perm.ReadProfiles)
		case ReadWhitelist:
			return whitelistGrants(requester, level, a, lookup)
		}
		return false
	}
	switch perm.Write {
	case WriteNodeProfiles:
		return nodeProfileGrants(owner, requester, perm.WriteProfiles)
	case WriteWhitelist:
		return whitelistGrants(requester, level, a, lookup)
	}
	return false
}

// nodeProfileGrants reports whether requester is a profile of the owner's
// node named in profiles.
func nodeProfileGrants(owner, requester identity.Name, profiles []string) bool {
	if !requester.HasProfile() || !requester.SameNode(owner) {
		return false
	}
	for _, raw := range profiles {
		listed, err := identity.Parse(raw)
		if err != nil {
			continue
		}
		if listed.SameNode(owner) && listed.Profile() == requester.Profile() {
			return true
		}
	}
	return false
}

// whitelistGrants looks for requester in the whitelist of level and of every
// ancestor whose entry is also whitelist based.
func whitelistGrants(requester identity.Name, level resource.VRPath, a access, lookup permissionLookup) bool {
	for cur := level; ; cur = cur.Parent() {
		if perm, ok := lookup(cur); ok {
			isWhitelist := perm.Read == ReadWhitelist
			if a == accessWrite {
				isWhitelist = perm.Write == WriteWhitelist
			}
			if isWhitelist {
				if w, found := perm.whitelisted(requester); found {
					if (a == accessRead && w.allowsRead()) || (a == accessWrite && w.allowsWrite()) {
						return true
					}
				}
			}
		}
		if cur.IsRoot() {
			return false
		}
	}
}

// PermissionsIndex maps every path of a profile to its permission entry.
type PermissionsIndex struct {
	owner   identity.Name
	entries map[string]PathPermission
}

// NewPermissionsIndex creates an empty index owned by profile.
func NewPermissionsIndex(owner identity.Name) *PermissionsIndex {
	return &PermissionsIndex{owner: owner, entries: make(map[string]PathPermission)}
}

// Owner returns the profile that owns the index.
func (p *PermissionsIndex) Owner() identity.Name {
	return p.owner
}

func (p *PermissionsIndex) lookup(path resource.VRPath) (PathPermission, bool) {
	perm, ok := p.entries[path.String()]
	return perm, ok
}

// Insert sets the entry for path.
func (p *PermissionsIndex) Insert(path resource.VRPath, perm PathPermission) {
	p.entries[path.String()] = perm.Clone()
}

// Remove deletes the entry for path only.
func (p *PermissionsIndex) Remove(path resource.VRPath) {
	delete(p.entries, path.String())
}

// RemoveSubtree deletes the entries for path and everything below it.
func (p *PermissionsIndex) RemoveSubtree(path resource.VRPath) {
	for _, existing := range p.Paths() {
		if existing.Equal(path) || path.IsAncestorOf(existing) {
			delete(p.entries, existing.String())
		}
	}
}

// Get returns the entry for path.
func (p *PermissionsIndex) Get(path resource.VRPath) (PathPermission, error) {
	perm, ok := p.lookup(path)
	if !ok {
		return PathPermission{}, pathErr(path, ErrNoPermissionEntryAtPath)
	}
	return perm.Clone(), nil
}

// SetWhitelist grants name a whitelist permission at path.
func (p *PermissionsIndex) SetWhitelist(path resource.VRPath, name identity.Name, w WhitelistPermission) error {
	perm, ok := p.lookup(path)
	if !ok {
		return pathErr(path, ErrNoPermissionEntryAtPath)
	}
	perm = perm.Clone()
	if perm.Whitelist == nil {
		perm.Whitelist = make(map[string]WhitelistPermission)
	}
	perm.Whitelist[name.String()] = w
	p.entries[path.String()] = perm
	return nil
}

// RemoveWhitelist drops name from the whitelist at path.
func (p *PermissionsIndex) RemoveWhitelist(path resource.VRPath, name identity.Name) error {
	perm, ok := p.lookup(path)
	if !ok {
		return pathErr(path, ErrNoPermissionEntryAtPath)
	}
	perm = perm.Clone()
	delete(perm.Whitelist, name.String())
	p.entries[path.String()] = perm
	return nil
}

// CopySubtree duplicates the entries under from to the same relative paths
// under to.
func (p *PermissionsIndex) CopySubtree(from, to resource.VRPath) {
	for _, existing := range p.Paths() {
		if rebased, ok := existing.Rebase(from, to); ok {
			p.entries[rebased.String()] = p.entries[existing.String()].Clone()
		}
	}
}

// MoveSubtree relocates the entries under from to to.
func (p *PermissionsIndex) MoveSubtree(from, to resource.VRPath) {
	moved := make(map[string]PathPermission)
	for _, existing := range p.Paths() {
		if rebased, ok := existing.Rebase(from, to); ok {
			moved[rebased.String()] = p.entries[existing.String()]
			delete(p.entries, existing.String())
		}
	}
	for k, v := range moved {
		p.entries[k] = v
	}
}

// Paths returns every path with an entry in string order.
func (p *PermissionsIndex) Paths() []resource.VRPath {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]resource.VRPath, 0, len(keys))
	for _, k := range keys {
		out = append(out, resource.MustParseVRPath(k))
	}
	return out
}

// ValidateReadAccess returns a *PermissionError unless requester may read path.
func (p *PermissionsIndex) ValidateReadAccess(requester identity.Name, path resource.VRPath) error {
	return validateAccess(p.owner, requester, path, accessRead, p.lookup)
}

// ValidateWriteAccess returns a *PermissionError unless requester may write path.
func (p *PermissionsIndex) ValidateWriteAccess(requester identity.Name, path resource.VRPath) error {
	return validateAccess(p.owner, requester, path, accessWrite, p.lookup)
}

// FindPathsWithReadPermission filters paths down to those requester may read.
func (p *PermissionsIndex) FindPathsWithReadPermission(requester identity.Name, paths []resource.VRPath) []resource.VRPath {
	var out []resource.VRPath
	for _, path := range paths {
		if p.ValidateReadAccess(requester, path) == nil {
			out = append(out, path)
		}
	}
	return out
}

// Clone deep-copies the index.
func (p *PermissionsIndex) Clone() *PermissionsIndex {
	c := NewPermissionsIndex(p.owner)
	for k, v := range p.entries {
		c.entries[k] = v.Clone()
	}
	return c
}

// Export keys that never collide with a path, which always starts with "/".
const (
	exportOwnerKey     = "owner"
	exportRequesterKey = "requester"
)

// ExportForReader flattens the index into the context map handed to the
// traversal validator. Every entry is JSON encoded under its path string.
func (p *PermissionsIndex) ExportForReader(requester identity.Name) (map[string]string, error) {
	out := make(map[string]string, len(p.entries)+2)
	for k, v := range p.entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: exporting permission at %s: %v", ErrDataConversion, k, err)
		}
		out[k] = string(raw)
	}
	out[exportOwnerKey] = p.owner.String()
	out[exportRequesterKey] = requester.String()
	return out, nil
}

// readValidator checks read access against an exported map. Entries are
// decoded lazily along the visited path.
func readValidator(_ resource.Node, path resource.VRPath, exported map[string]string) bool {
	owner, err := identity.Parse(exported[exportOwnerKey])
	if err != nil {
		return false
	}
	requester, err := identity.Parse(exported[exportRequesterKey])
	if err != nil {
		return false
	}
	lookup := func(p resource.VRPath) (PathPermission, bool) {
		raw, ok := exported[p.String()]
		if !ok {
			return PathPermission{}, false
		}
		var perm PathPermission
		if err := json.Unmarshal([]byte(raw), &perm); err != nil {
			return PathPermission{}, false
		}
		return perm, true
	}
	return validateAccess(owner, requester, path, accessRead, lookup) == nil
}

type permissionsJSON struct {
	Owner   identity.Name             `json:"owner"`
	Entries map[string]PathPermission `json:"fs_permissions"`
}

// MarshalJSON encodes the owner and every entry.
func (p *PermissionsIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(permissionsJSON{Owner: p.owner, Entries: p.entries})
}

// UnmarshalJSON decodes an index, rejecting malformed paths.
func (p *PermissionsIndex) UnmarshalJSON(data []byte) error {
	var in permissionsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for k := range in.Entries {
		if _, err := resource.ParseVRPath(k); err != nil {
			return err
		}
	}
	p.owner = in.Owner
	p.entries = in.Entries
	if p.entries == nil {
		p.entries = make(map[string]PathPermission)
	}
	return nil
}
