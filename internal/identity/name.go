// Package identity parses and compares the names that own and request access
// to filesystem profiles.
//
// A full identity has the form "@@node/profile". A node identity omits the
// profile: "@@node". Names are case-insensitive and stored lowercased.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const prefix = "@@"

var (
	// ErrInvalidName is returned when a string is not a valid identity name.
	ErrInvalidName = errors.New("invalid identity name")

	// ErrMissingProfile is returned when a full identity is required but the
	// name only identifies a node.
	ErrMissingProfile = errors.New("identity has no profile")
)

var segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.\-]*$`)

// Name identifies a node, optionally narrowed to one of its profiles.
// The zero value is invalid.
type Name struct {
	node    string
	profile string
}

// Parse parses "@@node" or "@@node/profile".
func Parse(s string) (Name, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, prefix) {
		return Name{}, fmt.Errorf("%w: %q must start with %s", ErrInvalidName, s, prefix)
	}
	parts := strings.Split(strings.TrimPrefix(s, prefix), "/")
	if len(parts) > 2 {
		return Name{}, fmt.Errorf("%w: %q has too many segments", ErrInvalidName, s)
	}
	for _, p := range parts {
		if !segmentPattern.MatchString(p) {
			return Name{}, fmt.Errorf("%w: %q has invalid segment %q", ErrInvalidName, s, p)
		}
	}
	n := Name{node: parts[0]}
	if len(parts) == 2 {
		n.profile = parts[1]
	}
	return n, nil
}

// MustParse is Parse that panics on error.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// New builds a full identity from a node and profile.
func New(node, profile string) (Name, error) {
	node = strings.TrimPrefix(strings.ToLower(node), prefix)
	return Parse(prefix + node + "/" + strings.ToLower(profile))
}

// Node returns the node segment without the "@@" prefix.
func (n Name) Node() string { return n.node }

// Profile returns the profile segment, or "" for a node identity.
func (n Name) Profile() string { return n.profile }

// HasProfile reports whether n names a profile.
func (n Name) HasProfile() bool { return n.profile != "" }

// IsZero reports whether n is the zero value.
func (n Name) IsZero() bool { return n.node == "" }

// NodeName returns the node identity n belongs to.
func (n Name) NodeName() Name { return Name{node: n.node} }

// WithProfile returns the full identity of profile on n's node.
func (n Name) WithProfile(profile string) (Name, error) {
	return New(n.node, profile)
}

// Equal reports whether both names are identical, profile included.
func (n Name) Equal(other Name) bool {
	return n.node == other.node && n.profile == other.profile
}

// SameNode reports whether both names live on the same node.
func (n Name) SameNode(other Name) bool {
	return n.node == other.node
}

// String formats the name as "@@node" or "@@node/profile".
func (n Name) String() string {
	if n.profile == "" {
		return prefix + n.node
	}
	return prefix + n.node + "/" + n.profile
}

// MarshalText encodes the name.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText decodes a name.
func (n *Name) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
