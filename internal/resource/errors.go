package resource

import "errors"

// Vector resource errors.
var (
	// ErrInvalidNodeID is returned for id 0, an id past node_count, or an unknown key.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrInvalidVRPath is returned when a path does not resolve inside the tree.
	ErrInvalidVRPath = errors.New("invalid vector resource path")

	// ErrInvalidPathString is returned when a path string does not start with "/".
	ErrInvalidPathString = errors.New("invalid path string")

	// ErrNoNodeFound is returned by searches that require at least one match.
	ErrNoNodeFound = errors.New("no node found")

	// ErrInvalidNodeType is returned when a node does not hold the requested content.
	ErrInvalidNodeType = errors.New("invalid node content type")

	// ErrUnsupportedBaseType is returned when decoding an unknown resource variant.
	ErrUnsupportedBaseType = errors.New("unsupported resource base type")

	// ErrOrderedOperationsUnsupported is returned when an ordered operation
	// (proximity, append, pop) is requested on a keyed resource.
	ErrOrderedOperationsUnsupported = errors.New("resource does not support ordered operations")

	// ErrInvalidDataTag is returned when a data tag has an empty name or bad regex.
	ErrInvalidDataTag = errors.New("invalid data tag")
)
