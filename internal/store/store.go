// Package store defines the persistence contract for VecFS profiles.
//
// Each profile owns three kinds of records:
//   - one ProfileBlob holding the serialized filesystem internals
//   - vector resources keyed by their reference string
//   - source file maps keyed by the same reference string
//
// Backends commit a Batch atomically, so the internals snapshot and the
// resources it points at never disagree after a crash.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrInvalidKey is returned for empty profile names or record keys.
	ErrInvalidKey = errors.New("invalid store key")
)

// ProfileBlob is the serialized form of one profile's filesystem internals.
// Core holds the core resource in its compressed binary form; the other
// fields are JSON.
type ProfileBlob struct {
	Core            []byte
	Permissions     []byte
	Subscriptions   []byte
	SupportedModels []byte
	LastRead        []byte
}

// IsEmpty reports whether the blob carries no core resource.
func (b ProfileBlob) IsEmpty() bool {
	return len(b.Core) == 0
}

// Batch is a set of writes committed in a single transaction. A nil value in
// Resources or SourceFileMaps deletes that key.
type Batch struct {
	Internals      *ProfileBlob
	Resources      map[string][]byte
	SourceFileMaps map[string][]byte
}

// PutResource queues a resource write.
func (b *Batch) PutResource(key string, data []byte) {
	if b.Resources == nil {
		b.Resources = make(map[string][]byte)
	}
	b.Resources[key] = data
}

// DeleteResource queues a resource deletion.
func (b *Batch) DeleteResource(key string) {
	b.PutResource(key, nil)
}

// PutSourceFileMap queues a source file map write.
func (b *Batch) PutSourceFileMap(key string, data []byte) {
	if b.SourceFileMaps == nil {
		b.SourceFileMaps = make(map[string][]byte)
	}
	b.SourceFileMaps[key] = data
}

// DeleteSourceFileMap queues a source file map deletion.
func (b *Batch) DeleteSourceFileMap(key string) {
	b.PutSourceFileMap(key, nil)
}

// AccessKind distinguishes read from write access.
type AccessKind string

const (
	AccessRead  AccessKind = "read"
	AccessWrite AccessKind = "write"
)

// AccessLog records one granted reader or writer.
type AccessLog struct {
	Requester string     `json:"requester"`
	Path      string     `json:"path"`
	Kind      AccessKind `json:"kind"`
	Time      time.Time  `json:"time"`
}

// Store persists profile internals, resources and access logs.
//
// Implementations must be safe for concurrent use. Resource and source file
// map payloads are opaque to the store apart from compression.
type Store interface {
	// SaveProfileFSInternals overwrites the internals snapshot of profile.
	SaveProfileFSInternals(ctx context.Context, profile string, blob ProfileBlob) error

	// GetProfileFSInternals returns the snapshot of profile or ErrNotFound.
	GetProfileFSInternals(ctx context.Context, profile string) (ProfileBlob, error)

	// Commit applies every write in b atomically.
	Commit(ctx context.Context, profile string, b Batch) error

	// GetResource returns the resource stored under key or ErrNotFound.
	GetResource(ctx context.Context, profile, key string) ([]byte, error)

	// GetSourceFileMap returns the source file map stored under key or ErrNotFound.
	GetSourceFileMap(ctx context.Context, profile, key string) ([]byte, error)

	// AddAccessLog appends an access record for profile.
	AddAccessLog(ctx context.Context, profile string, entry AccessLog) error

	// ListAccessLogs returns the newest records first, at most limit when limit > 0.
	ListAccessLogs(ctx context.Context, profile string, limit int) ([]AccessLog, error)

	// TrimAccessLogs deletes all but the newest keep records of profile and
	// returns how many were deleted. keep <= 0 deletes nothing.
	TrimAccessLogs(ctx context.Context, profile string, keep int) (int, error)

	// Close releases the backend.
	Close() error
}

// ValidateKeys rejects empty profile names and keys.
func ValidateKeys(profile string, keys ...string) error {
	if profile == "" {
		return ErrInvalidKey
	}
	for _, k := range keys {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}
