package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" backend.
type MemoryStore struct {
	mu        sync.RWMutex
	closed    bool
	internals map[string]ProfileBlob
	resources map[string]map[string][]byte
	sfms      map[string]map[string][]byte
	logs      map[string][]AccessLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		internals: make(map[string]ProfileBlob),
		resources: make(map[string]map[string][]byte),
		sfms:      make(map[string]map[string][]byte),
		logs:      make(map[string][]AccessLog),
	}
}

var _ Store = (*MemoryStore)(nil)

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneBlob(b ProfileBlob) ProfileBlob {
	return ProfileBlob{
		Core:            cloneBytes(b.Core),
		Permissions:     cloneBytes(b.Permissions),
		Subscriptions:   cloneBytes(b.Subscriptions),
		SupportedModels: cloneBytes(b.SupportedModels),
		LastRead:        cloneBytes(b.LastRead),
	}
}

// SaveProfileFSInternals overwrites the snapshot of profile.
func (m *MemoryStore) SaveProfileFSInternals(ctx context.Context, profile string, blob ProfileBlob) error {
	return m.Commit(ctx, profile, Batch{Internals: &blob})
}

// GetProfileFSInternals returns the snapshot of profile.
func (m *MemoryStore) GetProfileFSInternals(ctx context.Context, profile string) (ProfileBlob, error) {
	if err := ValidateKeys(profile); err != nil {
		return ProfileBlob{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ProfileBlob{}, ErrClosed
	}
	blob, ok := m.internals[profile]
	if !ok {
		return ProfileBlob{}, ErrNotFound
	}
	return cloneBlob(blob), nil
}

// Commit applies b under a single lock.
func (m *MemoryStore) Commit(ctx context.Context, profile string, b Batch) error {
	if err := ValidateKeys(profile); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if b.Internals != nil {
		m.internals[profile] = cloneBlob(*b.Internals)
	}
	applyMemory(m.resources, profile, b.Resources)
	applyMemory(m.sfms, profile, b.SourceFileMaps)
	return nil
}

func applyMemory(dst map[string]map[string][]byte, profile string, writes map[string][]byte) {
	if len(writes) == 0 {
		return
	}
	records, ok := dst[profile]
	if !ok {
		records = make(map[string][]byte)
		dst[profile] = records
	}
	for k, v := range writes {
		if v == nil {
			delete(records, k)
			continue
		}
		records[k] = cloneBytes(v)
	}
}

func (m *MemoryStore) get(src map[string]map[string][]byte, profile, key string) ([]byte, error) {
	if err := ValidateKeys(profile, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := src[profile][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

// GetResource returns the resource stored under key.
func (m *MemoryStore) GetResource(_ context.Context, profile, key string) ([]byte, error) {
	return m.get(m.resources, profile, key)
}

// GetSourceFileMap returns the source file map stored under key.
func (m *MemoryStore) GetSourceFileMap(_ context.Context, profile, key string) ([]byte, error) {
	return m.get(m.sfms, profile, key)
}

// AddAccessLog appends entry.
func (m *MemoryStore) AddAccessLog(_ context.Context, profile string, entry AccessLog) error {
	if err := ValidateKeys(profile); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.logs[profile] = append(m.logs[profile], entry)
	return nil
}

// ListAccessLogs returns the newest entries first.
func (m *MemoryStore) ListAccessLogs(_ context.Context, profile string, limit int) ([]AccessLog, error) {
	if err := ValidateKeys(profile); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	logs := m.logs[profile]
	out := make([]AccessLog, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// TrimAccessLogs keeps the newest keep entries.
func (m *MemoryStore) TrimAccessLogs(_ context.Context, profile string, keep int) (int, error) {
	if err := ValidateKeys(profile); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	logs := m.logs[profile]
	if keep <= 0 || len(logs) <= keep {
		return 0, nil
	}
	n := len(logs) - keep
	m.logs[profile] = append([]AccessLog(nil), logs[n:]...)
	return n, nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
