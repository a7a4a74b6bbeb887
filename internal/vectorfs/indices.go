package vectorfs

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// SubscriptionIndex records which identities subscribe to a shared path.
type SubscriptionIndex struct {
	subscribers map[string][]identity.Name
}

// NewSubscriptionIndex creates an empty index.
func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{subscribers: make(map[string][]identity.Name)}
}

// Add subscribes name to path. Adding twice has no effect.
func (s *SubscriptionIndex) Add(path resource.VRPath, name identity.Name) {
	key := path.String()
	for _, existing := range s.subscribers[key] {
		if existing.Equal(name) {
			return
		}
	}
	s.subscribers[key] = append(s.subscribers[key], name)
}

// Remove unsubscribes name from path.
func (s *SubscriptionIndex) Remove(path resource.VRPath, name identity.Name) {
	key := path.String()
	subs := s.subscribers[key]
	for i, existing := range subs {
		if existing.Equal(name) {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subscribers, key)
		return
	}
	s.subscribers[key] = subs
}

// Subscribers returns the identities subscribed to path.
func (s *SubscriptionIndex) Subscribers(path resource.VRPath) []identity.Name {
	return append([]identity.Name(nil), s.subscribers[path.String()]...)
}

// RemoveSubtree drops subscriptions at path and below.
func (s *SubscriptionIndex) RemoveSubtree(path resource.VRPath) {
	for key := range s.subscribers {
		p, err := resource.ParseVRPath(key)
		if err != nil {
			continue
		}
		if p.Equal(path) || path.IsAncestorOf(p) {
			delete(s.subscribers, key)
		}
	}
}

// Clone deep-copies the index.
func (s *SubscriptionIndex) Clone() *SubscriptionIndex {
	c := NewSubscriptionIndex()
	for k, v := range s.subscribers {
		c.subscribers[k] = append([]identity.Name(nil), v...)
	}
	return c
}

// MarshalJSON encodes path → subscribers.
func (s *SubscriptionIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.subscribers)
}

// UnmarshalJSON decodes path → subscribers.
func (s *SubscriptionIndex) UnmarshalJSON(data []byte) error {
	subs := make(map[string][]identity.Name)
	if err := json.Unmarshal(data, &subs); err != nil {
		return err
	}
	s.subscribers = subs
	return nil
}

// LastRead records when a path was last read and by whom.
type LastRead struct {
	Time      time.Time     `json:"time"`
	Requester identity.Name `json:"requester"`
}

// LastReadIndex maps paths to their most recent read. Readers update it
// while holding only the profile read lock, so it carries its own.
type LastReadIndex struct {
	mu    sync.RWMutex
	index map[string]LastRead
}

// NewLastReadIndex creates an empty index.
func NewLastReadIndex() *LastReadIndex {
	return &LastReadIndex{index: make(map[string]LastRead)}
}

// Update records a read of path at t.
func (l *LastReadIndex) Update(path resource.VRPath, t time.Time, requester identity.Name) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[path.String()] = LastRead{Time: t, Requester: requester}
}

// Get returns the last read of path.
func (l *LastReadIndex) Get(path resource.VRPath) (LastRead, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.index[path.String()]
	return r, ok
}

// GetOrNow returns the last read time of path, or the current time if it was
// never read.
func (l *LastReadIndex) GetOrNow(path resource.VRPath) time.Time {
	if r, ok := l.Get(path); ok {
		return r.Time
	}
	return time.Now().UTC()
}

// Remove forgets path.
func (l *LastReadIndex) Remove(path resource.VRPath) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.index, path.String())
}

// PathsReadSince returns the paths read at or after t, sorted.
func (l *LastReadIndex) PathsReadSince(t time.Time) []resource.VRPath {
	var keys []string
	l.mu.RLock()
	for k, r := range l.index {
		if !r.Time.Before(t) {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()
	sort.Strings(keys)
	out := make([]resource.VRPath, 0, len(keys))
	for _, k := range keys {
		if p, err := resource.ParseVRPath(k); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Clone copies the index.
func (l *LastReadIndex) Clone() *LastReadIndex {
	c := NewLastReadIndex()
	l.mu.RLock()
	defer l.mu.RUnlock()
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}

// MarshalJSON encodes path → last read.
func (l *LastReadIndex) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(l.index)
}

// UnmarshalJSON decodes path → last read.
func (l *LastReadIndex) UnmarshalJSON(data []byte) error {
	idx := make(map[string]LastRead)
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = idx
	return nil
}
