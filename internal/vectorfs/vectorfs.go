// Package vectorfs implements a permission-aware, vector-indexed virtual
// filesystem. Every profile owns a tree of folders and items kept in memory as
// a core Map resource; the vector resources behind items are persisted
// separately and loaded by reference string.
//
// All access goes through capability handles. NewReader and NewWriter check
// the requester against the profile's permission index, walking every
// ancestor of the target path, and only then return a *Reader or *Writer.
// Searches inject the same check into traversal so unreadable folders are
// never expanded.
package vectorfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

const instrumentationName = "vecfs.vectorfs"

// VectorFS holds the internals of every profile on the node.
//
// Lock order is always mu before storeMu.
type VectorFS struct {
	nodeName  identity.Name
	generator embeddings.Generator
	logger    *zap.Logger
	tracer    trace.Tracer
	seed      SeedPolicy
	now       func() time.Time

	mu       sync.RWMutex
	profiles map[string]*Internals

	storeMu sync.RWMutex
	store   store.Store

	logRetention int
	logMu        sync.Mutex
	logAppends   map[string]int
}

// Option configures a VectorFS.
type Option func(*VectorFS)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *VectorFS) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithSeedPolicy replaces the default folders created for new profiles.
func WithSeedPolicy(p SeedPolicy) Option {
	return func(v *VectorFS) {
		v.seed = p
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(v *VectorFS) {
		if t != nil {
			v.tracer = t
		}
	}
}

// WithAccessLogRetention bounds the access log of each profile to about keep
// entries. The oldest entries are dropped every keep/10 appends, at least
// every append and at most every 64. keep <= 0 keeps everything.
func WithAccessLogRetention(keep int) Option {
	return func(v *VectorFS) {
		v.logRetention = keep
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *VectorFS) {
		if now != nil {
			v.now = now
		}
	}
}

// New loads the stored internals of every profile and initializes the ones
// that have never been saved. Default folders are not created here; call
// InitializeNewProfiles with createDefaultFolders for that.
func New(
	ctx context.Context,
	generator embeddings.Generator,
	supportedModels []resource.ModelType,
	profiles []identity.Name,
	st store.Store,
	nodeName identity.Name,
	opts ...Option,
) (*VectorFS, error) {
	if generator == nil {
		return nil, errors.New("embedding generator is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	v := &VectorFS{
		nodeName:  nodeName.NodeName(),
		generator: generator,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		seed:      DefaultSeedPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
		profiles:  make(map[string]*Internals),
		store:     st,

		logAppends: make(map[string]int),
	}
	for _, opt := range opts {
		opt(v)
	}

	for _, p := range profiles {
		in, err := v.GetProfileFSInternals(ctx, p)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading profile %s: %w", p, err)
		}
		v.profiles[p.String()] = in
		recordEntries(p.String(), in)
	}

	if err := v.InitializeNewProfiles(ctx, v.nodeName, profiles, generator.ModelType(), supportedModels, false); err != nil {
		return nil, err
	}
	v.logger.Info("vector fs loaded",
		zap.String("node", v.nodeName.String()),
		zap.Int("profiles", len(profiles)),
		zap.String("model", generator.ModelType().String()))
	return v, nil
}

// NodeName returns the node the filesystem belongs to.
func (v *VectorFS) NodeName() identity.Name {
	return v.nodeName
}

// Generator returns the generator used for query embeddings.
func (v *VectorFS) Generator() embeddings.Generator {
	return v.generator
}

// Profiles returns the names of every loaded profile.
func (v *VectorFS) Profiles() []identity.Name {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]identity.Name, 0, len(v.profiles))
	for _, in := range v.profiles {
		out = append(out, in.Owner())
	}
	return out
}

// InitializeProfile creates empty internals for profile unless they already
// exist in the store, and loads them. Only requesters from this node may do so.
func (v *VectorFS) InitializeProfile(ctx context.Context, requester, profile identity.Name, defaultModel resource.ModelType, supported []resource.ModelType) error {
	if err := v.validateNodeAction(requester, fmt.Sprintf("failed initializing profile %s", profile)); err != nil {
		return err
	}
	if !profile.HasProfile() {
		return fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}

	in, err := v.GetProfileFSInternals(ctx, profile)
	if errors.Is(err, store.ErrNotFound) {
		in = newInternals(profile, defaultModel, supported)
		if err := v.SaveProfileFSInternals(ctx, profile, in); err != nil {
			return err
		}
		v.logger.Info("profile initialized",
			zap.String("vfs.profile", profile.String()),
			zap.String("model", defaultModel.String()))
	} else if err != nil {
		return err
	}

	v.mu.Lock()
	v.profiles[profile.String()] = in
	v.mu.Unlock()
	recordEntries(profile.String(), in)
	return nil
}

// InitializeNewProfiles initializes every profile not loaded yet and, when
// createDefaultFolders is set, applies the seed policy to it.
func (v *VectorFS) InitializeNewProfiles(
	ctx context.Context,
	requester identity.Name,
	profiles []identity.Name,
	defaultModel resource.ModelType,
	supported []resource.ModelType,
	createDefaultFolders bool,
) error {
	for _, p := range profiles {
		v.mu.RLock()
		_, loaded := v.profiles[p.String()]
		v.mu.RUnlock()
		if loaded {
			continue
		}
		if err := v.InitializeProfile(ctx, requester, p, defaultModel, supported); err != nil {
			return err
		}
		if createDefaultFolders && v.seed != nil {
			if err := v.seed(ctx, v, p); err != nil {
				return fmt.Errorf("seeding profile %s: %w", p, err)
			}
		}
	}
	return nil
}

// SetProfileSupportedModels replaces the embedding models a profile accepts
// besides its default.
func (v *VectorFS) SetProfileSupportedModels(ctx context.Context, requester, profile identity.Name, models []resource.ModelType) error {
	if err := v.validateNodeAction(requester, "failed setting profile supported models"); err != nil {
		return err
	}
	return v.update(ctx, profile, "set_supported_models", func(in *Internals, _ *store.Batch) error {
		in.SupportedModels = append([]resource.ModelType(nil), models...)
		return nil
	})
}

// RevertInternalsToLastDBSave discards in-memory changes of profile.
func (v *VectorFS) RevertInternalsToLastDBSave(ctx context.Context, requester, profile identity.Name) error {
	if err := v.validateProfileAction(requester, profile, "failed reverting internals"); err != nil {
		return err
	}
	in, err := v.GetProfileFSInternals(ctx, profile)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.profiles[profile.String()] = in
	v.mu.Unlock()
	return nil
}

func (v *VectorFS) validateNodeAction(requester identity.Name, msg string) error {
	if requester.SameNode(v.nodeName) {
		return nil
	}
	return denied(ErrInvalidNodeActionPermission, requester, resource.Root(), msg)
}

func (v *VectorFS) validateProfileAction(requester, profile identity.Name, msg string) error {
	v.mu.RLock()
	_, ok := v.profiles[profile.String()]
	v.mu.RUnlock()
	if ok && requester.Equal(profile) {
		return nil
	}
	return denied(ErrInvalidProfileActionPermission, requester, resource.Root(), msg)
}

// GetProfileFSInternalsCloned returns a deep copy of the in-memory internals.
// Mutating the copy has no effect on the filesystem.
func (v *VectorFS) GetProfileFSInternalsCloned(profile identity.Name) (*Internals, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	in, ok := v.profiles[profile.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}
	return in.Clone(), nil
}

// SaveProfileFSInternals overwrites the stored snapshot of profile with in.
func (v *VectorFS) SaveProfileFSInternals(ctx context.Context, profile identity.Name, in *Internals) error {
	blob, err := in.toBlob()
	if err != nil {
		return err
	}
	v.storeMu.Lock()
	defer v.storeMu.Unlock()
	if err := v.store.SaveProfileFSInternals(ctx, profile.String(), blob); err != nil {
		return fmt.Errorf("saving internals of %s: %w", profile, err)
	}
	return nil
}

// GetProfileFSInternals reads and decodes the stored snapshot of profile.
func (v *VectorFS) GetProfileFSInternals(ctx context.Context, profile identity.Name) (*Internals, error) {
	v.storeMu.RLock()
	blob, err := v.store.GetProfileFSInternals(ctx, profile.String())
	v.storeMu.RUnlock()
	if err != nil {
		return nil, err
	}
	return internalsFromBlob(blob)
}

// UpdateLastReadPath records a read of path in memory. It is persisted with
// the next write to the profile.
func (v *VectorFS) UpdateLastReadPath(profile identity.Name, path resource.VRPath, at time.Time, requester identity.Name) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	in, ok := v.profiles[profile.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}
	in.LastRead.Update(path, at, requester)
	return nil
}

// AccessLogs returns the newest access records of profile.
func (v *VectorFS) AccessLogs(ctx context.Context, requester, profile identity.Name, limit int) ([]store.AccessLog, error) {
	if err := v.validateProfileAction(requester, profile, "failed listing access logs"); err != nil {
		return nil, err
	}
	v.storeMu.RLock()
	defer v.storeMu.RUnlock()
	return v.store.ListAccessLogs(ctx, profile.String(), limit)
}

// view runs fn against the live internals of profile under the read lock.
// fn must not retain or mutate in.
func (v *VectorFS) view(profile identity.Name, fn func(in *Internals) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	in, ok := v.profiles[profile.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}
	return fn(in)
}

// update applies fn to a copy of the internals of profile, commits the copy
// together with the writes fn queued in one store batch, and only then swaps
// it in. A failure anywhere leaves the previous internals in place.
func (v *VectorFS) update(ctx context.Context, profile identity.Name, operation string, fn func(in *Internals, b *store.Batch) error) (err error) {
	defer func() { recordWrite(operation, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.profiles[profile.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}

	next := cur.Clone()
	var batch store.Batch
	if err := fn(next, &batch); err != nil {
		return err
	}
	blob, err := next.toBlob()
	if err != nil {
		return err
	}
	batch.Internals = &blob

	v.storeMu.Lock()
	err = v.store.Commit(ctx, profile.String(), batch)
	v.storeMu.Unlock()
	if err != nil {
		v.logger.Error("persisting internals failed",
			zap.String("vfs.profile", profile.String()),
			zap.String("operation", operation),
			zap.Error(err))
		return fmt.Errorf("persisting internals of %s: %w", profile, err)
	}

	v.profiles[profile.String()] = next
	recordEntries(profile.String(), next)
	return nil
}

func (v *VectorFS) getStored(ctx context.Context, profile identity.Name, key string, sfm bool) ([]byte, error) {
	v.storeMu.RLock()
	defer v.storeMu.RUnlock()
	var (
		data []byte
		err  error
	)
	if sfm {
		data, err = v.store.GetSourceFileMap(ctx, profile.String(), key)
	} else {
		data, err = v.store.GetResource(ctx, profile.String(), key)
	}
	if err != nil {
		return nil, err
	}
	return store.Decompress(data)
}

func (v *VectorFS) addAccessLog(ctx context.Context, profile identity.Name, entry store.AccessLog) error {
	v.storeMu.RLock()
	defer v.storeMu.RUnlock()
	if err := v.store.AddAccessLog(ctx, profile.String(), entry); err != nil {
		return err
	}
	if !v.trimDue(profile) {
		return nil
	}
	removed, err := v.store.TrimAccessLogs(ctx, profile.String(), v.logRetention)
	if err != nil {
		v.logger.Warn("trimming access logs failed",
			zap.String("vfs.profile", profile.String()),
			zap.Error(err))
		return nil
	}
	if removed > 0 {
		v.logger.Debug("access logs trimmed",
			zap.String("vfs.profile", profile.String()),
			zap.Int("removed", removed))
	}
	return nil
}

// trimDue counts an append to the access log of profile and reports whether
// the log should be trimmed now.
func (v *VectorFS) trimDue(profile identity.Name) bool {
	if v.logRetention <= 0 {
		return false
	}
	every := min(max(v.logRetention/10, 1), 64)
	v.logMu.Lock()
	defer v.logMu.Unlock()
	v.logAppends[profile.String()]++
	return v.logAppends[profile.String()]%every == 0
}
