package vectorfs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

const testDimension = 256

var (
	testNode    = identity.MustParse("@@node1.shinkai")
	testProfile = identity.MustParse("@@node1.shinkai/main")
	nodePeer    = identity.MustParse("@@node1.shinkai/alice")
	stranger    = identity.MustParse("@@node2.shinkai/bob")
)

func newTestFS(t *testing.T, st store.Store, opts ...Option) *VectorFS {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	gen := embeddings.NewHashGenerator(testDimension, resource.ModelAllMiniLML6V2)
	fs, err := New(context.Background(), gen, nil, []identity.Name{testProfile}, st, testNode, opts...)
	require.NoError(t, err)
	return fs
}

func p(s string) resource.VRPath {
	return resource.MustParseVRPath(s)
}

func ownerWriter(t *testing.T, fs *VectorFS, path string) *Writer {
	t.Helper()
	w, err := fs.NewWriter(context.Background(), testProfile, p(path), testProfile)
	require.NoError(t, err)
	return w
}

func ownerReader(t *testing.T, fs *VectorFS, path string) *Reader {
	t.Helper()
	r, err := fs.NewReader(context.Background(), testProfile, p(path), testProfile)
	require.NoError(t, err)
	return r
}

func mkdir(t *testing.T, fs *VectorFS, parent, name string) FSFolder {
	t.Helper()
	f, err := fs.CreateNewFolder(context.Background(), ownerWriter(t, fs, parent), name)
	require.NoError(t, err)
	return f
}

func saveText(t *testing.T, fs *VectorFS, folder, name, description, text string) FSItem {
	t.Helper()
	ctx := context.Background()
	doc, err := NewTextDocument(ctx, fs.Generator(), name, description, text, resource.NoSource())
	require.NoError(t, err)
	item, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, folder), doc, nil, nil)
	require.NoError(t, err)
	return item
}

func setPerm(t *testing.T, fs *VectorFS, path string, read ReadPermission, write WritePermission, opts ...PermissionOption) {
	t.Helper()
	require.NoError(t, fs.SetPathPermission(context.Background(), ownerWriter(t, fs, path), read, write, opts...))
}

type failingStore struct {
	store.Store
	failCommit    bool
	failAccessLog bool
}

func (s *failingStore) AddAccessLog(ctx context.Context, profile string, entry store.AccessLog) error {
	if s.failAccessLog {
		return errors.New("disk full")
	}
	return s.Store.AddAccessLog(ctx, profile, entry)
}

func (s *failingStore) Commit(ctx context.Context, profile string, b store.Batch) error {
	if s.failCommit {
		return errors.New("disk full")
	}
	return s.Store.Commit(ctx, profile, b)
}

func TestNew_RequiresGeneratorAndStore(t *testing.T) {
	ctx := context.Background()
	gen := embeddings.NewHashGenerator(testDimension, resource.ModelAllMiniLML6V2)

	_, err := New(ctx, nil, nil, nil, store.NewMemoryStore(), testNode)
	assert.Error(t, err)

	_, err = New(ctx, gen, nil, nil, nil, testNode)
	assert.Error(t, err)
}

func TestNew_ReloadsPersistedProfiles(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	fs := newTestFS(t, st)
	mkdir(t, fs, "/", "docs")
	item := saveText(t, fs, "/docs", "notes.md", "meeting notes", "first paragraph\n\nsecond paragraph")
	setPerm(t, fs, "/docs", ReadPublic, WritePrivate)

	reloaded := newTestFS(t, st)
	assert.ElementsMatch(t, []identity.Name{testProfile}, reloaded.Profiles())

	r := ownerReader(t, reloaded, "/docs/notes")
	entry, err := reloaded.RetrieveFSEntry(ctx, r)
	require.NoError(t, err)
	got, err := entry.AsItem()
	require.NoError(t, err)
	assert.Equal(t, item.ResourceDBKey(), got.ResourceDBKey())

	vr, err := reloaded.RetrieveVectorResource(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, vr.NodeCount())
	assert.Equal(t, "meeting notes", vr.Description())

	perm, err := mustInternals(t, reloaded).Permissions.Get(p("/docs"))
	require.NoError(t, err)
	assert.Equal(t, ReadPublic, perm.Read)
}

func mustInternals(t *testing.T, fs *VectorFS) *Internals {
	t.Helper()
	in, err := fs.GetProfileFSInternalsCloned(testProfile)
	require.NoError(t, err)
	return in
}

func TestInitializeProfile_RequiresSameNode(t *testing.T) {
	fs := newTestFS(t, nil)
	newProfile := identity.MustParse("@@node1.shinkai/second")

	err := fs.InitializeProfile(context.Background(), stranger, newProfile, resource.ModelAllMiniLML6V2, nil)
	assert.ErrorIs(t, err, ErrInvalidNodeActionPermission)

	err = fs.InitializeProfile(context.Background(), testNode, testNode, resource.ModelAllMiniLML6V2, nil)
	assert.ErrorIs(t, err, ErrProfileNameNonExistent)

	require.NoError(t, fs.InitializeProfile(context.Background(), nodePeer, newProfile, resource.ModelAllMiniLML6V2, nil))
	assert.Len(t, fs.Profiles(), 2)
}

func TestInitializeNewProfiles_SeedPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("default folders", func(t *testing.T) {
		fs := newTestFS(t, nil)
		newProfile := identity.MustParse("@@node1.shinkai/seeded")
		require.NoError(t, fs.InitializeNewProfiles(ctx, testNode, []identity.Name{newProfile}, resource.ModelAllMiniLML6V2, nil, true))

		for _, raw := range DefaultFolders {
			assert.NoError(t, fs.ValidatePathPointsToFolder(newProfile, p(raw)), raw)
		}
	})

	t.Run("custom policy", func(t *testing.T) {
		fs := newTestFS(t, nil, WithSeedPolicy(FolderSeedPolicy("/inbox", "/inbox/today")))
		newProfile := identity.MustParse("@@node1.shinkai/custom")
		require.NoError(t, fs.InitializeNewProfiles(ctx, testNode, []identity.Name{newProfile}, resource.ModelAllMiniLML6V2, nil, true))

		assert.NoError(t, fs.ValidatePathPointsToFolder(newProfile, p("/inbox/today")))
		assert.ErrorIs(t, fs.ValidatePathPointsToFolder(newProfile, p("/For Sharing")), ErrNoEntryAtPath)
	})

	t.Run("no seed", func(t *testing.T) {
		fs := newTestFS(t, nil, WithSeedPolicy(NoSeed()))
		newProfile := identity.MustParse("@@node1.shinkai/empty")
		require.NoError(t, fs.InitializeNewProfiles(ctx, testNode, []identity.Name{newProfile}, resource.ModelAllMiniLML6V2, nil, true))

		r, err := fs.NewReader(ctx, newProfile, resource.Root(), newProfile)
		require.NoError(t, err)
		empty, err := fs.IsFolderEmpty(ctx, r)
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("already loaded profiles are skipped", func(t *testing.T) {
		fs := newTestFS(t, nil)
		mkdir(t, fs, "/", "keep")
		require.NoError(t, fs.InitializeNewProfiles(ctx, testNode, []identity.Name{testProfile}, resource.ModelAllMiniLML6V2, nil, true))
		assert.NoError(t, fs.ValidatePathPointsToFolder(testProfile, p("/keep")))
		assert.ErrorIs(t, fs.ValidatePathPointsToFolder(testProfile, p("/For Sharing")), ErrNoEntryAtPath)
	})
}

func TestUpdate_CommitFailureKeepsPreviousState(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore()}
	fs := newTestFS(t, st)
	mkdir(t, fs, "/", "docs")

	st.failCommit = true
	_, err := fs.CreateNewFolder(context.Background(), ownerWriter(t, fs, "/"), "lost")
	require.Error(t, err)
	assert.ErrorIs(t, fs.ValidatePathPointsToFolder(testProfile, p("/lost")), ErrNoEntryAtPath)

	st.failCommit = false
	mkdir(t, fs, "/", "lost")
	assert.NoError(t, fs.ValidatePathPointsToFolder(testProfile, p("/lost")))
}

func TestGetProfileFSInternalsCloned_IsIsolated(t *testing.T) {
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "docs")

	clone := mustInternals(t, fs)
	_, _, err := resource.RemoveNodeAtPath(clone.Core, p("/docs"))
	require.NoError(t, err)
	clone.Permissions.Remove(p("/docs"))

	assert.NoError(t, fs.ValidatePathPointsToFolder(testProfile, p("/docs")))
	_, err = mustInternals(t, fs).Permissions.Get(p("/docs"))
	assert.NoError(t, err)
}

func TestRevertInternalsToLastDBSave(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "docs")

	readAt := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.UpdateLastReadPath(testProfile, p("/docs"), readAt, nodePeer))
	lr, ok := mustInternals(t, fs).LastRead.Get(p("/docs"))
	require.True(t, ok)
	assert.True(t, lr.Time.Equal(readAt))

	assert.ErrorIs(t, fs.RevertInternalsToLastDBSave(ctx, stranger, testProfile), ErrInvalidProfileActionPermission)
	require.NoError(t, fs.RevertInternalsToLastDBSave(ctx, testProfile, testProfile))

	lr, ok = mustInternals(t, fs).LastRead.Get(p("/docs"))
	require.True(t, ok)
	assert.False(t, lr.Time.Equal(readAt))

	assert.ErrorIs(t, fs.UpdateLastReadPath(identity.MustParse("@@node1.shinkai/ghost"), p("/docs"), readAt, nodePeer), ErrProfileNameNonExistent)
}

func TestSetProfileSupportedModels(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "docs")

	other := embeddings.NewHashGenerator(testDimension, resource.ModelBGESmallENV15)
	doc, err := NewTextDocument(ctx, other, "foreign", "", "text from another model", resource.NoSource())
	require.NoError(t, err)

	_, err = fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), doc, nil, nil)
	assert.ErrorIs(t, err, ErrEmbeddingModelTypeMismatch)

	assert.ErrorIs(t, fs.SetProfileSupportedModels(ctx, stranger, testProfile, []resource.ModelType{resource.ModelBGESmallENV15}), ErrInvalidNodeActionPermission)
	require.NoError(t, fs.SetProfileSupportedModels(ctx, testNode, testProfile, []resource.ModelType{resource.ModelBGESmallENV15}))

	_, err = fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), doc, nil, nil)
	assert.NoError(t, err)
}

func TestAccessLogs(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "docs")
	setPerm(t, fs, "/docs", ReadNodeProfiles, WritePrivate, WithReadProfiles(nodePeer))

	_, err := fs.NewReader(ctx, nodePeer, p("/docs"), testProfile)
	require.NoError(t, err)
	_, err = fs.NewReader(ctx, stranger, p("/docs"), testProfile)
	require.Error(t, err)

	logs, err := fs.AccessLogs(ctx, testProfile, testProfile, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, nodePeer.String(), logs[0].Requester)
	assert.Equal(t, "/docs", logs[0].Path)
	assert.Equal(t, store.AccessRead, logs[0].Kind)

	all, err := fs.AccessLogs(ctx, testProfile, testProfile, 0)
	require.NoError(t, err)
	for _, l := range all {
		assert.NotEqual(t, stranger.String(), l.Requester)
	}

	_, err = fs.AccessLogs(ctx, nodePeer, testProfile, 0)
	assert.ErrorIs(t, err, ErrInvalidProfileActionPermission)
}

func TestNewReader_AccessLogFailureSkipsLastRead(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemoryStore()}
	fs := newTestFS(t, st)
	mkdir(t, fs, "/", "docs")

	st.failAccessLog = true
	_, err := fs.NewReader(ctx, testProfile, p("/docs"), testProfile)
	require.ErrorContains(t, err, "recording read access")
	_, ok := mustInternals(t, fs).LastRead.Get(p("/docs"))
	assert.False(t, ok)

	st.failAccessLog = false
	ownerReader(t, fs, "/docs")
	read, ok := mustInternals(t, fs).LastRead.Get(p("/docs"))
	require.True(t, ok)
	assert.Equal(t, testProfile, read.Requester)
}

func TestNewReader_ConcurrentWithWrites(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "docs")
	const readers = 16

	var g errgroup.Group
	for i := 0; i < readers; i++ {
		g.Go(func() error {
			_, err := fs.NewReader(ctx, testProfile, p("/docs"), testProfile)
			return err
		})
		g.Go(func() error {
			w, err := fs.NewWriter(ctx, testProfile, p("/docs"), testProfile)
			if err != nil {
				return err
			}
			_, err = fs.CreateNewFolder(ctx, w, fmt.Sprintf("f%d", i))
			return err
		})
	}
	require.NoError(t, g.Wait())

	_, ok := mustInternals(t, fs).LastRead.Get(p("/docs"))
	assert.True(t, ok)
	r := ownerReader(t, fs, "/docs")
	count, err := fs.CountFoldersUnderPath(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, readers, count)
}

func TestAccessLogs_Retention(t *testing.T) {
	tests := []struct {
		name      string
		retention int
		reads     int
		want      int
	}{
		{"trimmed to retention", 3, 10, 3},
		{"single entry", 1, 4, 1},
		{"unbounded", -1, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore()
			fs := newTestFS(t, st, WithAccessLogRetention(tt.retention))
			mkdir(t, fs, "/", "docs")
			mkdir(t, fs, "/docs", "last")
			_, err := st.TrimAccessLogs(ctx, testProfile.String(), 0)
			require.NoError(t, err)

			for i := 0; i < tt.reads-1; i++ {
				ownerReader(t, fs, "/docs")
			}
			ownerReader(t, fs, "/docs/last")

			logs, err := fs.AccessLogs(ctx, testProfile, testProfile, 0)
			require.NoError(t, err)
			require.Len(t, logs, tt.want)
			assert.Equal(t, "/docs/last", logs[0].Path)
		})
	}
}
