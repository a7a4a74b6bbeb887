package vectorfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

func storedResource(t *testing.T, st store.Store, key string) error {
	t.Helper()
	_, err := st.GetResource(context.Background(), testProfile.String(), key)
	return err
}

func TestCreateNewFolder(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()

	f := mkdir(t, fs, "/", "docs")
	assert.Equal(t, "docs", f.Name)
	assert.Equal(t, "/docs", f.Path.String())
	assert.Empty(t, f.ChildFolders)
	assert.Empty(t, f.ChildItems)

	tests := []struct {
		name    string
		parent  string
		folder  string
		wantErr error
	}{
		{"duplicate", "/", "docs", ErrEntryAlreadyExists},
		{"empty name", "/", "   ", ErrInvalidEntryName},
		{"missing parent", "/nope", "x", ErrNoEntryAtPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fs.CreateNewFolder(ctx, ownerWriter(t, fs, tt.parent), tt.folder)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("parent is an item", func(t *testing.T) {
		saveText(t, fs, "/docs", "note", "", "just text")
		_, err := fs.CreateNewFolder(ctx, ownerWriter(t, fs, "/docs/note"), "x")
		assert.ErrorIs(t, err, ErrPathDoesNotPointAtFolder)
	})

	t.Run("names are cleaned", func(t *testing.T) {
		f, err := fs.CreateNewFolder(ctx, ownerWriter(t, fs, "/docs"), "a/b:c")
		require.NoError(t, err)
		assert.Equal(t, "/docs/a-b_c", f.Path.String())
	})
}

func TestCreateNewFolder_InheritsParentPermission(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "pub")
	setPerm(t, fs, "/pub", ReadPublic, WriteNodeProfiles)
	require.NoError(t, fs.SetWhitelistPermission(ctx, ownerWriter(t, fs, "/pub"), stranger, WhitelistRead))
	mkdir(t, fs, "/pub", "child")

	in := mustInternals(t, fs)
	perm, err := in.Permissions.Get(p("/pub/child"))
	require.NoError(t, err)
	assert.Equal(t, ReadPublic, perm.Read)
	assert.Equal(t, WriteNodeProfiles, perm.Write)
	assert.Empty(t, perm.Whitelist)

	rootChild, err := in.Permissions.Get(p("/pub"))
	require.NoError(t, err)
	assert.Len(t, rootChild.Whitelist, 1)

	mkdir(t, fs, "/", "top")
	top, err := mustInternals(t, fs).Permissions.Get(p("/top"))
	require.NoError(t, err)
	assert.Equal(t, PrivatePermission(), top)
}

func TestSetPathPermission_NodeProfileLists(t *testing.T) {
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "team")
	setPerm(t, fs, "/team", ReadNodeProfiles, WritePrivate, WithReadProfiles(nodePeer), WithWriteProfiles(nodePeer))
	mkdir(t, fs, "/team", "child")

	in := mustInternals(t, fs)
	perm, err := in.Permissions.Get(p("/team"))
	require.NoError(t, err)
	assert.Equal(t, []string{nodePeer.String()}, perm.ReadProfiles)
	assert.Empty(t, perm.WriteProfiles, "write list dropped when write is not node_profiles")

	child, err := in.Permissions.Get(p("/team/child"))
	require.NoError(t, err)
	assert.Equal(t, []string{nodePeer.String()}, child.ReadProfiles)

	setPerm(t, fs, "/team", ReadPublic, WritePrivate, WithReadProfiles(nodePeer))
	perm, err = mustInternals(t, fs).Permissions.Get(p("/team"))
	require.NoError(t, err)
	assert.Empty(t, perm.ReadProfiles)
}

func TestCreateNewFolderAuto(t *testing.T) {
	fs := newTestFS(t, nil)
	mkdir(t, fs, "/", "a")

	created, err := fs.CreateNewFolderAuto(context.Background(), ownerWriter(t, fs, "/"), p("/a/b/c"))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "/a/b", created[0].String())
	assert.Equal(t, "/a/b/c", created[1].String())
	assert.NoError(t, fs.ValidatePathPointsToFolder(testProfile, p("/a/b/c")))
}

func TestSaveVectorResourceInFolder(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")

	item := saveText(t, fs, "/docs", "report.pdf", "quarterly report", "revenue grew")
	assert.Equal(t, "report", item.Name)
	assert.Equal(t, "/docs/report", item.Path.String())
	assert.Equal(t, "quarterly report", item.VRHeader.ResourceDescription)

	t.Run("cannot overwrite folder", func(t *testing.T) {
		mkdir(t, fs, "/docs", "sub")
		doc, err := NewTextDocument(ctx, fs.Generator(), "sub", "", "text", resource.NoSource())
		require.NoError(t, err)
		_, err = fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), doc, nil, nil)
		assert.ErrorIs(t, err, ErrCannotOverwriteFolder)
	})

	t.Run("missing resource embedding", func(t *testing.T) {
		doc := resource.NewDocument("bare", "", resource.NoSource(), resource.ModelAllMiniLML6V2)
		_, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), doc, nil, nil)
		assert.ErrorIs(t, err, ErrEmbeddingMissingInResource)
	})

	t.Run("writer must point at a folder", func(t *testing.T) {
		doc, err := NewTextDocument(ctx, fs.Generator(), "x", "", "text", resource.NoSource())
		require.NoError(t, err)
		_, err = fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs/report"), doc, nil, nil)
		assert.ErrorIs(t, err, ErrPathDoesNotPointAtFolder)
	})

	t.Run("nil resource", func(t *testing.T) {
		_, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestSaveVectorResource_OverwriteKeepsMetadata(t *testing.T) {
	st := store.NewMemoryStore()
	fs := newTestFS(t, st)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")

	sfm := NewSourceFileMap()
	sfm.Add(resource.Root(), SourceFile{Name: "report.txt", Type: "text/plain", Content: []byte("revenue grew")})
	origin := identity.MustParse("@@origin.shinkai")
	released := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	doc, err := NewTextDocument(ctx, fs.Generator(), "report", "", "revenue grew", resource.NoSource())
	require.NoError(t, err)
	first, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), doc, sfm,
		&DistributionInfo{Origin: &origin, ReleaseDatetime: &released})
	require.NoError(t, err)
	require.True(t, first.IsSourceFileMapSaved())
	require.NotNil(t, first.DistributionInfo.Origin)
	assert.True(t, first.DistributionInfo.Origin.Equal(origin))

	replacement, err := NewTextDocument(ctx, fs.Generator(), "report", "", "revenue shrank", resource.NoSource())
	require.NoError(t, err)
	second, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/docs"), replacement, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.NotEqual(t, first.ResourceDBKey(), second.ResourceDBKey())
	assert.True(t, second.IsSourceFileMapSaved())
	require.NotNil(t, second.DistributionInfo.ReleaseDatetime)
	assert.True(t, second.DistributionInfo.ReleaseDatetime.Equal(released))

	assert.ErrorIs(t, storedResource(t, st, first.ResourceDBKey()), store.ErrNotFound)
	assert.NoError(t, storedResource(t, st, second.ResourceDBKey()))

	r := ownerReader(t, fs, "/docs/report")
	got, err := fs.RetrieveSourceFileMap(ctx, r)
	require.NoError(t, err)
	f, ok := got.Get(resource.Root())
	require.True(t, ok)
	assert.Equal(t, "report.txt", f.Name)

	vr, err := fs.RetrieveVectorResource(ctx, r)
	require.NoError(t, err)
	n, err := vr.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "revenue shrank", n.Text)
}

func TestSaveVectorResource_RegeneratesCollidingIDs(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "a")
	mkdir(t, fs, "/", "b")

	doc, err := NewTextDocument(ctx, fs.Generator(), "shared", "", "same content", resource.NoSource())
	require.NoError(t, err)
	first, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/a"), doc, nil, nil)
	require.NoError(t, err)
	second, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/b"), doc, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ResourceDBKey(), second.ResourceDBKey())

	again, err := fs.SaveVectorResourceInFolder(ctx, ownerWriter(t, fs, "/a"), doc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ResourceDBKey(), again.ResourceDBKey(), "overwriting an item with its own resource keeps the id")
}

func TestSaveVectorResource_AtItemPath(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")

	doc, err := NewTextDocument(ctx, fs.Generator(), "todo", "", "buy milk", resource.NoSource())
	require.NoError(t, err)
	item, err := fs.SaveVectorResource(ctx, ownerWriter(t, fs, "/docs/todo"), doc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/docs/todo", item.Path.String())

	kai := VRKai{Resource: doc}
	item, err = fs.SaveVRKaiInFolder(ctx, ownerWriter(t, fs, "/docs"), kai, nil)
	require.NoError(t, err)
	assert.Equal(t, "/docs/todo", item.Path.String())
}

func TestSaveSourceFileMapInItem(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "code", "", "func main() {}")

	sfm := NewSourceFileMap()
	sfm.Add(resource.Root(), SourceFile{Name: "main.go", Type: "text/x-go", Content: []byte("package main")})
	item, err := fs.SaveSourceFileMapInItem(ctx, ownerWriter(t, fs, "/docs/code"), sfm)
	require.NoError(t, err)
	assert.True(t, item.IsSourceFileMapSaved())
	assert.Positive(t, item.SourceFileMapSize)

	kai, err := fs.RetrieveVRKai(ctx, ownerReader(t, fs, "/docs/code"))
	require.NoError(t, err)
	require.NotNil(t, kai.SFM)
	f, ok := kai.SFM.Get(resource.Root())
	require.True(t, ok)
	assert.Equal(t, []byte("package main"), f.Content)

	_, err = fs.SaveSourceFileMapInItem(ctx, ownerWriter(t, fs, "/docs"), sfm)
	assert.ErrorIs(t, err, ErrCannotOverwriteFolder)
	_, err = fs.SaveSourceFileMapInItem(ctx, ownerWriter(t, fs, "/docs/missing"), sfm)
	assert.ErrorIs(t, err, ErrNoEntryAtPath)
}

func TestUpdateItemResourceDescription(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	before := saveText(t, fs, "/docs", "memo", "old", "contents")

	after, err := fs.UpdateItemResourceDescription(ctx, ownerWriter(t, fs, "/docs/memo"), "new")
	require.NoError(t, err)
	assert.Equal(t, before.ResourceDBKey(), after.ResourceDBKey())
	assert.Equal(t, "new", after.VRHeader.ResourceDescription)

	vr, err := fs.RetrieveVectorResource(ctx, ownerReader(t, fs, "/docs/memo"))
	require.NoError(t, err)
	assert.Equal(t, "new", vr.Description())
}

func TestCopyItem(t *testing.T) {
	st := store.NewMemoryStore()
	fs := newTestFS(t, st)
	ctx := context.Background()
	mkdir(t, fs, "/", "src")
	mkdir(t, fs, "/", "dst")
	setPerm(t, fs, "/dst", ReadPublic, WritePrivate)
	orig := saveText(t, fs, "/src", "note", "", "copy me")

	sfm := NewSourceFileMap()
	sfm.Add(resource.Root(), SourceFile{Name: "note.txt", Content: []byte("copy me")})
	_, err := fs.SaveSourceFileMapInItem(ctx, ownerWriter(t, fs, "/src/note"), sfm)
	require.NoError(t, err)

	copied, err := fs.CopyItem(ctx, ownerWriter(t, fs, "/src/note"), p("/dst"))
	require.NoError(t, err)
	assert.Equal(t, "/dst/note", copied.Path.String())
	assert.NotEqual(t, orig.ResourceDBKey(), copied.ResourceDBKey())
	assert.NoError(t, storedResource(t, st, orig.ResourceDBKey()))
	assert.NoError(t, storedResource(t, st, copied.ResourceDBKey()))

	_, err = fs.RetrieveSourceFileMap(ctx, ownerReader(t, fs, "/dst/note"))
	assert.NoError(t, err)

	perm, err := mustInternals(t, fs).Permissions.Get(p("/dst/note"))
	require.NoError(t, err)
	assert.Equal(t, ReadPublic, perm.Read)

	_, err = fs.CopyItem(ctx, ownerWriter(t, fs, "/src/note"), p("/dst"))
	assert.ErrorIs(t, err, ErrEntryAlreadyExists)
	_, err = fs.CopyItem(ctx, ownerWriter(t, fs, "/src"), p("/dst"))
	assert.ErrorIs(t, err, ErrPathDoesNotPointAtItem)
	_, err = fs.CopyItem(ctx, ownerWriter(t, fs, "/src/note"), p("/dst/note"))
	assert.ErrorIs(t, err, ErrPathDoesNotPointAtFolder)
}

func TestMoveItem(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "src")
	mkdir(t, fs, "/", "dst")
	orig := saveText(t, fs, "/src", "note", "", "move me")

	moved, err := fs.MoveItem(ctx, ownerWriter(t, fs, "/src/note"), p("/dst"))
	require.NoError(t, err)
	assert.Equal(t, "/dst/note", moved.Path.String())
	assert.Equal(t, orig.ResourceDBKey(), moved.ResourceDBKey())

	assert.ErrorIs(t, fs.ValidatePathPointsToEntry(testProfile, p("/src/note")), ErrNoEntryAtPath)
	_, err = mustInternals(t, fs).Permissions.Get(p("/src/note"))
	assert.ErrorIs(t, err, ErrNoPermissionEntryAtPath)

	vr, err := fs.RetrieveVectorResource(ctx, ownerReader(t, fs, "/dst/note"))
	require.NoError(t, err)
	assert.Equal(t, "note", vr.Name())
}

func TestMoveItem_RequiresWriteAtDestination(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "shared")
	mkdir(t, fs, "/", "private")
	peers := []PermissionOption{WithReadProfiles(nodePeer), WithWriteProfiles(nodePeer)}
	setPerm(t, fs, "/shared", ReadNodeProfiles, WriteNodeProfiles, peers...)
	saveText(t, fs, "/shared", "note", "", "stay here")
	setPerm(t, fs, "/shared/note", ReadNodeProfiles, WriteNodeProfiles, peers...)

	w, err := fs.NewWriter(ctx, nodePeer, p("/shared/note"), testProfile)
	require.NoError(t, err)
	_, err = fs.MoveItem(ctx, w, p("/private"))
	assert.ErrorIs(t, err, ErrInvalidWriterPermission)
	assert.NoError(t, fs.ValidatePathPointsToItem(testProfile, p("/shared/note")))
}

func TestCopyFolder(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "proj")
	mkdir(t, fs, "/proj", "sub")
	mkdir(t, fs, "/", "backup")
	a := saveText(t, fs, "/proj", "a", "", "alpha")
	b := saveText(t, fs, "/proj/sub", "b", "", "beta")

	copied, err := fs.CopyFolder(ctx, ownerWriter(t, fs, "/proj"), p("/backup"))
	require.NoError(t, err)
	assert.Equal(t, "/backup/proj", copied.Path.String())
	require.Len(t, copied.ChildItems, 1)
	require.Len(t, copied.ChildFolders, 1)
	assert.NotEqual(t, a.ResourceDBKey(), copied.ChildItems[0].ResourceDBKey())
	require.Len(t, copied.ChildFolders[0].ChildItems, 1)
	assert.NotEqual(t, b.ResourceDBKey(), copied.ChildFolders[0].ChildItems[0].ResourceDBKey())

	vr, err := fs.RetrieveVectorResource(ctx, ownerReader(t, fs, "/backup/proj/sub/b"))
	require.NoError(t, err)
	n, err := vr.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "beta", n.Text)

	assert.NoError(t, fs.ValidatePathPointsToItem(testProfile, p("/proj/sub/b")))

	_, err = fs.CopyFolder(ctx, ownerWriter(t, fs, "/proj"), p("/proj/sub"))
	assert.ErrorIs(t, err, ErrCannotMoveFolderIntoItself)
	_, err = fs.CopyFolder(ctx, ownerWriter(t, fs, "/"), p("/backup"))
	assert.ErrorIs(t, err, ErrRootCannotBeModified)
	_, err = fs.CopyFolder(ctx, ownerWriter(t, fs, "/proj"), p("/backup"))
	assert.ErrorIs(t, err, ErrEntryAlreadyExists)
}

func TestMoveFolder(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "proj")
	mkdir(t, fs, "/proj", "sub")
	mkdir(t, fs, "/", "archive")
	setPerm(t, fs, "/archive", ReadPublic, WritePrivate)
	setPerm(t, fs, "/proj/sub", ReadNodeProfiles, WritePrivate)
	item := saveText(t, fs, "/proj/sub", "b", "", "beta")

	moved, err := fs.MoveFolder(ctx, ownerWriter(t, fs, "/proj"), p("/archive"))
	require.NoError(t, err)
	assert.Equal(t, "/archive/proj", moved.Path.String())

	assert.ErrorIs(t, fs.ValidatePathPointsToEntry(testProfile, p("/proj")), ErrNoEntryAtPath)
	in := mustInternals(t, fs)
	_, err = in.Permissions.Get(p("/proj/sub"))
	assert.ErrorIs(t, err, ErrNoPermissionEntryAtPath)

	top, err := in.Permissions.Get(p("/archive/proj"))
	require.NoError(t, err)
	assert.Equal(t, ReadPublic, top.Read)
	sub, err := in.Permissions.Get(p("/archive/proj/sub"))
	require.NoError(t, err)
	assert.Equal(t, ReadNodeProfiles, sub.Read)

	header, err := fs.RetrieveVRHeader(ctx, ownerReader(t, fs, "/archive/proj/sub/b"))
	require.NoError(t, err)
	assert.Equal(t, item.ResourceDBKey(), header.ReferenceString())

	_, err = fs.MoveFolder(ctx, ownerWriter(t, fs, "/archive"), p("/archive/proj"))
	assert.ErrorIs(t, err, ErrCannotMoveFolderIntoItself)
	_, err = fs.MoveFolder(ctx, ownerWriter(t, fs, "/"), p("/archive"))
	assert.ErrorIs(t, err, ErrRootCannotBeModified)
}

func TestDeleteItem(t *testing.T) {
	st := store.NewMemoryStore()
	fs := newTestFS(t, st)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	item := saveText(t, fs, "/docs", "gone", "", "temporary")

	assert.ErrorIs(t, fs.DeleteItem(ctx, ownerWriter(t, fs, "/docs")), ErrPathDoesNotPointAtItem)
	require.NoError(t, fs.DeleteItem(ctx, ownerWriter(t, fs, "/docs/gone")))

	assert.ErrorIs(t, fs.ValidatePathPointsToEntry(testProfile, p("/docs/gone")), ErrNoEntryAtPath)
	assert.ErrorIs(t, storedResource(t, st, item.ResourceDBKey()), store.ErrNotFound)
	_, err := mustInternals(t, fs).Permissions.Get(p("/docs/gone"))
	assert.ErrorIs(t, err, ErrNoPermissionEntryAtPath)
}

func TestDeleteFolder(t *testing.T) {
	st := store.NewMemoryStore()
	fs := newTestFS(t, st)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	mkdir(t, fs, "/docs", "deep")
	a := saveText(t, fs, "/docs", "a", "", "alpha")
	b := saveText(t, fs, "/docs/deep", "b", "", "beta")

	assert.ErrorIs(t, fs.DeleteFolder(ctx, ownerWriter(t, fs, "/")), ErrRootCannotBeModified)
	assert.ErrorIs(t, fs.DeleteFolder(ctx, ownerWriter(t, fs, "/docs/a")), ErrPathDoesNotPointAtFolder)
	require.NoError(t, fs.DeleteFolder(ctx, ownerWriter(t, fs, "/docs")))

	assert.ErrorIs(t, fs.ValidatePathPointsToEntry(testProfile, p("/docs")), ErrNoEntryAtPath)
	assert.ErrorIs(t, storedResource(t, st, a.ResourceDBKey()), store.ErrNotFound)
	assert.ErrorIs(t, storedResource(t, st, b.ResourceDBKey()), store.ErrNotFound)
	for _, path := range mustInternals(t, fs).Permissions.Paths() {
		assert.False(t, p("/docs").IsAncestorOf(path), path.String())
	}
}

func TestUpdatePermissionsRecursively(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	mkdir(t, fs, "/docs", "sub")
	saveText(t, fs, "/docs/sub", "leaf", "", "leaf text")

	_, err := fs.NewReader(ctx, stranger, p("/docs/sub/leaf"), testProfile)
	require.ErrorIs(t, err, ErrInvalidReaderPermission)

	require.NoError(t, fs.UpdatePermissionsRecursively(ctx, ownerWriter(t, fs, "/docs"), ReadPublic, WritePrivate))
	_, err = fs.NewReader(ctx, stranger, p("/docs/sub/leaf"), testProfile)
	assert.NoError(t, err)

	assert.ErrorIs(t, fs.UpdatePermissionsRecursively(ctx, ownerWriter(t, fs, "/docs/sub/leaf"), ReadPublic, WritePrivate), ErrPathDoesNotPointAtFolder)
}

func TestSetPathPermission_MissingEntry(t *testing.T) {
	fs := newTestFS(t, nil)
	err := fs.SetPathPermission(context.Background(), ownerWriter(t, fs, "/missing"), ReadPublic, WritePrivate)
	assert.ErrorIs(t, err, ErrNoEntryAtPath)
}

func TestSubscriptions(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "feed")
	setPerm(t, fs, "/feed", ReadPublic, WritePrivate)

	r, err := fs.NewReader(ctx, stranger, p("/feed"), testProfile)
	require.NoError(t, err)
	require.NoError(t, fs.Subscribe(ctx, r))

	subs, err := fs.Subscribers(ctx, ownerReader(t, fs, "/feed"))
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Equal(stranger))

	require.NoError(t, fs.Unsubscribe(ctx, r))
	subs, err = fs.Subscribers(ctx, ownerReader(t, fs, "/feed"))
	require.NoError(t, err)
	assert.Empty(t, subs)

	require.NoError(t, fs.Subscribe(ctx, r))
	require.NoError(t, fs.DeleteFolder(ctx, ownerWriter(t, fs, "/feed")))
	assert.Empty(t, mustInternals(t, fs).Subscriptions.Subscribers(p("/feed")))
}
