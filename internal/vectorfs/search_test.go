package vectorfs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/telemetry"
)

func query(t *testing.T, fs *VectorFS, text string) resource.Embedding {
	t.Helper()
	e, err := fs.GenerateQueryEmbedding(context.Background(), text)
	require.NoError(t, err)
	return e
}

func itemPaths(items []FSItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path.String()
	}
	return out
}

func TestVectorSearchFSItem_RanksBySimilarity(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	mkdir(t, fs, "/docs", "nested")
	saveText(t, fs, "/docs", "cats", "", "cats purr and chase mice")
	saveText(t, fs, "/docs/nested", "dogs", "", "dogs bark and fetch sticks")
	saveText(t, fs, "/docs", "taxes", "", "file the annual return before april")

	scored, err := fs.VectorSearchFSItemWithScore(ctx, ownerReader(t, fs, "/"), query(t, fs, "dogs bark"), 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "/docs/nested/dogs", scored[0].Item.Path.String())
	assert.GreaterOrEqual(t, scored[0].Score, scored[1].Score)

	items, err := fs.VectorSearchFSItem(ctx, ownerReader(t, fs, "/docs/nested"), query(t, fs, "cats purr"), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/nested/dogs"}, itemPaths(items), "search is scoped to the reader's folder")

	_, err = fs.VectorSearchFSItem(ctx, ownerReader(t, fs, "/docs/cats"), query(t, fs, "cats"), 5)
	assert.ErrorIs(t, err, ErrPathDoesNotPointAtFolder)
}

func TestVectorSearch_OnlyReturnsReadableItems(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	setPerm(t, fs, "/", ReadPublic, WritePrivate)
	mkdir(t, fs, "/", "pub")
	mkdir(t, fs, "/", "priv")
	setPerm(t, fs, "/pub", ReadPublic, WritePrivate)
	saveText(t, fs, "/pub", "open", "", "garden tomatoes")
	saveText(t, fs, "/pub", "hidden", "", "garden cucumbers")
	saveText(t, fs, "/priv", "secret", "", "garden tomatoes secret recipe")
	setPerm(t, fs, "/pub/hidden", ReadPrivate, WritePrivate)

	owner, err := fs.VectorSearchFSItem(ctx, ownerReader(t, fs, "/"), query(t, fs, "garden tomatoes"), 10)
	require.NoError(t, err)
	assert.Len(t, owner, 3)

	r, err := fs.NewReader(ctx, stranger, resource.Root(), testProfile)
	require.NoError(t, err)
	got, err := fs.VectorSearchFSItem(ctx, r, query(t, fs, "garden tomatoes"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/pub/open"}, itemPaths(got))

	in := mustInternals(t, fs)
	acceptAll := resource.LimitTraversalByValidation{
		Func: func(resource.Node, resource.VRPath, map[string]string) bool { return true },
	}
	raw, err := vectorSearchCore(in, r, query(t, fs, "secret recipe"), -1, resource.Exhaustive,
		[]resource.TraversalOption{acceptAll}, resource.SearchModeDefault)
	require.NoError(t, err)
	for _, ret := range raw {
		assert.False(t, strings.HasPrefix(ret.RetrievalPath.String(), "/priv"), ret.RetrievalPath.String())
		assert.NotEqual(t, "/pub/hidden", ret.RetrievalPath.String())
	}
}

func TestDeepVectorSearch_RevokedFolderYieldsEmptyResult(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	setPerm(t, fs, "/", ReadPublic, WritePrivate)
	mkdir(t, fs, "/", "docs")
	setPerm(t, fs, "/docs", ReadPublic, WritePrivate)
	saveText(t, fs, "/docs", "animals", "pets",
		"the cat sleeps on the warm windowsill\n\nthe dog runs after the ball in the park")
	setPerm(t, fs, "/docs/animals", ReadPublic, WritePrivate)

	r, err := fs.NewReader(ctx, stranger, resource.Root(), testProfile)
	require.NoError(t, err)

	results, err := fs.DeepVectorSearch(ctx, r, "cat sleeps windowsill", 5, 1, resource.SearchModeDefault)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/docs/animals", results[0].ItemPath.String())
	assert.Contains(t, results[0].Node.Node.Text, "cat")
	assert.Equal(t, "animals", results[0].ItemName())

	setPerm(t, fs, "/docs", ReadPrivate, WritePrivate)
	results, err = fs.DeepVectorSearch(ctx, r, "cat sleeps windowsill", 5, 1, resource.SearchModeDefault)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeepVectorSearch_PoolingFavorsRelevantItems(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	const shared = "the quick brown fox jumps"
	saveText(t, fs, "/docs", "fox", "fox facts", shared)
	saveText(t, fs, "/docs", "ledger", "accounting entries", shared)

	items, err := fs.VectorSearchFSItemWithScore(ctx, ownerReader(t, fs, "/"), query(t, fs, "quick brown fox"), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "/docs/fox", items[0].Item.Path.String())
	require.Greater(t, items[0].Score, items[1].Score)

	averaged, err := fs.DeepVectorSearch(ctx, ownerReader(t, fs, "/"), "quick brown fox", 2, 2, resource.SearchModeDefault)
	require.NoError(t, err)
	require.Len(t, averaged, 2)
	assert.Equal(t, "/docs/fox", averaged[0].ItemPath.String())
	assert.Equal(t, "/docs/ledger", averaged[1].ItemPath.String())
	assert.Greater(t, averaged[0].Score(), averaged[1].Score())

	plain, err := fs.DeepVectorSearchCustomized(ctx, ownerReader(t, fs, "/"), "quick brown fox", 2, 2, nil, false, resource.SearchModeDefault)
	require.NoError(t, err)
	require.Len(t, plain, 2)
	assert.InDelta(t, plain[0].Score(), plain[1].Score(), 1e-6)
	assert.Equal(t, "/docs/fox", plain[0].ItemPath.String(), "equal scores keep discovery order")
	assert.Less(t, plain[0].Score(), averaged[0].Score())
}

func TestDeepVectorSearch_TruncatesPool(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "one", "", "red apples\n\ngreen apples\n\nyellow apples")
	saveText(t, fs, "/docs", "two", "", "apple pie\n\napple cider")

	results, err := fs.DeepVectorSearch(ctx, ownerReader(t, fs, "/"), "apples", 2, 3, resource.SearchModeDefault)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score(), results[i].Score())
	}
	for _, r := range results {
		assert.NotEmpty(t, r.ReferenceString())
	}
}

func TestVectorSearchProjections(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "rivers", "", "rivers flow to the sea")
	saveText(t, fs, "/docs", "mountains", "", "mountains rise above the clouds")

	sfm := NewSourceFileMap()
	sfm.Add(resource.Root(), SourceFile{Name: "rivers.txt", Content: []byte("rivers flow to the sea")})
	_, err := fs.SaveSourceFileMapInItem(ctx, ownerWriter(t, fs, "/docs/rivers"), sfm)
	require.NoError(t, err)

	r := ownerReader(t, fs, "/")
	q := query(t, fs, "rivers flow")

	headers, err := fs.VectorSearchVRHeader(ctx, r, q, 1)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, "rivers", headers[0].ResourceName)

	vrs, err := fs.VectorSearchVectorResource(ctx, r, q, 2)
	require.NoError(t, err)
	require.Len(t, vrs, 2)
	assert.Equal(t, "rivers", vrs[0].Name())

	kais, err := fs.VectorSearchVRKai(ctx, r, q, 2)
	require.NoError(t, err)
	require.Len(t, kais, 2)
	assert.NotNil(t, kais[0].SFM)
	assert.Nil(t, kais[1].SFM)

	sfms, err := fs.VectorSearchSourceFileMap(ctx, r, q, 2)
	require.NoError(t, err)
	assert.Len(t, sfms, 1)
}

func TestSearch_RecordsSpans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	fs := newTestFS(t, nil, WithTracer(tel.Tracer(instrumentationName)))
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "cats", "", "cats purr and chase mice")

	_, err := fs.VectorSearchFSItemWithScore(ctx, ownerReader(t, fs, "/docs"), query(t, fs, "cats"), 3)
	require.NoError(t, err)
	_, err = fs.DeepVectorSearch(ctx, ownerReader(t, fs, "/"), "cats purr", 2, 2, resource.SearchModeDefault)
	require.NoError(t, err)

	tel.AssertSpanExists(t, "vectorfs.save")
	tel.AssertSpanAttribute(t, "vectorfs.search_items", "vfs.path", "/docs")
	tel.AssertSpanAttribute(t, "vectorfs.search_items", "k", int64(3))
	tel.AssertSpanAttribute(t, "vectorfs.deep_search", "vfs.profile", testProfile.String())
}

func TestVectorSearch_RegrantedFolderIsSearchableAgain(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	setPerm(t, fs, "/", ReadPublic, WritePrivate)
	mkdir(t, fs, "/", "docs")
	setPerm(t, fs, "/docs", ReadPublic, WritePrivate)
	saveText(t, fs, "/docs", "A", "", "lighthouse keepers log the tides")
	setPerm(t, fs, "/docs/A", ReadPublic, WritePrivate)

	steps := []struct {
		name string
		read ReadPermission
		want []string
	}{
		{"public", ReadPublic, []string{"/docs/A"}},
		{"revoked", ReadPrivate, []string{}},
		{"granted again", ReadPublic, []string{"/docs/A"}},
		{"node profiles without listing", ReadNodeProfiles, []string{}},
		{"public once more", ReadPublic, []string{"/docs/A"}},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			setPerm(t, fs, "/docs", step.read, WritePrivate)
			r, err := fs.NewReader(ctx, stranger, resource.Root(), testProfile)
			require.NoError(t, err)

			items, err := fs.VectorSearchFSItem(ctx, r, query(t, fs, "lighthouse tides"), 5)
			require.NoError(t, err)
			assert.Equal(t, step.want, itemPaths(items))

			deep, err := fs.DeepVectorSearch(ctx, r, "lighthouse tides", 5, 5, resource.SearchModeDefault)
			require.NoError(t, err)
			assert.Equal(t, len(step.want) > 0, len(deep) > 0)
		})
	}
}

func TestVectorSearch_RestrictedAncestorHidesPublicDescendants(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		ancestor ReadPermission
	}{
		{"whitelist ancestor", ReadWhitelist},
		{"private ancestor", ReadPrivate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newTestFS(t, nil)
			setPerm(t, fs, "/", ReadPublic, WritePrivate)
			mkdir(t, fs, "/", "a")
			setPerm(t, fs, "/a", tt.ancestor, WritePrivate)
			mkdir(t, fs, "/a", "b")
			setPerm(t, fs, "/a/b", ReadPublic, WritePrivate)
			saveText(t, fs, "/a/b", "x", "", "orchard pears ripen in autumn")
			setPerm(t, fs, "/a/b/x", ReadPublic, WritePrivate)

			_, err := fs.NewReader(ctx, stranger, p("/a/b"), testProfile)
			require.ErrorIs(t, err, ErrInvalidReaderPermission)
			assert.ErrorContains(t, err, "access denied at /a")

			r, err := fs.NewReader(ctx, stranger, resource.Root(), testProfile)
			require.NoError(t, err)
			items, err := fs.VectorSearchFSItem(ctx, r, query(t, fs, "orchard pears"), 5)
			require.NoError(t, err)
			assert.Empty(t, items)
			deep, err := fs.DeepVectorSearch(ctx, r, "orchard pears", 5, 5, resource.SearchModeDefault)
			require.NoError(t, err)
			assert.Empty(t, deep)

			owner, err := fs.VectorSearchFSItem(ctx, ownerReader(t, fs, "/"), query(t, fs, "orchard pears"), 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"/a/b/x"}, itemPaths(owner))
		})
	}
}

func TestVectorSearch_WhitelistedRequesterReachesDescendants(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	setPerm(t, fs, "/", ReadPublic, WritePrivate)
	mkdir(t, fs, "/", "a")
	setPerm(t, fs, "/a", ReadWhitelist, WritePrivate)
	mkdir(t, fs, "/a", "b")
	setPerm(t, fs, "/a/b", ReadPublic, WritePrivate)
	saveText(t, fs, "/a/b", "x", "", "orchard pears ripen in autumn")
	setPerm(t, fs, "/a/b/x", ReadPublic, WritePrivate)
	require.NoError(t, fs.SetWhitelistPermission(ctx, ownerWriter(t, fs, "/a"), stranger, WhitelistRead))

	r, err := fs.NewReader(ctx, stranger, resource.Root(), testProfile)
	require.NoError(t, err)
	items, err := fs.VectorSearchFSItem(ctx, r, query(t, fs, "orchard pears"), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b/x"}, itemPaths(items))
}

func TestSearch_NonPositiveCountsReturnNothing(t *testing.T) {
	fs := newTestFS(t, nil)
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "rivers", "", "rivers flow to the sea")
	saveText(t, fs, "/docs", "mountains", "", "mountains rise above the clouds")
	r := ownerReader(t, fs, "/")
	q := query(t, fs, "rivers")

	for _, k := range []int{0, -1} {
		items, err := fs.VectorSearchFSItemWithScore(ctx, r, q, k)
		require.NoError(t, err)
		assert.Empty(t, items, "k=%d", k)

		headers, err := fs.VectorSearchVRHeader(ctx, r, q, k)
		require.NoError(t, err)
		assert.Empty(t, headers, "k=%d", k)

		vrs, err := fs.VectorSearchVectorResource(ctx, r, q, k)
		require.NoError(t, err)
		assert.Empty(t, vrs, "k=%d", k)
	}

	tests := []struct {
		name             string
		nItems, nResults int
		wantAny          bool
	}{
		{"both positive", 2, 2, true},
		{"zero items", 0, 2, false},
		{"zero results", 2, 0, false},
		{"negative results", 2, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.DeepVectorSearch(ctx, r, "rivers flow", tt.nItems, tt.nResults, resource.SearchModeDefault)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAny, len(got) > 0)
		})
	}
}

func TestSearch_FanOutIsNotAccessLogged(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fs := newTestFS(t, nil, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	mkdir(t, fs, "/", "docs")
	saveText(t, fs, "/docs", "fox", "", "the quick brown fox")
	saveText(t, fs, "/docs", "dog", "", "the lazy dog sleeps")
	clock = clock.Add(time.Hour)
	r := ownerReader(t, fs, "/")

	before, err := fs.AccessLogs(ctx, testProfile, testProfile, 0)
	require.NoError(t, err)

	items, err := fs.VectorSearchFSItem(ctx, r, query(t, fs, "fox"), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	results, err := fs.DeepVectorSearch(ctx, r, "fox", 2, 2, resource.SearchModeDefault)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	after, err := fs.AccessLogs(ctx, testProfile, testProfile, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	for _, path := range []string{"/docs/fox", "/docs/dog"} {
		read, ok := mustInternals(t, fs).LastRead.Get(p(path))
		require.True(t, ok, path)
		assert.Equal(t, clock, read.Time, path)
	}
}
