package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTree builds:
//
//	/1        "top"
//	/2        nested document "chapter"
//	/2/1      "inner one"   (lang=en)
//	/2/2      "inner two"   (lang=fr)
func newTestTree(t *testing.T) *Document {
	t.Helper()
	chapter := NewDocument("chapter", "", NoSource(), ModelAllMiniLML6V2)
	chapter.SetResourceEmbedding(vec("", 0, 1))
	chapter.AppendText("inner one", map[string]string{"lang": "en"}, vec("", 0, 1), nil)
	chapter.AppendText("inner two", map[string]string{"lang": "fr"}, vec("", 1, 1), nil)

	root := NewDocument("book", "", NoSource(), ModelAllMiniLML6V2)
	root.AppendText("top", nil, vec("", 1, 0), nil)
	root.AppendResource(chapter, nil)
	return root
}

func TestRetrieveNodeAtPath(t *testing.T) {
	root := newTestTree(t)

	tests := []struct {
		name     string
		path     string
		wantText string
		wantErr  bool
	}{
		{name: "top level", path: "/1", wantText: "top"},
		{name: "nested", path: "/2/2", wantText: "inner two"},
		{name: "missing id", path: "/3", wantErr: true},
		{name: "through text node", path: "/1/1", wantErr: true},
		{name: "missing nested id", path: "/2/9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret, err := RetrieveNodeAtPath(root, MustParseVRPath(tt.path))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVRPath)
				assert.False(t, CheckNodeExistsAtPath(root, MustParseVRPath(tt.path)))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, ret.Node.Text)
			assert.Equal(t, tt.path, ret.RetrievalPath.String())
			assert.Equal(t, root.ResourceID(), ret.ResourceHeader.ResourceID)
		})
	}

	_, err := RetrieveNodeAtPath(root, Root())
	assert.ErrorIs(t, err, ErrInvalidVRPath)
}

func TestRetrieveNodeAndEmbeddingAtPath_Scores(t *testing.T) {
	root := newTestTree(t)
	q := vec("", 0, 1)

	ret, emb, err := RetrieveNodeAndEmbeddingAtPath(root, MustParseVRPath("/2/1"), &q)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, emb.Vector)
	assert.InDelta(t, 1.0, ret.Score, 1e-6)
}

func TestMutateNodeAtPath(t *testing.T) {
	root := newTestTree(t)
	p := MustParseVRPath("/2/1")

	err := MutateNodeAtPath(root, p, func(n *Node, e *Embedding) error {
		n.Text = "changed"
		n.SetMetadata("edited", "yes")
		return nil
	})
	require.NoError(t, err)

	ret, err := RetrieveNodeAtPath(root, p)
	require.NoError(t, err)
	assert.Equal(t, "changed", ret.Node.Text)

	chapter, err := RetrieveResourceAtPath(root, MustParseVRPath("/2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, chapter.MetadataIndex().NodeIDs("edited"))

	assert.Error(t, MutateNodeAtPath(root, MustParseVRPath("/2/5"), func(*Node, *Embedding) error { return nil }))
}

func TestMutateNodeAtPath_FailureLeavesNodeUnchanged(t *testing.T) {
	root := newTestTree(t)
	p := MustParseVRPath("/1")

	err := MutateNodeAtPath(root, p, func(n *Node, e *Embedding) error {
		n.Text = "should not persist"
		return ErrNoNodeFound
	})
	assert.ErrorIs(t, err, ErrNoNodeFound)

	ret, err := RetrieveNodeAtPath(root, p)
	require.NoError(t, err)
	assert.Equal(t, "top", ret.Node.Text)
}

func TestInsertAppendPopAtPath(t *testing.T) {
	root := newTestTree(t)
	chapterPath := MustParseVRPath("/2")

	require.NoError(t, InsertNodeAtPath(root, chapterPath, "1", NewTextNode("", "preface", nil, nil), vec("", 1, 0)))
	require.NoError(t, AppendNodeAtPath(root, chapterPath, NewTextNode("", "epilogue", nil, nil), vec("", 1, 0)))

	chapter, err := RetrieveResourceAtPath(root, chapterPath)
	require.NoError(t, err)
	assertDenseIDs(t, chapter)
	require.Equal(t, 4, chapter.NodeCount())

	popped, _, err := PopNodeAtPath(root, chapterPath)
	require.NoError(t, err)
	assert.Equal(t, "epilogue", popped.Text)

	removed, _, err := RemoveNodeAtPath(root, MustParseVRPath("/2/1"))
	require.NoError(t, err)
	assert.Equal(t, "preface", removed.Text)

	ret, err := RetrieveNodeAtPath(root, MustParseVRPath("/2/1"))
	require.NoError(t, err)
	assert.Equal(t, "inner one", ret.Node.Text)
}

func TestMetadataSearch(t *testing.T) {
	root := newTestTree(t)

	found, err := MetadataSearch(root, "lang", "fr")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/2/2", found[0].RetrievalPath.String())

	_, err = MetadataSearch(root, "lang", "de")
	assert.ErrorIs(t, err, ErrNoNodeFound)
}

func TestProximityRetrieveNodesAtPath(t *testing.T) {
	root := newTestTree(t)

	got, err := ProximityRetrieveNodesAtPath(root, MustParseVRPath("/2/1"), 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/2/1", got[0].RetrievalPath.String())
	assert.Equal(t, "/2/2", got[1].RetrievalPath.String())
	for _, r := range got {
		assert.Zero(t, r.Score)
	}
}
