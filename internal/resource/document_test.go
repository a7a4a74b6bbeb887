package resource

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(id string, v ...float32) Embedding {
	return NewEmbedding(id, v)
}

func newTestDocument(t *testing.T, texts ...string) *Document {
	t.Helper()
	doc := NewDocument("doc", "test document", NoSource(), ModelAllMiniLML6V2)
	for i, text := range texts {
		doc.AppendText(text, nil, vec("", float32(i+1), 1), nil)
	}
	return doc
}

func assertDenseIDs(t *testing.T, vr VectorResource) {
	t.Helper()
	nodes := vr.Nodes()
	embs := vr.Embeddings()
	require.Len(t, embs, len(nodes))
	for i := range nodes {
		want := strconv.Itoa(i + 1)
		assert.Equal(t, want, nodes[i].ID, "node at position %d", i)
		assert.Equal(t, want, embs[i].ID, "embedding at position %d", i)
	}
}

func TestDocument_DenseIDs(t *testing.T) {
	tests := []struct {
		name  string
		ops   func(d *Document) error
		texts []string
	}{
		{
			name:  "appends",
			ops:   func(d *Document) error { return nil },
			texts: []string{"a", "b", "c"},
		},
		{
			name: "delete middle",
			ops: func(d *Document) error {
				_, _, err := d.DeleteNode("2")
				return err
			},
			texts: []string{"a", "c"},
		},
		{
			name: "delete first",
			ops: func(d *Document) error {
				_, _, err := d.DeleteNode("1")
				return err
			},
			texts: []string{"b", "c"},
		},
		{
			name: "insert middle",
			ops: func(d *Document) error {
				return d.InsertNode("2", NewTextNode("", "x", nil, nil), vec("", 1, 0))
			},
			texts: []string{"a", "x", "b", "c"},
		},
		{
			name: "insert at end",
			ops: func(d *Document) error {
				return d.InsertNode("4", NewTextNode("", "x", nil, nil), vec("", 1, 0))
			},
			texts: []string{"a", "b", "c", "x"},
		},
		{
			name: "pop then append",
			ops: func(d *Document) error {
				if _, _, err := d.PopNode(); err != nil {
					return err
				}
				d.AppendText("z", nil, vec("", 0, 1), nil)
				return nil
			},
			texts: []string{"a", "b", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newTestDocument(t, "a", "b", "c")
			require.NoError(t, tt.ops(doc))

			assertDenseIDs(t, doc)
			require.Equal(t, len(tt.texts), doc.NodeCount())
			for i, want := range tt.texts {
				n, err := doc.GetNode(strconv.Itoa(i + 1))
				require.NoError(t, err)
				assert.Equal(t, want, n.Text)
			}
		})
	}
}

func TestDocument_InvalidIDs(t *testing.T) {
	doc := newTestDocument(t, "a", "b")

	for _, id := range []string{"0", "3", "-1", "abc", ""} {
		t.Run("id "+id, func(t *testing.T) {
			_, err := doc.GetNode(id)
			assert.ErrorIs(t, err, ErrInvalidNodeID)

			_, _, err = doc.ReplaceNode(id, NewTextNode("", "x", nil, nil), vec("", 1, 0))
			assert.ErrorIs(t, err, ErrInvalidNodeID)

			_, _, err = doc.RemoveNode(id)
			assert.ErrorIs(t, err, ErrInvalidNodeID)
		})
	}

	err := doc.InsertNode("4", NewTextNode("", "x", nil, nil), vec("", 1, 0))
	assert.ErrorIs(t, err, ErrInvalidNodeID)
	assert.Equal(t, 2, doc.NodeCount())
}

func TestDocument_PopEmpty(t *testing.T) {
	doc := newTestDocument(t)
	_, _, err := doc.PopNode()
	assert.ErrorIs(t, err, ErrInvalidNodeID)
}

func TestDocument_ReplaceKeepsIndicesInSync(t *testing.T) {
	doc := NewDocument("doc", "", NoSource(), ModelAllMiniLML6V2)
	doc.AppendText("alpha", map[string]string{"lang": "en"}, vec("", 1, 0), nil)
	doc.AppendText("beta", nil, vec("", 0, 1), nil)

	assert.Equal(t, []string{"1"}, doc.MetadataIndex().NodeIDs("lang"))

	_, err := doc.ReplaceText("1", "gamma", map[string]string{"kind": "greek"}, vec("", 1, 1), nil)
	require.NoError(t, err)

	assert.Empty(t, doc.MetadataIndex().NodeIDs("lang"))
	assert.Equal(t, []string{"1"}, doc.MetadataIndex().NodeIDs("kind"))
}

func TestDocument_DataTagsValidated(t *testing.T) {
	email, err := NewDataTag("email", "", `[a-z]+@[a-z]+\.[a-z]+`)
	require.NoError(t, err)
	rules := []DataTag{email}

	doc := NewDocument("doc", "", NoSource(), ModelAllMiniLML6V2)
	doc.AppendText("write to bob@example.com", nil, vec("", 1, 0), rules)
	doc.AppendText("no address here", nil, vec("", 0, 1), rules)

	assert.Equal(t, []string{"1"}, doc.DataTagIndex().NodeIDs("email"))

	_, _, err = doc.DeleteNode("1")
	require.NoError(t, err)
	assert.Empty(t, doc.DataTagIndex().NodeIDs("email"))
}

func TestNewDataTag_InvalidPattern(t *testing.T) {
	_, err := NewDataTag("bad", "", "(")
	assert.ErrorIs(t, err, ErrInvalidDataTag)

	_, err = NewDataTag("", "", "a")
	assert.ErrorIs(t, err, ErrInvalidDataTag)
}

func TestDocument_NodeProximity(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "node " + strconv.Itoa(i+1)
	}
	doc := newTestDocument(t, texts...)

	tests := []struct {
		name    string
		id      string
		window  int
		wantIDs []string
	}{
		{name: "clamped at start", id: "1", window: 5, wantIDs: []string{"1", "2", "3", "4", "5", "6"}},
		{name: "clamped at end", id: "9", window: 2, wantIDs: []string{"7", "8", "9", "10"}},
		{name: "middle", id: "5", window: 1, wantIDs: []string{"4", "5", "6"}},
		{name: "zero window", id: "3", window: 0, wantIDs: []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, embs, err := doc.NodeProximity(tt.id, tt.window)
			require.NoError(t, err)
			require.Len(t, embs, len(nodes))
			ids := make([]string, len(nodes))
			for i, n := range nodes {
				ids[i] = n.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	inner := newTestDocument(t, "inner")
	outer := NewDocument("outer", "", NoSource(), ModelAllMiniLML6V2)
	outer.AppendResource(inner, nil)

	clone := outer.Clone()
	_, _, err := RemoveNodeAtPath(clone, MustParseVRPath("/1/1"))
	require.NoError(t, err)

	assert.Equal(t, 1, inner.NodeCount())
	res, err := RetrieveResourceAtPath(clone, MustParseVRPath("/1"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.NodeCount())
}
