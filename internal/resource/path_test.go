package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVRPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		depth   int
		wantErr error
	}{
		{name: "root", input: "/", want: "/", depth: 0},
		{name: "single", input: "/docs", want: "/docs", depth: 0},
		{name: "nested", input: "/docs/a/b", want: "/docs/a/b", depth: 2},
		{name: "trailing slash", input: "/docs/a/", want: "/docs/a", depth: 1},
		{name: "missing leading slash", input: "docs", wantErr: ErrInvalidPathString},
		{name: "empty", input: "", wantErr: ErrInvalidPathString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseVRPath(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, tt.depth, p.Depth())
		})
	}
}

func TestVRPath_PushDoesNotAlias(t *testing.T) {
	base := MustParseVRPath("/a/b")
	left := base.Push("x")
	right := base.Push("y")

	assert.Equal(t, "/a/b/x", left.String())
	assert.Equal(t, "/a/b/y", right.String())
	assert.Equal(t, "/a/b", base.String())
}

func TestVRPath_CleansIDs(t *testing.T) {
	p := Root().Push("a/b:c")
	assert.Equal(t, "/a-b_c", p.String())
	assert.Equal(t, 1, p.DepthInclusive())
}

func TestVRPath_Relations(t *testing.T) {
	a := MustParseVRPath("/a")
	ab := MustParseVRPath("/a/b")
	abc := MustParseVRPath("/a/b/c")

	assert.True(t, a.IsParentOf(ab))
	assert.False(t, a.IsParentOf(abc))
	assert.True(t, a.IsAncestorOf(abc))
	assert.True(t, Root().IsAncestorOf(a))
	assert.False(t, abc.IsAncestorOf(a))
	assert.False(t, a.IsAncestorOf(a))
	assert.True(t, abc.Parent().Equal(ab))
	assert.True(t, Root().Parent().IsRoot())

	lineage := abc.Lineage()
	require.Len(t, lineage, 3)
	assert.Equal(t, "/a", lineage[0].String())
	assert.Equal(t, "/a/b", lineage[1].String())
	assert.Equal(t, "/a/b/c", lineage[2].String())

	last, err := abc.LastID()
	require.NoError(t, err)
	assert.Equal(t, "c", last)
	_, err = Root().LastID()
	assert.ErrorIs(t, err, ErrInvalidVRPath)
}

func TestVRPath_Rebase(t *testing.T) {
	from := MustParseVRPath("/old")
	to := MustParseVRPath("/new/place")

	got, ok := MustParseVRPath("/old/x/y").Rebase(from, to)
	require.True(t, ok)
	assert.Equal(t, "/new/place/x/y", got.String())

	got, ok = from.Rebase(from, to)
	require.True(t, ok)
	assert.Equal(t, "/new/place", got.String())

	_, ok = MustParseVRPath("/other").Rebase(from, to)
	assert.False(t, ok)
}

func TestVRPath_JSON(t *testing.T) {
	p := MustParseVRPath("/a/b")
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `"/a/b"`, string(data))

	var out VRPath
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Equal(p))

	assert.Error(t, json.Unmarshal([]byte(`"no-slash"`), &out))
}
