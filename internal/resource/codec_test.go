package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCodec_NestedRoundTrip(t *testing.T) {
	folder := NewMap("folder", "", NoSource(), ModelAllMiniLML6V2)
	require.NoError(t, folder.InsertResource("book", newTestTree(t), map[string]string{"kind": "item"}))

	data, err := MarshalResource(folder)
	require.NoError(t, err)

	decoded, err := UnmarshalResource(data)
	require.NoError(t, err)
	require.Equal(t, BaseTypeMap, decoded.BaseType())
	assert.Equal(t, folder.ResourceID(), decoded.ResourceID())

	ret, err := RetrieveNodeAtPath(decoded, MustParseVRPath("/book/2/2"))
	require.NoError(t, err)
	assert.Equal(t, "inner two", ret.Node.Text)

	assert.Equal(t, []string{"book"}, decoded.MetadataIndex().NodeIDs("kind"))

	chapter, err := RetrieveResourceAtPath(decoded, MustParseVRPath("/book/2"))
	require.NoError(t, err)
	assert.Equal(t, BaseTypeDocument, chapter.BaseType())
	assert.Equal(t, []string{"1", "2"}, chapter.MetadataIndex().NodeIDs("lang"))

	results := VectorSearch(decoded, vec("", 0, 1), 1)
	require.Len(t, results, 1)
	assert.Equal(t, "/book/2/1", results[0].RetrievalPath.String())
}

func TestUnmarshalResource_Errors(t *testing.T) {
	_, err := UnmarshalResource([]byte(`{"resource_base_type":"Graph"}`))
	assert.ErrorIs(t, err, ErrUnsupportedBaseType)

	_, err = UnmarshalResource([]byte(`{"resource_base_type":"Document","nodes":[{"id":"1","kind":"text","text":"a"}],"embeddings":[]}`))
	assert.Error(t, err)

	_, err = UnmarshalResource([]byte(`not json`))
	assert.Error(t, err)
}

func TestHeader_ReferenceString(t *testing.T) {
	doc := NewDocument("my file: v2", "", NoSource(), ModelAllMiniLML6V2)
	doc.SetResourceID("abc")
	assert.Equal(t, "my_file__v2:::abc", doc.ReferenceString())
	assert.Equal(t, doc.ReferenceString(), doc.Header().ReferenceString())
}
