package resource

import (
	"strings"
	"time"
)

// BaseType names a VectorResource variant.
type BaseType string

const (
	BaseTypeDocument BaseType = "Document"
	BaseTypeMap      BaseType = "Map"
)

// SourceType classifies where a resource's content came from.
type SourceType string

const (
	SourceNone  SourceType = "none"
	SourceFile  SourceType = "file"
	SourceURL   SourceType = "url"
	SourceOther SourceType = "other"
)

// Source references the origin of a resource or external node.
type Source struct {
	Type      SourceType `json:"type"`
	Reference string     `json:"reference,omitempty"`
	FileType  string     `json:"file_type,omitempty"`
}

// NoSource is the source of resources built in memory.
func NoSource() Source {
	return Source{Type: SourceNone}
}

// VRHeader is a lightweight description of a VectorResource stored elsewhere.
// The filesystem keeps headers in its tree and loads full resources by
// ReferenceString.
type VRHeader struct {
	ResourceName                string     `json:"resource_name"`
	ResourceID                  string     `json:"resource_id"`
	ResourceBaseType            BaseType   `json:"resource_base_type"`
	ResourceSource              Source     `json:"resource_source"`
	ResourceEmbedding           *Embedding `json:"resource_embedding,omitempty"`
	ResourceCreatedDatetime     time.Time  `json:"resource_created_datetime"`
	ResourceLastWrittenDatetime time.Time  `json:"resource_last_written_datetime"`
	ResourceEmbeddingModelUsed  ModelType  `json:"resource_embedding_model_used"`
	ResourceMerkleRoot          string     `json:"resource_merkle_root,omitempty"`
	ResourceDescription         string     `json:"resource_description,omitempty"`
	DataTagNames                []string   `json:"data_tag_names,omitempty"`
	MetadataIndexKeys           []string   `json:"metadata_index_keys,omitempty"`
}

// ReferenceString identifies the resource, formatted "{name}:::{resource_id}".
func (h VRHeader) ReferenceString() string {
	return ReferenceString(h.ResourceName, h.ResourceID)
}

// ReferenceString formats a name and resource id into the key used to persist a resource.
func ReferenceString(name, resourceID string) string {
	clean := strings.NewReplacer(" ", "_", ":", "_", "/", "-")
	return clean.Replace(name) + ":::" + clean.Replace(resourceID)
}

// Clone deep-copies the header.
func (h VRHeader) Clone() VRHeader {
	c := h
	if h.ResourceEmbedding != nil {
		e := h.ResourceEmbedding.Clone()
		c.ResourceEmbedding = &e
	}
	c.DataTagNames = append([]string(nil), h.DataTagNames...)
	c.MetadataIndexKeys = append([]string(nil), h.MetadataIndexKeys...)
	return c
}
