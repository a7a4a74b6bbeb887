package vectorfs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// Metadata keys stored on the core tree nodes.
const (
	metaVRLastSaved      = "vr_last_saved"
	metaVRSize           = "vr_size"
	metaSFMLastSaved     = "sfm_last_saved"
	metaSFMSize          = "sfm_size"
	metaLastModified     = "last_modified"
	metaDistributionInfo = "distribution_info"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeMeta(n resource.Node, key string) (time.Time, bool, error) {
	raw, ok := n.Metadata[key]
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("%w: metadata %s on node %s: %v", ErrDataConversion, key, n.ID, err)
	}
	return t, true, nil
}

func parseSizeMeta(n resource.Node, key string) (int, error) {
	raw, ok := n.Metadata[key]
	if !ok {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: metadata %s on node %s: %v", ErrDataConversion, key, n.ID, err)
	}
	return size, nil
}

// DistributionInfo records where an item was originally released from.
type DistributionInfo struct {
	Origin          *identity.Name `json:"origin,omitempty"`
	ReleaseDatetime *time.Time     `json:"release_datetime,omitempty"`
}

// IsZero reports whether no distribution details are set.
func (d DistributionInfo) IsZero() bool {
	return d.Origin == nil && d.ReleaseDatetime == nil
}

// FSItem is the filesystem view of a saved vector resource.
type FSItem struct {
	Name                           string           `json:"name"`
	Path                           resource.VRPath  `json:"path"`
	VRHeader                       resource.VRHeader `json:"vr_header"`
	CreatedDatetime                time.Time        `json:"created_datetime"`
	LastWrittenDatetime            time.Time        `json:"last_written_datetime"`
	LastReadDatetime               time.Time        `json:"last_read_datetime"`
	VRLastSavedDatetime            time.Time        `json:"vr_last_saved_datetime"`
	SourceFileMapLastSavedDatetime *time.Time       `json:"source_file_map_last_saved_datetime,omitempty"`
	DistributionInfo               DistributionInfo `json:"distribution_info"`
	VRSize                         int              `json:"vr_size"`
	SourceFileMapSize              int              `json:"source_file_map_size"`
	MerkleHash                     string           `json:"merkle_hash,omitempty"`
}

// ResourceDBKey is the store key of the item's vector resource.
func (i FSItem) ResourceDBKey() string {
	return i.VRHeader.ReferenceString()
}

// IsSourceFileMapSaved reports whether a source file map was ever saved.
func (i FSItem) IsSourceFileMapSaved() bool {
	return i.SourceFileMapLastSavedDatetime != nil
}

// SourceFileMapDBKey is the store key of the item's source file map.
func (i FSItem) SourceFileMapDBKey() (string, error) {
	if !i.IsSourceFileMapSaved() {
		return "", pathErr(i.Path, ErrNoSourceFileMapSaved)
	}
	return i.ResourceDBKey(), nil
}

// itemFromNode builds an FSItem from a VRHeader node of the core tree.
func itemFromNode(n resource.Node, p resource.VRPath, lr *LastReadIndex) (FSItem, error) {
	header, err := n.HeaderContent()
	if err != nil {
		return FSItem{}, pathErr(p, ErrPathDoesNotPointAtItem)
	}

	vrSaved, _, err := parseTimeMeta(n, metaVRLastSaved)
	if err != nil {
		return FSItem{}, err
	}
	item := FSItem{
		Name:                header.ResourceName,
		Path:                p,
		VRHeader:            header,
		CreatedDatetime:     header.ResourceCreatedDatetime,
		LastWrittenDatetime: header.ResourceLastWrittenDatetime,
		LastReadDatetime:    lr.GetOrNow(p),
		VRLastSavedDatetime: vrSaved,
		MerkleHash:          n.MerkleHash,
	}
	if sfmSaved, ok, err := parseTimeMeta(n, metaSFMLastSaved); err != nil {
		return FSItem{}, err
	} else if ok {
		item.SourceFileMapLastSavedDatetime = &sfmSaved
	}
	if item.VRSize, err = parseSizeMeta(n, metaVRSize); err != nil {
		return FSItem{}, err
	}
	if item.SourceFileMapSize, err = parseSizeMeta(n, metaSFMSize); err != nil {
		return FSItem{}, err
	}
	if raw, ok := n.Metadata[metaDistributionInfo]; ok {
		if err := json.Unmarshal([]byte(raw), &item.DistributionInfo); err != nil {
			return FSItem{}, fmt.Errorf("%w: distribution info on node %s: %v", ErrDataConversion, n.ID, err)
		}
	}
	return item, nil
}

// FSFolder is the filesystem view of a folder and everything under it.
type FSFolder struct {
	Name                 string          `json:"name"`
	Path                 resource.VRPath `json:"path"`
	ChildFolders         []FSFolder      `json:"child_folders"`
	ChildItems           []FSItem        `json:"child_items"`
	CreatedDatetime      time.Time       `json:"created_datetime"`
	LastReadDatetime     time.Time       `json:"last_read_datetime"`
	LastModifiedDatetime time.Time       `json:"last_modified_datetime"`
	LastWrittenDatetime  time.Time       `json:"last_written_datetime"`
	MerkleHash           string          `json:"merkle_hash,omitempty"`
}

// folderFromNode builds an FSFolder from a folder node of the core tree.
func folderFromNode(n resource.Node, p resource.VRPath, lr *LastReadIndex) (FSFolder, error) {
	vr, err := n.ResourceContent()
	if err != nil {
		return FSFolder{}, pathErr(p, ErrPathDoesNotPointAtFolder)
	}
	modified, ok, err := parseTimeMeta(n, metaLastModified)
	if err != nil {
		return FSFolder{}, err
	}
	if !ok {
		modified = vr.LastWrittenDatetime()
	}
	return folderFromResource(vr, p, lr, modified)
}

func folderFromResource(vr resource.VectorResource, p resource.VRPath, lr *LastReadIndex, modified time.Time) (FSFolder, error) {
	folders, items, err := childEntries(vr, p, lr)
	if err != nil {
		return FSFolder{}, err
	}
	name := vr.Name()
	if id, err := p.LastID(); err == nil {
		name = id
	}
	return FSFolder{
		Name:                 name,
		Path:                 p,
		ChildFolders:         folders,
		ChildItems:           items,
		CreatedDatetime:      vr.CreatedDatetime(),
		LastReadDatetime:     lr.GetOrNow(p),
		LastModifiedDatetime: modified,
		LastWrittenDatetime:  vr.LastWrittenDatetime(),
		MerkleHash:           vr.MerkleRoot(),
	}, nil
}

// childEntries splits the root nodes of a folder resource into subfolders and items.
func childEntries(vr resource.VectorResource, p resource.VRPath, lr *LastReadIndex) ([]FSFolder, []FSItem, error) {
	folders := []FSFolder{}
	items := []FSItem{}
	for _, n := range vr.Nodes() {
		childPath := p.Push(n.ID)
		switch n.Kind {
		case resource.ContentResource:
			f, err := folderFromNode(n, childPath, lr)
			if err != nil {
				return nil, nil, err
			}
			folders = append(folders, f)
		case resource.ContentVRHeader:
			it, err := itemFromNode(n, childPath, lr)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, it)
		}
	}
	return folders, items, nil
}

// FSRoot is the filesystem view of a profile's root folder.
type FSRoot struct {
	Path                resource.VRPath `json:"path"`
	ChildFolders        []FSFolder      `json:"child_folders"`
	ChildItems          []FSItem        `json:"child_items"`
	LastWrittenDatetime time.Time       `json:"last_written_datetime"`
}

func rootFromCore(core *resource.Map, lr *LastReadIndex) (FSRoot, error) {
	folders, items, err := childEntries(core, resource.Root(), lr)
	if err != nil {
		return FSRoot{}, err
	}
	return FSRoot{
		Path:                resource.Root(),
		ChildFolders:        folders,
		ChildItems:          items,
		LastWrittenDatetime: core.LastWrittenDatetime(),
	}, nil
}

// EntryKind discriminates FSEntry.
type EntryKind string

const (
	EntryFolder EntryKind = "folder"
	EntryItem   EntryKind = "item"
	EntryRoot   EntryKind = "root"
)

// FSEntry is one of a folder, an item or the root.
type FSEntry struct {
	Kind   EntryKind `json:"kind"`
	Folder *FSFolder `json:"folder,omitempty"`
	Item   *FSItem   `json:"item,omitempty"`
	Root   *FSRoot   `json:"root,omitempty"`
}

// Path returns the path of the entry.
func (e FSEntry) Path() resource.VRPath {
	switch e.Kind {
	case EntryFolder:
		return e.Folder.Path
	case EntryItem:
		return e.Item.Path
	default:
		return resource.Root()
	}
}

// AsFolder returns the folder or ErrPathDoesNotPointAtFolder.
func (e FSEntry) AsFolder() (FSFolder, error) {
	if e.Kind != EntryFolder || e.Folder == nil {
		return FSFolder{}, pathErr(e.Path(), ErrPathDoesNotPointAtFolder)
	}
	return *e.Folder, nil
}

// AsItem returns the item or ErrPathDoesNotPointAtItem.
func (e FSEntry) AsItem() (FSItem, error) {
	if e.Kind != EntryItem || e.Item == nil {
		return FSItem{}, pathErr(e.Path(), ErrPathDoesNotPointAtItem)
	}
	return *e.Item, nil
}

// AsRoot returns the root or ErrPathDoesNotPointAtFolder.
func (e FSEntry) AsRoot() (FSRoot, error) {
	if e.Kind != EntryRoot || e.Root == nil {
		return FSRoot{}, pathErr(e.Path(), ErrPathDoesNotPointAtFolder)
	}
	return *e.Root, nil
}

// SourceFile is an original file a vector resource was built from.
type SourceFile struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content []byte `json:"content"`
}

// SourceFileMap maps paths inside a vector resource to their source files.
// Keys are VRPath strings.
type SourceFileMap struct {
	Files map[string]SourceFile `json:"map"`
}

// NewSourceFileMap creates an empty map.
func NewSourceFileMap() *SourceFileMap {
	return &SourceFileMap{Files: make(map[string]SourceFile)}
}

// Add stores f under p.
func (m *SourceFileMap) Add(p resource.VRPath, f SourceFile) {
	if m.Files == nil {
		m.Files = make(map[string]SourceFile)
	}
	m.Files[p.String()] = f
}

// Get returns the file stored under p.
func (m *SourceFileMap) Get(p resource.VRPath) (SourceFile, bool) {
	f, ok := m.Files[p.String()]
	return f, ok
}

// EncodedSize is the size of the JSON encoding.
func (m *SourceFileMap) EncodedSize() (int, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("%w: encoding source file map: %v", ErrDataConversion, err)
	}
	return len(raw), nil
}

// VRKai bundles a vector resource with its optional source file map.
type VRKai struct {
	Resource resource.VectorResource
	SFM      *SourceFileMap
}

type vrkaiJSON struct {
	Resource json.RawMessage `json:"resource"`
	SFM      *SourceFileMap  `json:"sfm,omitempty"`
}

// MarshalJSON encodes the bundle.
func (k VRKai) MarshalJSON() ([]byte, error) {
	raw, err := resource.MarshalResource(k.Resource)
	if err != nil {
		return nil, err
	}
	return json.Marshal(vrkaiJSON{Resource: raw, SFM: k.SFM})
}

// UnmarshalJSON decodes the bundle.
func (k *VRKai) UnmarshalJSON(data []byte) error {
	var in vrkaiJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	vr, err := resource.UnmarshalResource(in.Resource)
	if err != nil {
		return err
	}
	k.Resource = vr
	k.SFM = in.SFM
	return nil
}

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)

// cleanEntryName turns a folder or item name into a path id.
func cleanEntryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidEntryName)
	}
	return resource.CleanPathID(name), nil
}

// stripExtension drops a trailing file extension such as ".pdf" from a
// resource name.
func stripExtension(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 && extensionPattern.MatchString(name[i:]) {
		return name[:i]
	}
	return name
}
