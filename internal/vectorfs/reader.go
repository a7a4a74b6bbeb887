package vectorfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

// Reader is a read capability for one path of one profile. It can only be
// obtained from NewReader, which checks read access first.
type Reader struct {
	fs        *VectorFS
	requester identity.Name
	path      resource.VRPath
	profile   identity.Name
}

// Requester returns who the reader was granted to.
func (r *Reader) Requester() identity.Name { return r.requester }

// Path returns the path the reader may read.
func (r *Reader) Path() resource.VRPath { return r.path }

// Profile returns the profile the path belongs to.
func (r *Reader) Profile() identity.Name { return r.profile }

// NewReaderCopiedData checks read access at path for the same requester and
// profile and returns a new reader for it.
func (r *Reader) NewReaderCopiedData(ctx context.Context, path resource.VRPath) (*Reader, error) {
	return r.fs.NewReader(ctx, r.requester, path, r.profile)
}

// itemReader is NewReaderCopiedData for the per-item fan-out of searches.
// The read still counts in the last-read index but is not access logged;
// the search itself was.
func (r *Reader) itemReader(ctx context.Context, path resource.VRPath) (*Reader, error) {
	return r.fs.newReader(ctx, r.requester, path, r.profile, false)
}

// NewReader validates that requester may read path in profile. On success the
// read is recorded in the access log and then in the last-read index.
func (v *VectorFS) NewReader(ctx context.Context, requester identity.Name, path resource.VRPath, profile identity.Name) (*Reader, error) {
	return v.newReader(ctx, requester, path, profile, true)
}

func (v *VectorFS) newReader(ctx context.Context, requester identity.Name, path resource.VRPath, profile identity.Name, logAccess bool) (*Reader, error) {
	if !profile.HasProfile() {
		return nil, fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}
	now := v.now()

	v.mu.RLock()
	in, ok := v.profiles[profile.String()]
	var err error
	if ok {
		err = in.Permissions.ValidateReadAccess(requester, path)
	}
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}

	recordAccess("read", err)
	if err != nil {
		v.logger.Debug("reader denied",
			zap.String("vfs.profile", profile.String()),
			zap.String("vfs.requester", requester.String()),
			zap.String("path", path.String()))
		return nil, err
	}

	if logAccess {
		entry := store.AccessLog{Requester: requester.String(), Path: path.String(), Kind: store.AccessRead, Time: now}
		if err := v.addAccessLog(ctx, profile, entry); err != nil {
			return nil, fmt.Errorf("recording read access: %w", err)
		}
	}

	// The internals may have been swapped by a write since validation.
	v.mu.RLock()
	if cur, ok := v.profiles[profile.String()]; ok {
		cur.LastRead.Update(path, now, requester)
	}
	v.mu.RUnlock()
	return &Reader{fs: v, requester: requester, path: path, profile: profile}, nil
}

// nodeAt returns the core node at path.
func nodeAt(in *Internals, path resource.VRPath) (resource.Node, error) {
	if path.IsRoot() {
		return resource.Node{}, pathErr(path, ErrPathDoesNotPointAtItem)
	}
	ret, err := resource.RetrieveNodeAtPath(in.Core, path)
	if err != nil {
		return resource.Node{}, pathErr(path, ErrNoEntryAtPath)
	}
	return ret.Node, nil
}

// folderAt returns the resource backing the folder at path. The root path
// yields the core resource.
func folderAt(in *Internals, path resource.VRPath) (resource.VectorResource, error) {
	if path.IsRoot() {
		return in.Core, nil
	}
	n, err := nodeAt(in, path)
	if err != nil {
		return nil, err
	}
	if n.Kind != resource.ContentResource || n.Resource == nil {
		return nil, pathErr(path, ErrPathDoesNotPointAtFolder)
	}
	return n.Resource, nil
}

// itemNodeAt returns the VRHeader node of the item at path.
func itemNodeAt(in *Internals, path resource.VRPath) (resource.Node, error) {
	n, err := nodeAt(in, path)
	if err != nil {
		return resource.Node{}, err
	}
	if n.Kind != resource.ContentVRHeader || n.Header == nil {
		return resource.Node{}, pathErr(path, ErrPathDoesNotPointAtItem)
	}
	return n, nil
}

func itemAt(in *Internals, path resource.VRPath) (FSItem, error) {
	n, err := itemNodeAt(in, path)
	if err != nil {
		return FSItem{}, err
	}
	return itemFromNode(n, path, in.LastRead)
}

func entryAt(in *Internals, path resource.VRPath) (FSEntry, error) {
	if path.IsRoot() {
		root, err := rootFromCore(in.Core, in.LastRead)
		if err != nil {
			return FSEntry{}, err
		}
		return FSEntry{Kind: EntryRoot, Root: &root}, nil
	}
	n, err := nodeAt(in, path)
	if err != nil {
		return FSEntry{}, err
	}
	switch n.Kind {
	case resource.ContentResource:
		f, err := folderFromNode(n, path, in.LastRead)
		if err != nil {
			return FSEntry{}, err
		}
		return FSEntry{Kind: EntryFolder, Folder: &f}, nil
	case resource.ContentVRHeader:
		it, err := itemFromNode(n, path, in.LastRead)
		if err != nil {
			return FSEntry{}, err
		}
		return FSEntry{Kind: EntryItem, Item: &it}, nil
	default:
		return FSEntry{}, pathErr(path, ErrNoEntryAtPath)
	}
}

// visibleChildren drops the children requester may not read.
func visibleChildren(in *Internals, requester identity.Name, folders []FSFolder, items []FSItem) ([]FSFolder, []FSItem) {
	outFolders := make([]FSFolder, 0, len(folders))
	for _, f := range folders {
		if in.Permissions.ValidateReadAccess(requester, f.Path) != nil {
			continue
		}
		f.ChildFolders, f.ChildItems = visibleChildren(in, requester, f.ChildFolders, f.ChildItems)
		outFolders = append(outFolders, f)
	}
	outItems := make([]FSItem, 0, len(items))
	for _, it := range items {
		if in.Permissions.ValidateReadAccess(requester, it.Path) == nil {
			outItems = append(outItems, it)
		}
	}
	return outFolders, outItems
}

// RetrieveFSEntry returns the folder, item or root at the reader's path.
// Children the requester may not read are left out.
func (v *VectorFS) RetrieveFSEntry(ctx context.Context, r *Reader) (FSEntry, error) {
	var entry FSEntry
	err := v.view(r.profile, func(in *Internals) error {
		var err error
		if entry, err = entryAt(in, r.path); err != nil {
			return err
		}
		switch entry.Kind {
		case EntryRoot:
			entry.Root.ChildFolders, entry.Root.ChildItems = visibleChildren(in, r.requester, entry.Root.ChildFolders, entry.Root.ChildItems)
		case EntryFolder:
			entry.Folder.ChildFolders, entry.Folder.ChildItems = visibleChildren(in, r.requester, entry.Folder.ChildFolders, entry.Folder.ChildItems)
		}
		return nil
	})
	return entry, err
}

// RetrieveVRHeader returns the header of the item at the reader's path.
func (v *VectorFS) RetrieveVRHeader(ctx context.Context, r *Reader) (resource.VRHeader, error) {
	var header resource.VRHeader
	err := v.view(r.profile, func(in *Internals) error {
		n, err := itemNodeAt(in, r.path)
		if err != nil {
			return err
		}
		header = n.Header.Clone()
		return nil
	})
	return header, err
}

// RetrieveVectorResource loads the vector resource of the item at the
// reader's path from the store.
func (v *VectorFS) RetrieveVectorResource(ctx context.Context, r *Reader) (resource.VectorResource, error) {
	var item FSItem
	err := v.view(r.profile, func(in *Internals) error {
		var err error
		item, err = itemAt(in, r.path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v.loadResource(ctx, r.profile, item.ResourceDBKey())
}

func (v *VectorFS) loadResource(ctx context.Context, profile identity.Name, key string) (resource.VectorResource, error) {
	raw, err := v.getStored(ctx, profile, key, false)
	if err != nil {
		return nil, fmt.Errorf("loading resource %s: %w", key, err)
	}
	vr, err := resource.UnmarshalResource(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding resource %s: %v", ErrDataConversion, key, err)
	}
	return vr, nil
}

// RetrieveSourceFileMap loads the source file map of the item at the
// reader's path. It fails with ErrNoSourceFileMapSaved if none was saved.
func (v *VectorFS) RetrieveSourceFileMap(ctx context.Context, r *Reader) (*SourceFileMap, error) {
	var key string
	err := v.view(r.profile, func(in *Internals) error {
		item, err := itemAt(in, r.path)
		if err != nil {
			return err
		}
		key, err = item.SourceFileMapDBKey()
		return err
	})
	if err != nil {
		return nil, err
	}
	raw, err := v.getStored(ctx, r.profile, key, true)
	if err != nil {
		return nil, fmt.Errorf("loading source file map %s: %w", key, err)
	}
	sfm := NewSourceFileMap()
	if err := json.Unmarshal(raw, sfm); err != nil {
		return nil, fmt.Errorf("%w: decoding source file map %s: %v", ErrDataConversion, key, err)
	}
	return sfm, nil
}

// RetrieveVRKai bundles the resource and, if saved, the source file map of
// the item at the reader's path.
func (v *VectorFS) RetrieveVRKai(ctx context.Context, r *Reader) (VRKai, error) {
	vr, err := v.RetrieveVectorResource(ctx, r)
	if err != nil {
		return VRKai{}, err
	}
	kai := VRKai{Resource: vr}
	sfm, err := v.RetrieveSourceFileMap(ctx, r)
	switch {
	case err == nil:
		kai.SFM = sfm
	case errors.Is(err, ErrNoSourceFileMapSaved):
	default:
		return VRKai{}, err
	}
	return kai, nil
}

// ValidatePathPointsToFolder fails unless path is a folder or the root.
func (v *VectorFS) ValidatePathPointsToFolder(profile identity.Name, path resource.VRPath) error {
	return v.view(profile, func(in *Internals) error {
		_, err := folderAt(in, path)
		return err
	})
}

// ValidatePathPointsToItem fails unless path is an item.
func (v *VectorFS) ValidatePathPointsToItem(profile identity.Name, path resource.VRPath) error {
	return v.view(profile, func(in *Internals) error {
		_, err := itemNodeAt(in, path)
		return err
	})
}

// ValidatePathPointsToEntry fails unless path is a folder, an item or the root.
func (v *VectorFS) ValidatePathPointsToEntry(profile identity.Name, path resource.VRPath) error {
	return v.view(profile, func(in *Internals) error {
		if path.IsRoot() {
			return nil
		}
		n, err := nodeAt(in, path)
		if err != nil {
			return err
		}
		if n.Kind != resource.ContentResource && n.Kind != resource.ContentVRHeader {
			return pathErr(path, ErrNoEntryAtPath)
		}
		return nil
	})
}

// IsFolderEmpty reports whether the folder at the reader's path has no children.
func (v *VectorFS) IsFolderEmpty(ctx context.Context, r *Reader) (bool, error) {
	var empty bool
	err := v.view(r.profile, func(in *Internals) error {
		folder, err := folderAt(in, r.path)
		if err != nil {
			return err
		}
		empty = folder.NodeCount() == 0
		return nil
	})
	return empty, err
}

// nodesUnder returns every readable node of kind below the folder at the
// reader's path.
func nodesUnder(in *Internals, r *Reader, kind resource.ContentKind) ([]resource.RetrievedNode, error) {
	if _, err := folderAt(in, r.path); err != nil {
		return nil, err
	}
	var out []resource.RetrievedNode
	for _, ret := range resource.RetrieveNodesOfKind(in.Core, r.path, kind) {
		if in.Permissions.ValidateReadAccess(r.requester, ret.RetrievalPath) == nil {
			out = append(out, ret)
		}
	}
	return out, nil
}

// CountFoldersUnderPath counts the readable folders below the reader's path,
// at any depth.
func (v *VectorFS) CountFoldersUnderPath(ctx context.Context, r *Reader) (int, error) {
	var n int
	err := v.view(r.profile, func(in *Internals) error {
		nodes, err := nodesUnder(in, r, resource.ContentResource)
		n = len(nodes)
		return err
	})
	return n, err
}

// CountItemsUnderPath counts the readable items below the reader's path, at
// any depth.
func (v *VectorFS) CountItemsUnderPath(ctx context.Context, r *Reader) (int, error) {
	var n int
	err := v.view(r.profile, func(in *Internals) error {
		nodes, err := nodesUnder(in, r, resource.ContentVRHeader)
		n = len(nodes)
		return err
	})
	return n, err
}

// RetrieveAllVRHeaderNodesUnderneathFolder returns the header nodes of every
// readable item below the reader's path.
func (v *VectorFS) RetrieveAllVRHeaderNodesUnderneathFolder(ctx context.Context, r *Reader) ([]resource.RetrievedNode, error) {
	var out []resource.RetrievedNode
	err := v.view(r.profile, func(in *Internals) error {
		var err error
		out, err = nodesUnder(in, r, resource.ContentVRHeader)
		return err
	})
	return out, err
}

// RetrieveAllItemPathsUnderneathFolder returns the path of every readable item
// below the reader's path.
func (v *VectorFS) RetrieveAllItemPathsUnderneathFolder(ctx context.Context, r *Reader) ([]resource.VRPath, error) {
	nodes, err := v.RetrieveAllVRHeaderNodesUnderneathFolder(ctx, r)
	if err != nil {
		return nil, err
	}
	paths := make([]resource.VRPath, 0, len(nodes))
	for _, n := range nodes {
		paths = append(paths, n.RetrievalPath)
	}
	return paths, nil
}

// FindPathsWithLastReadSince returns the readable paths at or below the
// reader's path that were read at or after since.
func (v *VectorFS) FindPathsWithLastReadSince(ctx context.Context, r *Reader, since time.Time) ([]resource.VRPath, error) {
	var out []resource.VRPath
	err := v.view(r.profile, func(in *Internals) error {
		for _, p := range in.LastRead.PathsReadSince(since) {
			if !p.Equal(r.path) && !r.path.IsAncestorOf(p) {
				continue
			}
			if in.Permissions.ValidateReadAccess(r.requester, p) == nil {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}
