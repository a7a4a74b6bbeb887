package vectorfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

// Writer is a write capability for one path of one profile. It can only be
// obtained from NewWriter, which checks write access first.
type Writer struct {
	fs        *VectorFS
	requester identity.Name
	path      resource.VRPath
	profile   identity.Name
}

// Requester returns who the writer was granted to.
func (w *Writer) Requester() identity.Name { return w.requester }

// Path returns the path the writer may write.
func (w *Writer) Path() resource.VRPath { return w.path }

// Profile returns the profile the path belongs to.
func (w *Writer) Profile() identity.Name { return w.profile }

// NewWriterCopiedData checks write access at path for the same requester and
// profile and returns a new writer for it.
func (w *Writer) NewWriterCopiedData(ctx context.Context, path resource.VRPath) (*Writer, error) {
	return w.fs.NewWriter(ctx, w.requester, path, w.profile)
}

// NewReaderCopiedData checks read access at path for the same requester and
// profile and returns a reader for it.
func (w *Writer) NewReaderCopiedData(ctx context.Context, path resource.VRPath) (*Reader, error) {
	return w.fs.NewReader(ctx, w.requester, path, w.profile)
}

// NewWriter validates that requester may write path in profile. On success
// the grant is recorded in the access log.
func (v *VectorFS) NewWriter(ctx context.Context, requester identity.Name, path resource.VRPath, profile identity.Name) (*Writer, error) {
	if !profile.HasProfile() {
		return nil, fmt.Errorf("%w: %s", ErrProfileNameNonExistent, profile)
	}
	var err error
	if verr := v.view(profile, func(in *Internals) error {
		err = in.Permissions.ValidateWriteAccess(requester, path)
		return nil
	}); verr != nil {
		return nil, verr
	}

	recordAccess("write", err)
	if err != nil {
		v.logger.Debug("writer denied",
			zap.String("vfs.profile", profile.String()),
			zap.String("vfs.requester", requester.String()),
			zap.String("path", path.String()))
		return nil, err
	}

	entry := store.AccessLog{Requester: requester.String(), Path: path.String(), Kind: store.AccessWrite, Time: v.now()}
	if err := v.addAccessLog(ctx, profile, entry); err != nil {
		return nil, fmt.Errorf("recording write access: %w", err)
	}
	return &Writer{fs: v, requester: requester, path: path, profile: profile}, nil
}

// inheritedPermission is the entry a new child of parent starts with: the
// parent's read and write permissions and profile lists without its
// whitelist. Children of the root are private.
func inheritedPermission(in *Internals, parent resource.VRPath) PathPermission {
	if parent.IsRoot() {
		return PrivatePermission()
	}
	perm, err := in.Permissions.Get(parent)
	if err != nil {
		return PrivatePermission()
	}
	return PathPermission{Read: perm.Read, Write: perm.Write, ReadProfiles: perm.ReadProfiles, WriteProfiles: perm.WriteProfiles}
}

// touchFolder stamps last_modified on the folder at path.
func touchFolder(in *Internals, path resource.VRPath, now time.Time) error {
	if path.IsRoot() {
		return nil
	}
	return resource.MutateNodeAtPath(in.Core, path, func(n *resource.Node, _ *resource.Embedding) error {
		n.SetMetadata(metaLastModified, formatTime(now))
		return nil
	})
}

func entryExists(in *Internals, path resource.VRPath) bool {
	return path.IsRoot() || resource.CheckNodeExistsAtPath(in.Core, path)
}

func forgetSubtree(in *Internals, path resource.VRPath) {
	in.Permissions.RemoveSubtree(path)
	in.Subscriptions.RemoveSubtree(path)
	for _, p := range in.LastRead.PathsReadSince(time.Time{}) {
		if p.Equal(path) || path.IsAncestorOf(p) {
			in.LastRead.Remove(p)
		}
	}
}

// addFolderNode inserts vr as a new folder named id under parent.
func addFolderNode(in *Internals, parent resource.VRPath, id string, vr resource.VectorResource, metadata map[string]string, requester identity.Name, now time.Time) (resource.VRPath, error) {
	if _, err := folderAt(in, parent); err != nil {
		return resource.VRPath{}, err
	}
	child := parent.Push(id)
	if entryExists(in, child) {
		return resource.VRPath{}, pathErr(child, ErrEntryAlreadyExists)
	}
	vr.SetName(id)
	node := resource.NewResourceNode(id, vr, metadata)
	if err := resource.InsertNodeAtPath(in.Core, parent, id, node, resource.EmptyEmbedding()); err != nil {
		return resource.VRPath{}, fmt.Errorf("inserting folder %s: %w", child, err)
	}
	if err := touchFolder(in, parent, now); err != nil {
		return resource.VRPath{}, err
	}
	in.LastRead.Update(child, now, requester)
	return child, nil
}

func (in *Internals) checkModel(header resource.VRHeader) error {
	if header.ResourceEmbedding == nil || header.ResourceEmbedding.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrEmbeddingMissingInResource, header.ResourceName)
	}
	model := header.ResourceEmbeddingModelUsed
	if model == in.DefaultModel() {
		return nil
	}
	for _, m := range in.SupportedModels {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: resource uses %s, profile uses %s", ErrEmbeddingModelTypeMismatch, model, in.DefaultModel())
}

// addHeaderNode stores header as an item under parent, replacing an item of
// the same name. touchParent stamps the parent folder as modified.
func addHeaderNode(in *Internals, parent resource.VRPath, header resource.VRHeader, metadata map[string]string, requester identity.Name, now time.Time, touchParent bool) (FSItem, error) {
	if err := in.checkModel(header); err != nil {
		return FSItem{}, err
	}
	id := resource.CleanPathID(header.ResourceName)
	child := parent.Push(id)
	node := resource.NewHeaderNode(id, header, metadata)
	if err := resource.InsertNodeAtPath(in.Core, parent, id, node, *header.ResourceEmbedding); err != nil {
		return FSItem{}, fmt.Errorf("inserting item %s: %w", child, err)
	}
	if touchParent {
		if err := touchFolder(in, parent, now); err != nil {
			return FSItem{}, err
		}
	}
	in.LastRead.Update(child, now, requester)
	return itemAt(in, child)
}

func encodeResource(vr resource.VectorResource) (raw, compressed []byte, err error) {
	raw, err = resource.MarshalResource(vr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding resource %s: %v", ErrDataConversion, vr.ReferenceString(), err)
	}
	compressed, err = store.Compress(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: compressing resource %s: %v", ErrDataConversion, vr.ReferenceString(), err)
	}
	return raw, compressed, nil
}

func encodeSourceFileMap(sfm *SourceFileMap) (size int, compressed []byte, err error) {
	raw, err := json.Marshal(sfm)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: encoding source file map: %v", ErrDataConversion, err)
	}
	compressed, err = store.Compress(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: compressing source file map: %v", ErrDataConversion, err)
	}
	return len(raw), compressed, nil
}

// CreateNewFolder creates an empty folder named name under the writer's path.
func (v *VectorFS) CreateNewFolder(ctx context.Context, w *Writer, name string) (FSFolder, error) {
	id, err := cleanEntryName(name)
	if err != nil {
		return FSFolder{}, err
	}
	var folder FSFolder
	err = v.update(ctx, w.profile, "create_folder", func(in *Internals, _ *store.Batch) error {
		folder, err = v.createFolder(in, w.path, id, w.requester)
		return err
	})
	return folder, err
}

func (v *VectorFS) createFolder(in *Internals, parent resource.VRPath, id string, requester identity.Name) (FSFolder, error) {
	now := v.now()
	vr := resource.NewMap(id, "", resource.NoSource(), in.DefaultModel())
	child, err := addFolderNode(in, parent, id, vr, map[string]string{metaLastModified: formatTime(now)}, requester, now)
	if err != nil {
		return FSFolder{}, err
	}
	in.Permissions.Insert(child, inheritedPermission(in, parent))
	entry, err := entryAt(in, child)
	if err != nil {
		return FSFolder{}, err
	}
	return entry.AsFolder()
}

// CreateNewFolderAuto creates every missing folder along path, which is
// relative to nothing: it is an absolute path under the writer's profile. The
// writer must be able to write the root or the deepest existing folder. It
// returns the paths that were created.
func (v *VectorFS) CreateNewFolderAuto(ctx context.Context, w *Writer, path resource.VRPath) ([]resource.VRPath, error) {
	var created []resource.VRPath
	err := v.update(ctx, w.profile, "create_folder_auto", func(in *Internals, _ *store.Batch) error {
		cur := resource.Root()
		for _, id := range path.IDs() {
			next := cur.Push(id)
			if !entryExists(in, next) {
				if err := in.Permissions.ValidateWriteAccess(w.requester, cur); err != nil {
					return err
				}
				if _, err := v.createFolder(in, cur, id, w.requester); err != nil {
					return err
				}
				created = append(created, next)
			}
			cur = next
		}
		return nil
	})
	return created, err
}

// DeleteItem removes the item at the writer's path together with its stored
// resource and source file map.
func (v *VectorFS) DeleteItem(ctx context.Context, w *Writer) error {
	return v.update(ctx, w.profile, "delete_item", func(in *Internals, b *store.Batch) error {
		return v.deleteItem(in, b, w.path)
	})
}

func (v *VectorFS) deleteItem(in *Internals, b *store.Batch, path resource.VRPath) error {
	item, err := itemAt(in, path)
	if err != nil {
		return err
	}
	if _, _, err := resource.RemoveNodeAtPath(in.Core, path); err != nil {
		return fmt.Errorf("removing item %s: %w", path, err)
	}
	b.DeleteResource(item.ResourceDBKey())
	if item.IsSourceFileMapSaved() {
		b.DeleteSourceFileMap(item.ResourceDBKey())
	}
	forgetSubtree(in, path)
	return touchFolder(in, path.Parent(), v.now())
}

// DeleteFolder removes the folder at the writer's path and everything below it.
func (v *VectorFS) DeleteFolder(ctx context.Context, w *Writer) error {
	if w.path.IsRoot() {
		return pathErr(w.path, ErrRootCannotBeModified)
	}
	return v.update(ctx, w.profile, "delete_folder", func(in *Internals, b *store.Batch) error {
		if _, err := folderAt(in, w.path); err != nil {
			return err
		}
		for _, ret := range resource.RetrieveNodesOfKind(in.Core, w.path, resource.ContentVRHeader) {
			item, err := itemFromNode(ret.Node, ret.RetrievalPath, in.LastRead)
			if err != nil {
				return err
			}
			b.DeleteResource(item.ResourceDBKey())
			if item.IsSourceFileMapSaved() {
				b.DeleteSourceFileMap(item.ResourceDBKey())
			}
		}
		if _, _, err := resource.RemoveNodeAtPath(in.Core, w.path); err != nil {
			return fmt.Errorf("removing folder %s: %w", w.path, err)
		}
		forgetSubtree(in, w.path)
		return touchFolder(in, w.path.Parent(), v.now())
	})
}

// destinationChild validates a copy or move of src into the folder dest and
// returns the path the entry will take there.
func destinationChild(in *Internals, src, dest resource.VRPath) (resource.VRPath, error) {
	if _, err := folderAt(in, dest); err != nil {
		return resource.VRPath{}, err
	}
	id, err := src.LastID()
	if err != nil {
		return resource.VRPath{}, pathErr(src, ErrRootCannotBeModified)
	}
	child := dest.Push(id)
	if entryExists(in, child) {
		return resource.VRPath{}, pathErr(child, ErrEntryAlreadyExists)
	}
	return child, nil
}

// CopyItem copies the item at the writer's path into the folder dest. The copy
// gets a new resource id so both items are stored independently. The writer's
// requester must be able to write dest.
func (v *VectorFS) CopyItem(ctx context.Context, w *Writer, dest resource.VRPath) (FSItem, error) {
	if _, err := w.NewWriterCopiedData(ctx, dest); err != nil {
		return FSItem{}, err
	}
	var item FSItem
	err := v.update(ctx, w.profile, "copy_item", func(in *Internals, b *store.Batch) error {
		n, err := itemNodeAt(in, w.path)
		if err != nil {
			return err
		}
		if _, err := destinationChild(in, w.path, dest); err != nil {
			return err
		}
		item, err = v.copyItemInto(ctx, in, b, w, n, dest)
		return err
	})
	return item, err
}

func (v *VectorFS) copyItemInto(ctx context.Context, in *Internals, b *store.Batch, w *Writer, n resource.Node, dest resource.VRPath) (FSItem, error) {
	oldRef := n.Header.ReferenceString()
	vr, err := v.loadResource(ctx, w.profile, oldRef)
	if err != nil {
		return FSItem{}, err
	}
	vr.GenerateResourceID()
	header := vr.Header()

	metadata := n.Clone().Metadata
	if _, ok := metadata[metaSFMLastSaved]; ok {
		raw, err := v.getStored(ctx, w.profile, oldRef, true)
		if err != nil {
			return FSItem{}, fmt.Errorf("loading source file map %s: %w", oldRef, err)
		}
		compressed, err := store.Compress(raw)
		if err != nil {
			return FSItem{}, fmt.Errorf("%w: %v", ErrDataConversion, err)
		}
		b.PutSourceFileMap(header.ReferenceString(), compressed)
	}

	item, err := addHeaderNode(in, dest, header, metadata, w.requester, v.now(), true)
	if err != nil {
		return FSItem{}, err
	}
	in.Permissions.Insert(item.Path, inheritedPermission(in, dest))

	_, compressed, err := encodeResource(vr)
	if err != nil {
		return FSItem{}, err
	}
	b.PutResource(header.ReferenceString(), compressed)
	return item, nil
}

// MoveItem moves the item at the writer's path into the folder dest. The
// stored resource is untouched.
func (v *VectorFS) MoveItem(ctx context.Context, w *Writer, dest resource.VRPath) (FSItem, error) {
	if _, err := w.NewWriterCopiedData(ctx, dest); err != nil {
		return FSItem{}, err
	}
	var item FSItem
	err := v.update(ctx, w.profile, "move_item", func(in *Internals, _ *store.Batch) error {
		n, err := itemNodeAt(in, w.path)
		if err != nil {
			return err
		}
		if _, err := destinationChild(in, w.path, dest); err != nil {
			return err
		}
		now := v.now()
		if _, _, err := resource.RemoveNodeAtPath(in.Core, w.path); err != nil {
			return fmt.Errorf("removing item %s: %w", w.path, err)
		}
		forgetSubtree(in, w.path)
		if err := touchFolder(in, w.path.Parent(), now); err != nil {
			return err
		}
		item, err = addHeaderNode(in, dest, *n.Header, n.Metadata, w.requester, now, true)
		if err != nil {
			return err
		}
		in.Permissions.Insert(item.Path, inheritedPermission(in, dest))
		return nil
	})
	return item, err
}

// CopyFolder copies the folder at the writer's path, with everything below
// it, into the folder dest. Every copied item gets a new resource id.
func (v *VectorFS) CopyFolder(ctx context.Context, w *Writer, dest resource.VRPath) (FSFolder, error) {
	if w.path.IsRoot() {
		return FSFolder{}, pathErr(w.path, ErrRootCannotBeModified)
	}
	if _, err := w.NewWriterCopiedData(ctx, dest); err != nil {
		return FSFolder{}, err
	}
	var folder FSFolder
	err := v.update(ctx, w.profile, "copy_folder", func(in *Internals, b *store.Batch) error {
		if _, err := folderAt(in, w.path); err != nil {
			return err
		}
		child, err := destinationChild(in, w.path, dest)
		if err != nil {
			return err
		}
		if w.path.IsAncestorOf(child) {
			return pathErr(w.path, ErrCannotMoveFolderIntoItself)
		}
		if err := v.copyFolderInto(ctx, in, b, w, w.path, dest); err != nil {
			return err
		}
		entry, err := entryAt(in, child)
		if err != nil {
			return err
		}
		folder, err = entry.AsFolder()
		return err
	})
	return folder, err
}

func (v *VectorFS) copyFolderInto(ctx context.Context, in *Internals, b *store.Batch, w *Writer, src, dest resource.VRPath) error {
	n, err := nodeAt(in, src)
	if err != nil {
		return err
	}
	children := n.Resource.Nodes()
	empty := n.Resource.Clone()
	empty.RemoveAllNodes()

	now := v.now()
	child, err := addFolderNode(in, dest, n.ID, empty, n.Clone().Metadata, w.requester, now)
	if err != nil {
		return err
	}
	in.Permissions.Insert(child, inheritedPermission(in, dest))

	for _, c := range children {
		switch c.Kind {
		case resource.ContentResource:
			if err := v.copyFolderInto(ctx, in, b, w, src.Push(c.ID), child); err != nil {
				return err
			}
		case resource.ContentVRHeader:
			if _, err := v.copyItemInto(ctx, in, b, w, c, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// MoveFolder moves the folder at the writer's path into the folder dest.
// Permissions below the folder move with it; the folder itself takes the
// permissions of its new parent.
func (v *VectorFS) MoveFolder(ctx context.Context, w *Writer, dest resource.VRPath) (FSFolder, error) {
	if w.path.IsRoot() {
		return FSFolder{}, pathErr(w.path, ErrRootCannotBeModified)
	}
	if _, err := w.NewWriterCopiedData(ctx, dest); err != nil {
		return FSFolder{}, err
	}
	var folder FSFolder
	err := v.update(ctx, w.profile, "move_folder", func(in *Internals, _ *store.Batch) error {
		if _, err := folderAt(in, w.path); err != nil {
			return err
		}
		child, err := destinationChild(in, w.path, dest)
		if err != nil {
			return err
		}
		if w.path.IsAncestorOf(child) {
			return pathErr(w.path, ErrCannotMoveFolderIntoItself)
		}

		now := v.now()
		node, emb, err := resource.RemoveNodeAtPath(in.Core, w.path)
		if err != nil {
			return fmt.Errorf("removing folder %s: %w", w.path, err)
		}
		if err := touchFolder(in, w.path.Parent(), now); err != nil {
			return err
		}
		id, _ := w.path.LastID()
		if err := resource.InsertNodeAtPath(in.Core, dest, id, node, emb); err != nil {
			return fmt.Errorf("inserting folder %s: %w", child, err)
		}
		if err := touchFolder(in, dest, now); err != nil {
			return err
		}

		in.Permissions.MoveSubtree(w.path, child)
		in.Permissions.Insert(child, inheritedPermission(in, dest))
		in.Subscriptions.RemoveSubtree(w.path)
		for _, p := range in.LastRead.PathsReadSince(time.Time{}) {
			if p.Equal(w.path) || w.path.IsAncestorOf(p) {
				in.LastRead.Remove(p)
			}
		}
		in.LastRead.Update(child, now, w.requester)

		entry, err := entryAt(in, child)
		if err != nil {
			return err
		}
		folder, err = entry.AsFolder()
		return err
	})
	return folder, err
}

// SaveVectorResourceInFolder saves vr as an item in the folder at the
// writer's path, named after vr with any file extension removed. An existing
// item of that name is overwritten and keeps its metadata; a folder of that
// name is never overwritten. sfm and dist are optional.
func (v *VectorFS) SaveVectorResourceInFolder(ctx context.Context, w *Writer, vr resource.VectorResource, sfm *SourceFileMap, dist *DistributionInfo) (item FSItem, err error) {
	ctx, span := v.tracer.Start(ctx, "vectorfs.save")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
		}
	}()
	if vr == nil {
		return FSItem{}, errors.New("vector resource is required")
	}

	vr = vr.Clone()
	id, err := cleanEntryName(stripExtension(vr.Name()))
	if err != nil {
		return FSItem{}, err
	}
	vr.SetName(id)
	span.SetAttributes(
		attribute.String("vfs.profile", w.profile.String()),
		attribute.String("vfs.path", w.path.Push(id).String()))

	err = v.update(ctx, w.profile, "save_resource", func(in *Internals, b *store.Batch) error {
		if _, err := folderAt(in, w.path); err != nil {
			return err
		}
		nodePath := w.path.Push(id)

		metadata := map[string]string{}
		existing := false
		var existingRef string
		if n, err := nodeAt(in, nodePath); err == nil {
			if n.Kind != resource.ContentVRHeader {
				return pathErr(nodePath, ErrCannotOverwriteFolder)
			}
			existing = true
			existingRef = n.Header.ReferenceString()
			metadata = n.Clone().Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
		}

		if vr.ReferenceString() != existingRef {
			if _, err := v.getStored(ctx, w.profile, vr.ReferenceString(), false); err == nil {
				vr.GenerateResourceID()
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		ref := vr.ReferenceString()
		if existing && existingRef != ref {
			b.DeleteResource(existingRef)
			if _, ok := metadata[metaSFMLastSaved]; ok && sfm == nil {
				raw, err := v.getStored(ctx, w.profile, existingRef, true)
				if err != nil {
					return fmt.Errorf("loading source file map %s: %w", existingRef, err)
				}
				compressed, err := store.Compress(raw)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrDataConversion, err)
				}
				b.PutSourceFileMap(ref, compressed)
			}
			if _, ok := metadata[metaSFMLastSaved]; ok {
				b.DeleteSourceFileMap(existingRef)
			}
		}

		now := v.now()
		raw, compressed, err := encodeResource(vr)
		if err != nil {
			return err
		}
		metadata[metaVRLastSaved] = formatTime(now)
		metadata[metaVRSize] = strconv.Itoa(len(raw))
		if sfm != nil {
			size, data, err := encodeSourceFileMap(sfm)
			if err != nil {
				return err
			}
			metadata[metaSFMLastSaved] = formatTime(now)
			metadata[metaSFMSize] = strconv.Itoa(size)
			b.PutSourceFileMap(ref, data)
		}
		if dist != nil && !dist.IsZero() {
			d, err := json.Marshal(dist)
			if err != nil {
				return fmt.Errorf("%w: encoding distribution info: %v", ErrDataConversion, err)
			}
			metadata[metaDistributionInfo] = string(d)
		}

		item, err = addHeaderNode(in, w.path, vr.Header(), metadata, w.requester, now, !existing)
		if err != nil {
			return err
		}
		if !existing {
			in.Permissions.Insert(nodePath, inheritedPermission(in, w.path))
		}
		b.PutResource(ref, compressed)
		return nil
	})
	if err == nil {
		v.logger.Debug("resource saved",
			zap.String("vfs.profile", w.profile.String()),
			zap.String("vfs.requester", w.requester.String()),
			zap.String("path", item.Path.String()),
			zap.String("ref", item.ResourceDBKey()))
	}
	return item, err
}

// SaveVectorResource saves vr into the parent folder of the writer's path.
// The item takes vr's name.
func (v *VectorFS) SaveVectorResource(ctx context.Context, w *Writer, vr resource.VectorResource, sfm *SourceFileMap, dist *DistributionInfo) (FSItem, error) {
	parent, err := w.NewWriterCopiedData(ctx, w.path.Parent())
	if err != nil {
		return FSItem{}, err
	}
	return v.SaveVectorResourceInFolder(ctx, parent, vr, sfm, dist)
}

// SaveVRKaiInFolder saves a resource bundle into the folder at the writer's path.
func (v *VectorFS) SaveVRKaiInFolder(ctx context.Context, w *Writer, kai VRKai, dist *DistributionInfo) (FSItem, error) {
	return v.SaveVectorResourceInFolder(ctx, w, kai.Resource, kai.SFM, dist)
}

// SaveSourceFileMapInItem attaches sfm to the existing item at the writer's path.
func (v *VectorFS) SaveSourceFileMapInItem(ctx context.Context, w *Writer, sfm *SourceFileMap) (FSItem, error) {
	if sfm == nil {
		return FSItem{}, errors.New("source file map is required")
	}
	var item FSItem
	err := v.update(ctx, w.profile, "save_source_file_map", func(in *Internals, b *store.Batch) error {
		if _, err := folderAt(in, w.path); err == nil {
			return pathErr(w.path, ErrCannotOverwriteFolder)
		}
		n, err := itemNodeAt(in, w.path)
		if err != nil {
			return err
		}
		size, data, err := encodeSourceFileMap(sfm)
		if err != nil {
			return err
		}
		now := v.now()
		err = resource.MutateNodeAtPath(in.Core, w.path, func(node *resource.Node, _ *resource.Embedding) error {
			node.SetMetadata(metaSFMLastSaved, formatTime(now))
			node.SetMetadata(metaSFMSize, strconv.Itoa(size))
			return nil
		})
		if err != nil {
			return err
		}
		b.PutSourceFileMap(n.Header.ReferenceString(), data)
		item, err = itemAt(in, w.path)
		return err
	})
	return item, err
}

// UpdateItemResourceDescription rewrites the description of the resource
// behind the item at the writer's path.
func (v *VectorFS) UpdateItemResourceDescription(ctx context.Context, w *Writer, description string) (FSItem, error) {
	r, err := w.NewReaderCopiedData(ctx, w.path)
	if err != nil {
		return FSItem{}, err
	}
	vr, err := v.RetrieveVectorResource(ctx, r)
	if err != nil {
		return FSItem{}, err
	}
	vr.SetDescription(description)
	return v.SaveVectorResource(ctx, w, vr, nil, nil)
}

// SetPathPermission sets the read and write permission of the entry at the
// writer's path, keeping its whitelist. opts set the profile lists of the node
// profiles modes.
func (v *VectorFS) SetPathPermission(ctx context.Context, w *Writer, read ReadPermission, write WritePermission, opts ...PermissionOption) error {
	return v.update(ctx, w.profile, "set_permission", func(in *Internals, _ *store.Batch) error {
		if !entryExists(in, w.path) {
			return pathErr(w.path, ErrNoEntryAtPath)
		}
		perm := PathPermission{}
		if existing, err := in.Permissions.Get(w.path); err == nil {
			perm = existing
		}
		in.Permissions.Insert(w.path, perm.withModes(read, write, opts...))
		return nil
	})
}

// SetWhitelistPermission grants name whitelist access at the writer's path.
func (v *VectorFS) SetWhitelistPermission(ctx context.Context, w *Writer, name identity.Name, perm WhitelistPermission) error {
	err := v.update(ctx, w.profile, "set_whitelist", func(in *Internals, _ *store.Batch) error {
		return in.Permissions.SetWhitelist(w.path, name, perm)
	})
	if err == nil {
		v.logger.Debug("whitelist updated",
			zap.String("vfs.profile", w.profile.String()),
			zap.String("path", w.path.String()),
			zap.Strings("whitelist.name", []string{name.String()}),
			zap.String("whitelist.permission", string(perm)))
	}
	return err
}

// RemoveWhitelistPermission removes name from the whitelist at the writer's path.
func (v *VectorFS) RemoveWhitelistPermission(ctx context.Context, w *Writer, name identity.Name) error {
	return v.update(ctx, w.profile, "remove_whitelist", func(in *Internals, _ *store.Batch) error {
		return in.Permissions.RemoveWhitelist(w.path, name)
	})
}

// UpdatePermissionsRecursively sets read and write on the folder at the
// writer's path and on every folder and item below it. Whitelists are kept.
func (v *VectorFS) UpdatePermissionsRecursively(ctx context.Context, w *Writer, read ReadPermission, write WritePermission, opts ...PermissionOption) error {
	return v.update(ctx, w.profile, "set_permission_recursive", func(in *Internals, _ *store.Batch) error {
		if _, err := folderAt(in, w.path); err != nil {
			return err
		}
		paths := []resource.VRPath{w.path}
		for _, ret := range resource.RetrieveNodesExhaustive(in.Core, w.path) {
			if ret.Node.Kind == resource.ContentResource || ret.Node.Kind == resource.ContentVRHeader {
				paths = append(paths, ret.RetrievalPath)
			}
		}
		for _, p := range paths {
			perm := PathPermission{}
			if existing, err := in.Permissions.Get(p); err == nil {
				perm = existing
			}
			in.Permissions.Insert(p, perm.withModes(read, write, opts...))
		}
		return nil
	})
}

// Subscribe registers the reader's requester as a subscriber of its path.
func (v *VectorFS) Subscribe(ctx context.Context, r *Reader) error {
	return v.update(ctx, r.profile, "subscribe", func(in *Internals, _ *store.Batch) error {
		if !entryExists(in, r.path) {
			return pathErr(r.path, ErrNoEntryAtPath)
		}
		in.Subscriptions.Add(r.path, r.requester)
		return nil
	})
}

// Unsubscribe removes the reader's requester from the subscribers of its path.
func (v *VectorFS) Unsubscribe(ctx context.Context, r *Reader) error {
	return v.update(ctx, r.profile, "unsubscribe", func(in *Internals, _ *store.Batch) error {
		in.Subscriptions.Remove(r.path, r.requester)
		return nil
	})
}

// Subscribers lists who subscribed to the reader's path.
func (v *VectorFS) Subscribers(ctx context.Context, r *Reader) ([]identity.Name, error) {
	var out []identity.Name
	err := v.view(r.profile, func(in *Internals) error {
		out = in.Subscriptions.Subscribers(r.path)
		return nil
	})
	return out, err
}
