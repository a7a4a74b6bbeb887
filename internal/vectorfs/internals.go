package vectorfs

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
)

// Internals is everything the filesystem keeps in memory for one profile.
// Vector resources themselves live in the store and are loaded by reference.
type Internals struct {
	Core            *resource.Map
	Permissions     *PermissionsIndex
	Subscriptions   *SubscriptionIndex
	SupportedModels []resource.ModelType
	LastRead        *LastReadIndex
}

func newInternals(profile identity.Name, defaultModel resource.ModelType, supported []resource.ModelType) *Internals {
	core := resource.NewMap(profile.String(), "", resource.NoSource(), defaultModel)
	perms := NewPermissionsIndex(profile)
	perms.Insert(resource.Root(), PrivatePermission())
	return &Internals{
		Core:            core,
		Permissions:     perms,
		Subscriptions:   NewSubscriptionIndex(),
		SupportedModels: append([]resource.ModelType(nil), supported...),
		LastRead:        NewLastReadIndex(),
	}
}

// DefaultModel is the model every resource saved into the profile must use.
func (in *Internals) DefaultModel() resource.ModelType {
	return in.Core.EmbeddingModelUsed()
}

// Owner returns the profile the internals belong to.
func (in *Internals) Owner() identity.Name {
	return in.Permissions.Owner()
}

// Clone deep-copies the internals.
func (in *Internals) Clone() *Internals {
	return &Internals{
		Core:            in.Core.Clone().(*resource.Map),
		Permissions:     in.Permissions.Clone(),
		Subscriptions:   in.Subscriptions.Clone(),
		SupportedModels: append([]resource.ModelType(nil), in.SupportedModels...),
		LastRead:        in.LastRead.Clone(),
	}
}

func (in *Internals) toBlob() (store.ProfileBlob, error) {
	raw, err := resource.MarshalResource(in.Core)
	if err != nil {
		return store.ProfileBlob{}, fmt.Errorf("%w: encoding core resource: %v", ErrDataConversion, err)
	}
	core, err := store.Compress(raw)
	if err != nil {
		return store.ProfileBlob{}, fmt.Errorf("%w: compressing core resource: %v", ErrDataConversion, err)
	}
	blob := store.ProfileBlob{Core: core}
	for _, part := range []struct {
		dst *[]byte
		v   interface{}
	}{
		{&blob.Permissions, in.Permissions},
		{&blob.Subscriptions, in.Subscriptions},
		{&blob.SupportedModels, in.SupportedModels},
		{&blob.LastRead, in.LastRead},
	} {
		if *part.dst, err = json.Marshal(part.v); err != nil {
			return store.ProfileBlob{}, fmt.Errorf("%w: %v", ErrDataConversion, err)
		}
	}
	return blob, nil
}

func internalsFromBlob(blob store.ProfileBlob) (*Internals, error) {
	raw, err := store.Decompress(blob.Core)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing core resource: %v", ErrDataConversion, err)
	}
	vr, err := resource.UnmarshalResource(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding core resource: %v", ErrDataConversion, err)
	}
	core, ok := vr.(*resource.Map)
	if !ok {
		return nil, fmt.Errorf("%w: core resource is a %s", ErrDataConversion, vr.BaseType())
	}

	in := &Internals{
		Core:          core,
		Permissions:   &PermissionsIndex{},
		Subscriptions: NewSubscriptionIndex(),
		LastRead:      NewLastReadIndex(),
	}
	for _, part := range []struct {
		src []byte
		v   interface{}
	}{
		{blob.Permissions, in.Permissions},
		{blob.Subscriptions, in.Subscriptions},
		{blob.SupportedModels, &in.SupportedModels},
		{blob.LastRead, in.LastRead},
	} {
		if len(part.src) == 0 {
			continue
		}
		if err := json.Unmarshal(part.src, part.v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataConversion, err)
		}
	}
	if in.Permissions.entries == nil {
		return nil, fmt.Errorf("%w: permissions index missing", ErrDataConversion)
	}
	return in, nil
}
