package vectorfs

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// SeedPolicy populates a freshly initialized profile.
type SeedPolicy func(ctx context.Context, fs *VectorFS, profile identity.Name) error

// DefaultFolders are created for every new profile by DefaultSeedPolicy.
var DefaultFolders = []string{
	"/My Files (Private)",
	"/My Subscriptions",
	"/For Sharing",
	"/My Files (Private)/Shinkai",
}

// DefaultSeedPolicy creates DefaultFolders.
func DefaultSeedPolicy() SeedPolicy {
	return FolderSeedPolicy(DefaultFolders...)
}

// FolderSeedPolicy creates the given folder paths in order, acting as the
// profile owner. Parents must come before their children. Existing folders
// are left alone.
func FolderSeedPolicy(paths ...string) SeedPolicy {
	return func(ctx context.Context, fs *VectorFS, profile identity.Name) error {
		for _, raw := range paths {
			p, err := resource.ParseVRPath(raw)
			if err != nil {
				return err
			}
			name, err := p.LastID()
			if err != nil {
				return err
			}
			w, err := fs.NewWriter(ctx, profile, p.Parent(), profile)
			if err != nil {
				return err
			}
			if _, err := fs.CreateNewFolder(ctx, w, name); err != nil && !errors.Is(err, ErrEntryAlreadyExists) {
				return err
			}
		}
		return nil
	}
}

// NoSeed leaves new profiles empty.
func NoSeed() SeedPolicy {
	return func(context.Context, *VectorFS, identity.Name) error { return nil }
}
