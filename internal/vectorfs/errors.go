package vectorfs

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// Permission errors.
var (
	// ErrInvalidReaderPermission is returned when a requester may not read a path.
	ErrInvalidReaderPermission = errors.New("invalid reader permission")

	// ErrInvalidWriterPermission is returned when a requester may not write a path.
	ErrInvalidWriterPermission = errors.New("invalid writer permission")

	// ErrInvalidNodeActionPermission is returned when a requester from another
	// node attempts a node-level action.
	ErrInvalidNodeActionPermission = errors.New("invalid node action permission")

	// ErrInvalidProfileActionPermission is returned when a requester may not
	// manage the target profile.
	ErrInvalidProfileActionPermission = errors.New("invalid profile action permission")

	// ErrNoPermissionEntryAtPath is returned when the index holds no entry for a path.
	ErrNoPermissionEntryAtPath = errors.New("no permission entry at path")
)

// Profile and data errors.
var (
	ErrProfileNameNonExistent             = errors.New("profile does not exist in the vector fs")
	ErrDataConversion                     = errors.New("data conversion error")
	ErrFailedGettingFSPathOfRetrievedNode = errors.New("failed getting fs path of retrieved node")
)

// Entry errors.
var (
	ErrNoEntryAtPath              = errors.New("no entry at path")
	ErrPathDoesNotPointAtFolder   = errors.New("path does not point at a folder")
	ErrPathDoesNotPointAtItem     = errors.New("path does not point at an item")
	ErrEntryAlreadyExists         = errors.New("an entry already exists at path")
	ErrCannotOverwriteFolder      = errors.New("cannot overwrite a folder with an item")
	ErrCannotMoveFolderIntoItself = errors.New("cannot move or copy a folder into itself")
	ErrInvalidEntryName           = errors.New("invalid entry name")
	ErrNoSourceFileMapSaved       = errors.New("no source file map saved for item")
	ErrRootCannotBeModified       = errors.New("the root folder cannot be moved, copied or deleted")
)

// Embedding errors.
var (
	ErrEmbeddingModelTypeMismatch = errors.New("embedding model of resource does not match the profile")
	ErrEmbeddingMissingInResource = errors.New("resource embedding is missing")
)

// PermissionError reports a denied action together with who asked and where.
type PermissionError struct {
	Kind      error
	Requester identity.Name
	Path      resource.VRPath
	Reason    string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%v: %s at %s: %s", e.Kind, e.Requester, e.Path, e.Reason)
}

// Unwrap returns the sentinel kind so errors.Is works.
func (e *PermissionError) Unwrap() error {
	return e.Kind
}

func denied(kind error, requester identity.Name, path resource.VRPath, reason string) error {
	return &PermissionError{Kind: kind, Requester: requester, Path: path, Reason: reason}
}

// PathError ties an entry error to the path it occurred at.
type PathError struct {
	Path resource.VRPath
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func pathErr(p resource.VRPath, err error) error {
	return &PathError{Path: p, Err: err}
}
