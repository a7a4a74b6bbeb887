package services

import (
	"errors"

	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
	"github.com/fyrsmithlabs/vecfs/internal/secrets"
	"github.com/fyrsmithlabs/vecfs/internal/store"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

// Registry provides access to the services of one node.
type Registry interface {
	VectorFS() *vectorfs.VectorFS
	Store() store.Store
	Generator() embeddings.Generator
	// Redactor is nil when secret redaction is off.
	Redactor() *secrets.Redactor
	// Close releases the generator and the store.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	VectorFS  *vectorfs.VectorFS
	Store     store.Store
	Generator embeddings.Generator
	Redactor  *secrets.Redactor
}

// registry is the concrete implementation of Registry.
type registry struct {
	fs        *vectorfs.VectorFS
	store     store.Store
	generator embeddings.Generator
	redactor  *secrets.Redactor
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		fs:        opts.VectorFS,
		store:     opts.Store,
		generator: opts.Generator,
		redactor:  opts.Redactor,
	}
}

func (r *registry) VectorFS() *vectorfs.VectorFS     { return r.fs }
func (r *registry) Store() store.Store               { return r.store }
func (r *registry) Generator() embeddings.Generator { return r.generator }
func (r *registry) Redactor() *secrets.Redactor      { return r.redactor }

func (r *registry) Close() error {
	var errs []error
	if c, ok := r.generator.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}
