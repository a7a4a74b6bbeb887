// Package services wires a VecFS node together from configuration.
//
// Build opens the configured store backend, creates the embedding generator
// and loads the vector filesystem. The returned Registry gives access to
// each of them and releases them all on Close.
package services
