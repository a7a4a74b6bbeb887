// Package embeddings turns text into resource embeddings.
//
// Providers produce raw vectors: FastEmbed (local ONNX, cgo only), TEI
// (text-embeddings-inference over HTTP), any OpenAI-compatible endpoint, and
// a deterministic feature-hashing provider for offline use and tests.
// A Generator wraps a Provider and stamps each vector with its node id and
// model type so it can be stored in a vector resource.
package embeddings
