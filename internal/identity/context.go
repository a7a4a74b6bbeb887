package identity

import (
	"context"
	"errors"
)

// ErrMissingRequester is returned when no requester is attached to a context.
var ErrMissingRequester = errors.New("requester missing from context")

type requesterContextKey struct{}

// ContextWithRequester attaches the requesting identity to ctx.
func ContextWithRequester(ctx context.Context, requester Name) context.Context {
	return context.WithValue(ctx, requesterContextKey{}, requester)
}

// RequesterFromContext returns the requester attached to ctx.
// Fails closed: a missing or zero requester is an error.
func RequesterFromContext(ctx context.Context) (Name, error) {
	n, ok := ctx.Value(requesterContextKey{}).(Name)
	if !ok || n.IsZero() {
		return Name{}, ErrMissingRequester
	}
	return n, nil
}
