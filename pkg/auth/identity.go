// Package auth carries the already-authenticated caller through a request.
package auth

import (
	"context"
	"errors"
)

// Identity is the authenticated caller.
type Identity struct {
	// Login is the stable user id permissions are keyed by.
	Login string `json:"login"`

	// Name is the display name.
	Name string `json:"name"`

	// Secret is the caller's bearer credential, used to bind editing
	// sessions.
	Secret string `json:"-"`
}

// ErrNoIdentity is returned when a context carries no identity.
var ErrNoIdentity = errors.New("no authenticated identity")

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.Login == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
