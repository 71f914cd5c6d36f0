package auth

import (
	"context"
	"errors"
)

var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Plan    string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns ErrUnauthorized when no identity with an email is attached.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.Email == "" {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}
