package auth

import (
	"context"
	"errors"

	"github.com/bebleo/checklist/internal/users"
)

var (
	// ErrLoginRequired reports an anonymous request to a guarded resource.
	ErrLoginRequired = errors.New("login required")
	// ErrAccountDisabled reports a deactivated account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrPasswordResetRequired reports an account that must set a new password before signing in.
	ErrPasswordResetRequired = errors.New("password reset required")
)

// Identity is the user resolved for the current request.
type Identity struct {
	User *users.User
}

type identityContextKey struct{}

// ContextWithIdentity attaches identity to ctx.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the resolved identity; ok is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || identity.User == nil {
		return Identity{}, false
	}
	return identity, true
}

// CurrentUser returns the signed in user or nil.
func CurrentUser(ctx context.Context) *users.User {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	return identity.User
}
