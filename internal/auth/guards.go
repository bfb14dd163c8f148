package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
)

const (
	loginPath    = "/auth/login"
	disabledPath = "/auth/disabled"
)

// UserFinder loads users by id.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
}

// Resolver attaches the session's user to every request.
type Resolver struct {
	users  UserFinder
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(finder UserFinder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: finder, logger: logger}
}

// Middleware resolves the session user id into an Identity. A user id that no
// longer exists is dropped from the session and the request continues anonymous.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		id, ok := sess.UserID()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		user, err := res.users.FindByID(r.Context(), id)
		if errors.Is(err, shared.ErrNotFound) {
			sess.ClearUser()
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			shared.LogError(res.logger, "resolve session user", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		ctx := ContextWithIdentity(r.Context(), Identity{User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CheckAuthenticated returns the signed in, active user.
func CheckAuthenticated(ctx context.Context) (*users.User, error) {
	user := CurrentUser(ctx)
	if user == nil {
		return nil, ErrLoginRequired
	}
	if user.IsDeactivated() {
		return user, ErrAccountDisabled
	}
	return user, nil
}

// CheckAdmin returns the signed in user when they are an active administrator.
func CheckAdmin(ctx context.Context) (*users.User, error) {
	user, err := CheckAuthenticated(ctx)
	if err != nil {
		return user, err
	}
	if !user.IsAdmin {
		return user, shared.ErrUnauthorized
	}
	return user, nil
}

// RequireAuthenticated redirects anonymous requests to the login page and
// deactivated accounts to the disabled page.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := CheckAuthenticated(r.Context()); err != nil {
			denyAuthenticated(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin composes RequireAuthenticated and answers 401 for non-admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := CheckAdmin(r.Context())
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, shared.ErrUnauthorized):
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		default:
			denyAuthenticated(w, r, err)
		}
	})
}

// RequireAnonymous answers 401 when a user is already signed in.
func RequireAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func denyAuthenticated(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrAccountDisabled) {
		http.Redirect(w, r, disabledPath, http.StatusFound)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusFound)
}
