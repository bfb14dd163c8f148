package users

import (
	"context"
	"errors"
	"strings"

	"github.com/bebleo/checklist/internal/shared"
)

// Form messages shared by the registration and administration pages.
const (
	MsgEmailRequired    = "Username cannot be empty."
	MsgEmailBlank       = "Username must not be blank."
	MsgEmailInvalid     = "Username must be a valid email"
	MsgEmailTaken       = "Username is already used."
	MsgPasswordRequired = "Password cannot be empty."
	MsgPasswordMismatch = "Password and confirmation must match."
	MsgStatusInvalid    = "Select a valid account status."
	MsgSelfDemotion     = "Cannot remove admin rights from own account."
	MsgSelfDeactivation = "Cannot deactivate your own account."
	MsgLastAdmin        = "At least one active administrator is required."
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, user User) (int64, error)
	SetPassword(ctx context.Context, id int64, hash string) error
	CountActiveAdmins(ctx context.Context) (int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service is the user directory.
type Service struct {
	repo   RepositoryPort
	hasher PasswordHasher
	emails *shared.FormValidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher, emails: shared.NewFormValidator()}
}

// FindByID returns the user or shared.ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByEmail returns the user holding email, compared case-insensitively.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, shared.ErrNotFound
	}
	return s.repo.FindByEmail(ctx, email)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// CountActiveAdmins reports how many active administrators exist.
func (s *Service) CountActiveAdmins(ctx context.Context) (int, error) {
	return s.repo.CountActiveAdmins(ctx)
}

// Create registers a new account. A taken email yields a *ConflictError.
func (s *Service) Create(ctx context.Context, input NewUser) (*User, error) {
	email := NormalizeEmail(input.Email)
	verr := &shared.ValidationError{}
	switch {
	case email == "":
		verr.Add("email", MsgEmailRequired)
	case !s.emails.Var(email, "email"):
		verr.Add("email", MsgEmailInvalid)
	}
	if input.Password == "" {
		verr.Add("password", MsgPasswordRequired)
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		verr.Add("status", MsgStatusInvalid)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, &ConflictError{Email: email, ExistingID: existing.ID}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}
	user := User{
		Email:        email,
		PasswordHash: hash,
		GivenName:    strings.TrimSpace(input.GivenName),
		FamilyName:   strings.TrimSpace(input.FamilyName),
		IsAdmin:      input.IsAdmin,
		Status:       status,
	}
	id, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return &user, nil
}

// Update edits user id on behalf of actor. Admins may edit anyone; other
// users only themselves and never their own admin flag or status.
func (s *Service) Update(ctx context.Context, actor *User, id int64, input UserUpdate) (*User, error) {
	if actor == nil {
		return nil, shared.ErrUnauthorized
	}
	if !actor.IsAdmin && actor.ID != id {
		return nil, shared.ErrUnauthorized
	}

	email := NormalizeEmail(input.Email)
	verr := &shared.ValidationError{}
	switch {
	case email == "":
		verr.Add("email", MsgEmailBlank)
	case !s.emails.Var(email, "email"):
		verr.Add("email", MsgEmailInvalid)
	}
	if actor.IsAdmin && !input.Status.Valid() {
		verr.Add("status", MsgStatusInvalid)
	}
	if actor.ID == id {
		if actor.IsAdmin && !input.IsAdmin {
			verr.Add("is_admin", MsgSelfDemotion)
		}
		if input.Status == StatusDeactivated {
			verr.Add("status", MsgSelfDeactivation)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var hash string
	if input.Password != "" {
		var err error
		if hash, err = s.hasher.Hash(input.Password); err != nil {
			return nil, err
		}
	}

	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		next.Email = email
		next.GivenName = strings.TrimSpace(input.GivenName)
		next.FamilyName = strings.TrimSpace(input.FamilyName)
		if actor.IsAdmin {
			next.IsAdmin = input.IsAdmin
			next.Status = input.Status
		}
		if hash != "" {
			next.PasswordHash = hash
		}

		if next.Email != current.Email {
			other, err := tx.FindByEmail(ctx, next.Email)
			switch {
			case err == nil && other.ID != id:
				return &ConflictError{Email: next.Email, ExistingID: other.ID}
			case err != nil && !errors.Is(err, shared.ErrNotFound):
				return err
			}
		}

		if current.IsActiveAdmin() && !next.IsActiveAdmin() {
			count, err := tx.CountActiveAdmins(ctx)
			if err != nil {
				return err
			}
			if count <= 1 {
				return shared.NewValidationError(shared.GeneralField, MsgLastAdmin)
			}
		}

		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetPassword hashes and stores a new password for id.
func (s *Service) SetPassword(ctx context.Context, id int64, password string) error {
	if password == "" {
		return shared.NewValidationError("password", MsgPasswordRequired)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, id, hash)
}
