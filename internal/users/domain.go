package users

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bebleo/checklist/internal/shared"
)

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	StatusActive                AccountStatus = "active"
	StatusDeactivated           AccountStatus = "deactivated"
	StatusVerificationRequired  AccountStatus = "verification_required"
	StatusPasswordResetRequired AccountStatus = "password_reset_required"
)

// Statuses lists every account status in display order.
var Statuses = []AccountStatus{
	StatusActive,
	StatusDeactivated,
	StatusVerificationRequired,
	StatusPasswordResetRequired,
}

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Label is the human readable form of the status.
func (s AccountStatus) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusDeactivated:
		return "Deactivated"
	case StatusVerificationRequired:
		return "Verification required"
	case StatusPasswordResetRequired:
		return "Password reset required"
	default:
		return string(s)
	}
}

// ParseAccountStatus converts form or database input into a status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	s := AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("users: unknown account status %q", raw)
	}
	return s, nil
}

// User represents an account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	GivenName    string
	FamilyName   string
	IsAdmin      bool
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins given and family names.
func (u User) FullName() string {
	return strings.TrimSpace(u.GivenName + " " + u.FamilyName)
}

// DisplayName is the name used in history entries and page headers.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// IsDeactivated reports whether the account has been switched off.
func (u User) IsDeactivated() bool {
	return u.Status == StatusDeactivated
}

// IsActiveAdmin reports whether the user counts toward the active admin quorum.
func (u User) IsActiveAdmin() bool {
	return u.IsAdmin && u.Status == StatusActive
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Email      string
	Password   string
	GivenName  string
	FamilyName string
	IsAdmin    bool
	Status     AccountStatus
}

// UserUpdate replaces the editable fields of an account. An empty Password
// leaves the stored hash alone.
type UserUpdate struct {
	Email      string
	GivenName  string
	FamilyName string
	IsAdmin    bool
	Status     AccountStatus
	Password   string
}

// ConflictError reports an email already held by another account.
type ConflictError struct {
	Email      string
	ExistingID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("users: email %s already registered", e.Email)
}

// Unwrap allows errors.Is(err, shared.ErrConflict).
func (e *ConflictError) Unwrap() error {
	return shared.ErrConflict
}

// ExistingUserID returns the id of the account holding a conflicting email.
func ExistingUserID(err error) (int64, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) && conflict.ExistingID > 0 {
		return conflict.ExistingID, true
	}
	return 0, false
}

// NormalizeEmail trims an address and lower-cases it with the
// language-neutral cases.Lower caser. Emails are compared case-insensitively
// everywhere.
func NormalizeEmail(email string) string {
	// Casers keep state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}
