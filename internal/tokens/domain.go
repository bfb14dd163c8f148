// Package tokens issues and validates single-use, time-limited tokens such as
// password reset links. Only a SHA-256 hash of each token is stored; the
// plaintext exists in the outgoing email and nowhere else.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Purpose scopes what a token may be used for.
type Purpose string

// PurposePasswordReset tags tokens mailed by the forgot-password flow.
const PurposePasswordReset Purpose = "password_reset"

// DefaultTTL applies when Issue is called without a positive ttl.
const DefaultTTL = 24 * time.Hour

const tokenBytes = 32

var (
	// ErrTokenExpired reports a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports a token that belongs to another user or purpose.
	ErrTokenInvalid = errors.New("token invalid")
)

// Token is the stored record for an issued token.
type Token struct {
	ID        int64
	UserID    int64
	TokenHash string
	Purpose   Purpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token has expired at now.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Generate returns a URL-safe random token and its storage hash.
func Generate() (token, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("tokens: generate: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, Hash(token), nil
}

// Hash returns the hex SHA-256 digest stored for token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Matches compares token with a stored hash in constant time.
func Matches(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(token)), []byte(hash)) == 1
}
