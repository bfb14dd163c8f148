package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
)

// Repository persists tokens in the password_tokens table.
type Repository struct {
	db db.Querier
}

// NewRepository constructs a repository over a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Create stores token and returns its id.
func (r *Repository) Create(ctx context.Context, token Token) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO password_tokens (user_id, token_hash, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, token.UserID, token.TokenHash, string(token.Purpose), token.ExpiresAt, token.CreatedAt).Scan(&id)
	if err != nil {
		return 0, oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert password_token").
			With("user_id", token.UserID).
			Wrap(err)
	}
	return id, nil
}

// GetByHash loads the token stored under hash.
func (r *Repository) GetByHash(ctx context.Context, hash string) (*Token, error) {
	var (
		t       Token
		purpose string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, purpose, expires_at, created_at
		FROM password_tokens
		WHERE token_hash = $1
	`, hash).Scan(&t.ID, &t.UserID, &t.TokenHash, &purpose, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_QUERY_FAILED").With("operation", "select password_token").Wrap(err)
	}
	t.Purpose = Purpose(purpose)
	return &t, nil
}

// DeleteByHash removes the token stored under hash.
func (r *Repository) DeleteByHash(ctx context.Context, hash string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").With("operation", "delete password_token").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").Wrap(shared.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (r *Repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_tokens WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").With("cutoff", cutoff).Wrap(err)
	}
	return tag.RowsAffected(), nil
}
