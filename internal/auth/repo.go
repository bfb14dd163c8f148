package auth

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	// CompleteReset stores a new password hash and status for userID and runs
	// consume in the same transaction.
	CompleteReset(ctx context.Context, userID int64, passwordHash string, status users.AccountStatus, consume ConsumeFunc) error
}

// ConsumeFunc deletes the reset token through the transaction it is given.
type ConsumeFunc func(ctx context.Context, q db.Querier) error

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CompleteReset implements Repository. A token consumed by a concurrent
// request rolls the password change back with shared.ErrNotFound.
func (r *PGRepository) CompleteReset(ctx context.Context, userID int64, passwordHash string, status users.AccountStatus, consume ConsumeFunc) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET password_hash = $2, status = $3, updated_at = NOW()
			WHERE id = $1
		`, userID, passwordHash, string(status))
		if err != nil {
			return oops.Code("AUTH_RESET_FAILED").With("operation", "update password").With("user_id", userID).Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			return oops.Code("USER_NOT_FOUND").With("user_id", userID).Wrap(shared.ErrNotFound)
		}
		return consume(ctx, tx)
	})
}

var _ Repository = (*PGRepository)(nil)
