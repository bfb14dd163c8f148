package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool    db.Pool
	queries *queries
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool, queries: &queries{db: pool}}
}

// TxRepository exposes the operations that run inside an update transaction.
type TxRepository interface {
	LockUser(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	Update(ctx context.Context, user User) error
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &queries{db: tx})
	})
}

// FindByID fetches a user by primary key.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.queries.FindByID(ctx, id)
}

// FindByEmail fetches a user by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.queries.FindByEmail(ctx, email)
}

// List returns every user ordered by id.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	return r.queries.List(ctx)
}

// Create inserts a user and returns its id.
func (r *Repository) Create(ctx context.Context, user User) (int64, error) {
	return r.queries.Create(ctx, user)
}

// SetPassword replaces a password hash.
func (r *Repository) SetPassword(ctx context.Context, id int64, hash string) error {
	return r.queries.SetPassword(ctx, id, hash)
}

// CountActiveAdmins counts admins whose accounts are active.
func (r *Repository) CountActiveAdmins(ctx context.Context) (int, error) {
	return r.queries.CountActiveAdmins(ctx)
}

const userColumns = `id, email, password_hash, given_name, family_name, is_admin, status, created_at, updated_at`

type queries struct {
	db db.Querier
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u      User
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GivenName, &u.FamilyName, &u.IsAdmin, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = AccountStatus(status)
	return &u, nil
}

func (q *queries) FindByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find user by id").With("user_id", id).Wrap(err)
	}
	return u, nil
}

func (q *queries) LockUser(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "lock user").With("user_id", id).Wrap(err)
	}
	return u, nil
}

func (q *queries) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find user by email").Wrap(err)
	}
	return u, nil
}

func (q *queries) List(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan user").Wrap(err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list users").Wrap(err)
	}
	return users, nil
}

func (q *queries) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, given_name, family_name, is_admin, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Email, user.PasswordHash, user.GivenName, user.FamilyName, user.IsAdmin, string(user.Status)).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(&ConflictError{Email: user.Email})
		}
		return 0, oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return id, nil
}

func (q *queries) Update(ctx context.Context, user User) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, given_name = $4, family_name = $5,
		    is_admin = $6, status = $7, updated_at = NOW()
		WHERE id = $1
	`, user.ID, user.Email, user.PasswordHash, user.GivenName, user.FamilyName, user.IsAdmin, string(user.Status))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return oops.Code("USER_EMAIL_TAKEN").With("user_id", user.ID).Wrap(&ConflictError{Email: user.Email})
		}
		return oops.Code("USER_UPDATE_FAILED").With("operation", "update user").With("user_id", user.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID).Wrap(shared.ErrNotFound)
	}
	return nil
}

func (q *queries) SetPassword(ctx context.Context, id int64, hash string) error {
	tag, err := q.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "set password").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(shared.ErrNotFound)
	}
	return nil
}

// CountActiveAdmins locks the active admin rows so concurrent demotions serialize.
func (q *queries) CountActiveAdmins(ctx context.Context) (int, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM users WHERE is_admin AND status = 'active' FOR UPDATE`)
	if err != nil {
		return 0, oops.Code("USER_QUERY_FAILED").With("operation", "count active admins").Wrap(err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, oops.Code("USER_QUERY_FAILED").With("operation", "count active admins").Wrap(err)
	}
	return count, nil
}
