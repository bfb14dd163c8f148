package checklists

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
)

// Repository provides PostgreSQL backed persistence for checklists.
type Repository struct {
	pool    db.Pool
	queries *queries
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool, queries: &queries{db: pool}}
}

// TxRepository exposes the operations that run inside a mutation transaction.
type TxRepository interface {
	Create(ctx context.Context, c *Checklist) (int64, error)
	Lock(ctx context.Context, id int64) (*Checklist, error)
	UpdateHeader(ctx context.Context, c *Checklist) error
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	InsertHistory(ctx context.Context, entry HistoryEntry) error
}

// WithTx wraps callback in repeatable-read transaction.
//
// A transaction that loses a write race to a concurrent mutation is re-run
// from the top, so concurrent toggles resolve as last write wins.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			return fn(ctx, &queries{db: tx})
		})
		if !db.IsSerializationFailure(err) {
			return err
		}
	}
	return err
}

const maxTxAttempts = 3

// Get loads a checklist with its items and history, deleted or not.
func (r *Repository) Get(ctx context.Context, id int64) (*Checklist, error) {
	return r.queries.load(ctx, id, false)
}

// ListByOwner returns the non-deleted checklists created by ownerID.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Checklist, error) {
	return r.queries.ListByOwner(ctx, ownerID)
}

const checklistColumns = `id, title, description, created_by, assigned_to, is_deleted, created_at`

type queries struct {
	db db.Querier
}

func scanChecklist(row pgx.Row) (*Checklist, error) {
	var c Checklist
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedBy, &c.AssignedTo, &c.IsDeleted, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) Lock(ctx context.Context, id int64) (*Checklist, error) {
	return q.load(ctx, id, true)
}

func (q *queries) load(ctx context.Context, id int64, lock bool) (*Checklist, error) {
	query := `SELECT ` + checklistColumns + ` FROM checklists WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanChecklist(q.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CHECKLIST_NOT_FOUND").With("checklist_id", id).Wrap(shared.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "select checklist").With("checklist_id", id).Wrap(err)
	}
	if c.Items, err = q.items(ctx, id); err != nil {
		return nil, err
	}
	if c.History, err = q.history(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (q *queries) items(ctx context.Context, checklistID int64) ([]Item, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, checklist_id, item_text, done, active, created_at
		FROM checklist_items
		WHERE checklist_id = $1
		ORDER BY id
	`, checklistID)
	if err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "select items").With("checklist_id", checklistID).Wrap(err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ChecklistID, &it.Text, &it.Done, &it.Active, &it.CreatedAt); err != nil {
			return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "scan item").Wrap(err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "select items").Wrap(err)
	}
	return items, nil
}

func (q *queries) history(ctx context.Context, checklistID int64) ([]HistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, checklist_id, description, user_id, created_at
		FROM checklist_history
		WHERE checklist_id = $1
		ORDER BY id
	`, checklistID)
	if err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "select history").With("checklist_id", checklistID).Wrap(err)
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.ChecklistID, &h.Description, &h.UserID, &h.CreatedAt); err != nil {
			return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "scan history").Wrap(err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "select history").Wrap(err)
	}
	return entries, nil
}

func (q *queries) ListByOwner(ctx context.Context, ownerID int64) ([]Checklist, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+checklistColumns+`
		FROM checklists
		WHERE created_by = $1 AND NOT is_deleted
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "list checklists").With("owner_id", ownerID).Wrap(err)
	}
	defer rows.Close()
	var lists []Checklist
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "scan checklist").Wrap(err)
		}
		lists = append(lists, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CHECKLIST_QUERY_FAILED").With("operation", "list checklists").Wrap(err)
	}
	return lists, nil
}

func (q *queries) Create(ctx context.Context, c *Checklist) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO checklists (title, description, created_by, assigned_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Title, c.Description, c.CreatedBy, c.AssignedTo).Scan(&id)
	if err != nil {
		return 0, oops.Code("CHECKLIST_CREATE_FAILED").With("operation", "insert checklist").With("owner_id", c.CreatedBy).Wrap(err)
	}
	return id, nil
}

func (q *queries) UpdateHeader(ctx context.Context, c *Checklist) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE checklists
		SET title = $2, description = $3, assigned_to = $4, is_deleted = $5
		WHERE id = $1
	`, c.ID, c.Title, c.Description, c.AssignedTo, c.IsDeleted)
	if err != nil {
		return oops.Code("CHECKLIST_UPDATE_FAILED").With("operation", "update checklist").With("checklist_id", c.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("CHECKLIST_NOT_FOUND").With("checklist_id", c.ID).Wrap(shared.ErrNotFound)
	}
	return nil
}

func (q *queries) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO checklist_items (checklist_id, item_text, done, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, item.ChecklistID, item.Text, item.Done, item.Active).Scan(&id)
	if err != nil {
		return 0, oops.Code("CHECKLIST_ITEM_CREATE_FAILED").With("checklist_id", item.ChecklistID).Wrap(err)
	}
	return id, nil
}

func (q *queries) UpdateItem(ctx context.Context, item Item) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE checklist_items SET done = $3, active = $4
		WHERE id = $1 AND checklist_id = $2
	`, item.ID, item.ChecklistID, item.Done, item.Active)
	if err != nil {
		return oops.Code("CHECKLIST_ITEM_UPDATE_FAILED").With("item_id", item.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("CHECKLIST_ITEM_NOT_FOUND").With("item_id", item.ID).Wrap(shared.ErrNotFound)
	}
	return nil
}

func (q *queries) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO checklist_history (checklist_id, description, user_id)
		VALUES ($1, $2, $3)
	`, entry.ChecklistID, entry.Description, entry.UserID)
	if err != nil {
		return oops.Code("CHECKLIST_HISTORY_FAILED").With("checklist_id", entry.ChecklistID).Wrap(err)
	}
	return nil
}
