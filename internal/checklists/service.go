package checklists

import (
	"context"

	"github.com/samber/oops"

	"github.com/bebleo/checklist/internal/shared"
)

// RepositoryPort defines data access methods for checklists.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Checklist, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Checklist, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Recorder counts completed checklist operations.
type Recorder interface {
	ObserveChecklist(op string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveChecklist(string) {}

// Service runs checklist use cases, one transaction per call.
type Service struct {
	repo     RepositoryPort
	recorder Recorder
}

// NewService builds Service instance. recorder may be nil.
func NewService(repo RepositoryPort, recorder Recorder) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{repo: repo, recorder: recorder}
}

// ListForOwner returns the non-deleted checklists actor created.
func (s *Service) ListForOwner(ctx context.Context, actor Actor) ([]Checklist, error) {
	return s.repo.ListByOwner(ctx, actor.ID)
}

// Get loads a checklist visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*Checklist, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := visible(c, actor); err != nil {
		return nil, err
	}
	return c, nil
}

// Create stores a new checklist owned by actor.
func (s *Service) Create(ctx context.Context, actor Actor, title, description string) (*Checklist, error) {
	c, err := New(actor, title, description)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Create(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		return appendHistory(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveChecklist("create")
	return c, nil
}

// Edit renames the checklist and replaces its description.
func (s *Service) Edit(ctx context.Context, actor Actor, id int64, title, description string) (*Checklist, error) {
	return s.mutate(ctx, "edit", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		renamed, err := c.Rename(actor, title)
		if err != nil {
			return err
		}
		described := c.SetDescription(actor, description)
		if !renamed && !described {
			return nil
		}
		return tx.UpdateHeader(ctx, c)
	})
}

// AddItem appends an item to the checklist.
func (s *Service) AddItem(ctx context.Context, actor Actor, id int64, text string) (*Checklist, error) {
	return s.mutate(ctx, "add_item", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		item, err := c.AddItem(actor, text)
		if err != nil {
			return err
		}
		itemID, err := tx.InsertItem(ctx, *item)
		if err != nil {
			return err
		}
		item.ID = itemID
		return nil
	})
}

// ToggleItem flips one item between done and not done.
func (s *Service) ToggleItem(ctx context.Context, actor Actor, id, itemID int64) (*Checklist, error) {
	return s.mutate(ctx, "toggle_item", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		item, err := c.ToggleItem(actor, itemID)
		if err != nil {
			return oops.Code("CHECKLIST_ITEM_NOT_FOUND").With("checklist_id", id).With("item_id", itemID).Wrap(err)
		}
		return tx.UpdateItem(ctx, *item)
	})
}

// ToggleAll marks every open item done.
func (s *Service) ToggleAll(ctx context.Context, actor Actor, id int64) (*Checklist, error) {
	return s.mutate(ctx, "toggle_all", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		for _, item := range c.ToggleAll(actor) {
			if err := tx.UpdateItem(ctx, *item); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteItem deactivates one item.
func (s *Service) DeleteItem(ctx context.Context, actor Actor, id, itemID int64) (*Checklist, error) {
	return s.mutate(ctx, "delete_item", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		item, err := c.DeleteItem(actor, itemID)
		if err != nil {
			return oops.Code("CHECKLIST_ITEM_NOT_FOUND").With("checklist_id", id).With("item_id", itemID).Wrap(err)
		}
		return tx.UpdateItem(ctx, *item)
	})
}

// Delete soft-deletes the checklist. confirmed must be true.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64, confirmed bool) error {
	_, err := s.mutate(ctx, "delete", actor, id, func(ctx context.Context, tx TxRepository, c *Checklist) error {
		if err := c.SoftDelete(actor, confirmed); err != nil {
			return err
		}
		return tx.UpdateHeader(ctx, c)
	})
	return err
}

// mutate locks the checklist, applies fn and appends the history fn recorded,
// all in one transaction.
func (s *Service) mutate(ctx context.Context, op string, actor Actor, id int64, fn func(context.Context, TxRepository, *Checklist) error) (*Checklist, error) {
	var result *Checklist
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := visible(c, actor); err != nil {
			return err
		}
		if err := fn(ctx, tx, c); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveChecklist(op)
	return result, nil
}

func visible(c *Checklist, actor Actor) error {
	if c.IsDeleted || !c.CanAccess(actor.ID) {
		return oops.Code("CHECKLIST_NOT_FOUND").With("checklist_id", c.ID).With("user_id", actor.ID).Wrap(shared.ErrNotFound)
	}
	return nil
}

func appendHistory(ctx context.Context, tx TxRepository, c *Checklist) error {
	for _, entry := range c.TakePending() {
		if err := tx.InsertHistory(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
