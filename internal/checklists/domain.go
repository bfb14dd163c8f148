// Package checklists holds the checklist aggregate: a header, its items and an
// append-only history. Every state change goes through a Checklist method,
// which records exactly one history entry per change.
package checklists

import (
	"fmt"
	"strings"
	"time"

	"github.com/bebleo/checklist/internal/shared"
)

// Form messages.
const (
	MsgTitleRequired    = "Title for the list is required."
	MsgItemTextRequired = "Text for item required."
)

// ErrConfirmationRequired rejects a delete that was not explicitly confirmed.
var ErrConfirmationRequired = fmt.Errorf("checklists: delete not confirmed: %w", shared.ErrUnauthorized)

// Actor is the user performing a change, as named in history entries.
type Actor struct {
	ID   int64
	Name string
}

// Checklist is the aggregate root.
type Checklist struct {
	ID          int64
	Title       string
	Description string
	CreatedBy   int64
	AssignedTo  int64
	IsDeleted   bool
	CreatedAt   time.Time
	Items       []Item
	History     []HistoryEntry

	pending []HistoryEntry
}

// Item is one line of a checklist. Deleted items stay with Active false.
type Item struct {
	ID          int64
	ChecklistID int64
	Text        string
	Done        bool
	Active      bool
	CreatedAt   time.Time
}

// HistoryEntry is an immutable audit record of one change.
type HistoryEntry struct {
	ID          int64
	ChecklistID int64
	Description string
	UserID      int64
	CreatedAt   time.Time
}

// New starts a checklist owned by and assigned to actor.
func New(actor Actor, title, description string) (*Checklist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewValidationError("list_title", MsgTitleRequired)
	}
	c := &Checklist{
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedBy:   actor.ID,
		AssignedTo:  actor.ID,
	}
	c.record(actor, fmt.Sprintf("created the list called \"%s\".", title))
	return c, nil
}

// Rename changes the title. It reports false and records nothing when the
// title is unchanged.
func (c *Checklist) Rename(actor Actor, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, shared.NewValidationError("list_title", MsgTitleRequired)
	}
	if title == c.Title {
		return false, nil
	}
	c.record(actor, fmt.Sprintf("updated the title from \"%s\" to \"%s\".", c.Title, title))
	c.Title = title
	return true, nil
}

// SetDescription changes the description. It reports false and records
// nothing when the description is unchanged.
func (c *Checklist) SetDescription(actor Actor, description string) bool {
	description = strings.TrimSpace(description)
	if description == c.Description {
		return false
	}
	c.record(actor, fmt.Sprintf("updated the description from \"%s\" to \"%s\".", c.Description, description))
	c.Description = description
	return true
}

// AddItem appends a new, not done item. The returned item has no ID until stored.
func (c *Checklist) AddItem(actor Actor, text string) (*Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.NewValidationError("item_text", MsgItemTextRequired)
	}
	c.Items = append(c.Items, Item{ChecklistID: c.ID, Text: text, Active: true})
	c.record(actor, fmt.Sprintf("added %s.", text))
	return &c.Items[len(c.Items)-1], nil
}

// ToggleItem flips the done flag of an active item.
func (c *Checklist) ToggleItem(actor Actor, itemID int64) (*Item, error) {
	item := c.activeItem(itemID)
	if item == nil {
		return nil, shared.ErrNotFound
	}
	item.Done = !item.Done
	if item.Done {
		c.record(actor, fmt.Sprintf("marked %s as done.", item.Text))
	} else {
		c.record(actor, fmt.Sprintf("marked %s as not done.", item.Text))
	}
	return item, nil
}

// ToggleAll marks every active, not done item as done, recording one entry
// per item, and returns the items it changed.
func (c *Checklist) ToggleAll(actor Actor) []*Item {
	var changed []*Item
	for i := range c.Items {
		item := &c.Items[i]
		if !item.Active || item.Done {
			continue
		}
		item.Done = true
		c.record(actor, fmt.Sprintf("marked %s as done.", item.Text))
		changed = append(changed, item)
	}
	return changed
}

// DeleteItem deactivates an item. The row is kept.
func (c *Checklist) DeleteItem(actor Actor, itemID int64) (*Item, error) {
	item := c.activeItem(itemID)
	if item == nil {
		return nil, shared.ErrNotFound
	}
	item.Active = false
	c.record(actor, fmt.Sprintf("deleted %s.", item.Text))
	return item, nil
}

// SoftDelete marks the checklist deleted. confirmed must be true.
func (c *Checklist) SoftDelete(actor Actor, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if c.IsDeleted {
		return shared.ErrNotFound
	}
	c.IsDeleted = true
	c.record(actor, fmt.Sprintf("deleted the \"%s\" checklist.", c.Title))
	return nil
}

// ActiveItems returns the items that have not been deleted, in order.
func (c *Checklist) ActiveItems() []Item {
	out := make([]Item, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Active {
			out = append(out, item)
		}
	}
	return out
}

// PercentComplete is done/total over every item, deleted ones included, as a
// fraction in [0, 1], or 0 when the checklist has no items.
func (c *Checklist) PercentComplete() float64 {
	if len(c.Items) == 0 {
		return 0
	}
	done := 0
	for _, item := range c.Items {
		if item.Done {
			done++
		}
	}
	return float64(done) / float64(len(c.Items))
}

// CanAccess reports whether userID may view and change the checklist.
func (c *Checklist) CanAccess(userID int64) bool {
	return userID != 0 && (c.CreatedBy == userID || c.AssignedTo == userID)
}

// TakePending returns the history entries recorded since the last call,
// stamped with the checklist id, and moves them into History.
func (c *Checklist) TakePending() []HistoryEntry {
	pending := c.pending
	c.pending = nil
	for i := range pending {
		pending[i].ChecklistID = c.ID
	}
	c.History = append(c.History, pending...)
	return pending
}

func (c *Checklist) activeItem(id int64) *Item {
	for i := range c.Items {
		if c.Items[i].ID == id && c.Items[i].Active {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Checklist) record(actor Actor, change string) {
	c.pending = append(c.pending, HistoryEntry{
		ChecklistID: c.ID,
		Description: actor.Name + " " + change,
		UserID:      actor.ID,
	})
}
