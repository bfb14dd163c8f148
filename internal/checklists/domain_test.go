package checklists

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebleo/checklist/internal/shared"
)

var alice = Actor{ID: 1, Name: "Alice"}

func newList(t *testing.T, items ...string) *Checklist {
	t.Helper()
	c, err := New(alice, "Groceries", "weekly shop")
	require.NoError(t, err)
	c.ID = 7
	for i, text := range items {
		item, err := c.AddItem(alice, text)
		require.NoError(t, err)
		item.ID = int64(i + 1)
	}
	c.TakePending()
	return c
}

func TestNewRecordsCreation(t *testing.T) {
	c, err := New(alice, "  Groceries ", "")
	require.NoError(t, err)

	assert.Equal(t, "Groceries", c.Title)
	assert.Equal(t, alice.ID, c.CreatedBy)
	assert.Equal(t, alice.ID, c.AssignedTo)
	c.ID = 3
	pending := c.TakePending()
	require.Len(t, pending, 1)
	assert.Equal(t, `Alice created the list called "Groceries".`, pending[0].Description)
	assert.Equal(t, int64(3), pending[0].ChecklistID)
	assert.Equal(t, alice.ID, pending[0].UserID)
	assert.Len(t, c.History, 1)
}

func TestNewRequiresTitle(t *testing.T) {
	_, err := New(alice, "   ", "desc")

	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, MsgTitleRequired, shared.FieldErrors(err)["list_title"])
}

func TestPercentComplete(t *testing.T) {
	c := newList(t, "milk", "eggs", "bread")
	assert.Zero(t, c.PercentComplete())

	_, err := c.ToggleItem(alice, 1)
	require.NoError(t, err)
	_, err = c.ToggleItem(alice, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, c.PercentComplete(), 1e-9)

	_, err = c.DeleteItem(alice, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, c.PercentComplete(), 1e-9, "deleted items still count")

	_, err = c.ToggleItem(alice, 3)
	assert.Error(t, err)

	empty := newList(t)
	assert.Zero(t, empty.PercentComplete())
}

func TestPercentCompleteCountsDeletedItems(t *testing.T) {
	c := &Checklist{Items: []Item{
		{ID: 1, Text: "milk", Done: true, Active: true},
		{ID: 2, Text: "eggs", Done: true, Active: true},
		{ID: 3, Text: "bread", Active: false},
	}}

	assert.InDelta(t, 2.0/3.0, c.PercentComplete(), 1e-9)
	assert.Len(t, c.ActiveItems(), 2)
}

func TestHistoryDeltas(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(t *testing.T, c *Checklist)
		wantDelta int
		wantLast  string
	}{
		{
			name: "rename",
			apply: func(t *testing.T, c *Checklist) {
				changed, err := c.Rename(alice, "Party")
				require.NoError(t, err)
				assert.True(t, changed)
			},
			wantDelta: 1,
			wantLast:  `Alice updated the title from "Groceries" to "Party".`,
		},
		{
			name: "rename to same title",
			apply: func(t *testing.T, c *Checklist) {
				changed, err := c.Rename(alice, "Groceries")
				require.NoError(t, err)
				assert.False(t, changed)
			},
		},
		{
			name: "description",
			apply: func(t *testing.T, c *Checklist) {
				assert.True(t, c.SetDescription(alice, "monthly shop"))
			},
			wantDelta: 1,
			wantLast:  `Alice updated the description from "weekly shop" to "monthly shop".`,
		},
		{
			name: "same description",
			apply: func(t *testing.T, c *Checklist) {
				assert.False(t, c.SetDescription(alice, "weekly shop"))
			},
		},
		{
			name: "add item",
			apply: func(t *testing.T, c *Checklist) {
				_, err := c.AddItem(alice, "butter")
				require.NoError(t, err)
			},
			wantDelta: 1,
			wantLast:  "Alice added butter.",
		},
		{
			name: "toggle item on",
			apply: func(t *testing.T, c *Checklist) {
				item, err := c.ToggleItem(alice, 1)
				require.NoError(t, err)
				assert.True(t, item.Done)
			},
			wantDelta: 1,
			wantLast:  "Alice marked milk as done.",
		},
		{
			name: "toggle item twice",
			apply: func(t *testing.T, c *Checklist) {
				_, err := c.ToggleItem(alice, 1)
				require.NoError(t, err)
				item, err := c.ToggleItem(alice, 1)
				require.NoError(t, err)
				assert.False(t, item.Done)
			},
			wantDelta: 2,
			wantLast:  "Alice marked milk as not done.",
		},
		{
			name: "toggle all skips done items",
			apply: func(t *testing.T, c *Checklist) {
				_, err := c.ToggleItem(alice, 2)
				require.NoError(t, err)
				changed := c.ToggleAll(alice)
				assert.Len(t, changed, 2)
			},
			wantDelta: 3,
			wantLast:  "Alice marked bread as done.",
		},
		{
			name: "delete item",
			apply: func(t *testing.T, c *Checklist) {
				item, err := c.DeleteItem(alice, 2)
				require.NoError(t, err)
				assert.False(t, item.Active)
				assert.Len(t, c.ActiveItems(), 2)
			},
			wantDelta: 1,
			wantLast:  "Alice deleted eggs.",
		},
		{
			name: "soft delete",
			apply: func(t *testing.T, c *Checklist) {
				require.NoError(t, c.SoftDelete(alice, true))
				assert.True(t, c.IsDeleted)
			},
			wantDelta: 1,
			wantLast:  `Alice deleted the "Groceries" checklist.`,
		},
		{
			name: "unconfirmed delete",
			apply: func(t *testing.T, c *Checklist) {
				err := c.SoftDelete(alice, false)
				assert.ErrorIs(t, err, ErrConfirmationRequired)
				assert.ErrorIs(t, err, shared.ErrUnauthorized)
				assert.False(t, c.IsDeleted)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newList(t, "milk", "eggs", "bread")
			before := len(c.History)

			tt.apply(t, c)
			c.TakePending()

			assert.Len(t, c.History, before+tt.wantDelta)
			if tt.wantLast != "" {
				assert.Equal(t, tt.wantLast, c.History[len(c.History)-1].Description)
			}
		})
	}
}

func TestItemOperationsRejectUnknownOrInactiveItems(t *testing.T) {
	c := newList(t, "milk")
	_, err := c.DeleteItem(alice, 1)
	require.NoError(t, err)

	_, err = c.ToggleItem(alice, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = c.DeleteItem(alice, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = c.ToggleItem(alice, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, c.ToggleAll(alice))
}

func TestAddItemRequiresText(t *testing.T) {
	c := newList(t)

	_, err := c.AddItem(alice, " ")

	assert.Equal(t, MsgItemTextRequired, shared.FieldErrors(err)["item_text"])
	assert.Empty(t, c.Items)
	assert.Empty(t, c.TakePending())
}

func TestCanAccess(t *testing.T) {
	c := newList(t)
	c.AssignedTo = 2

	assert.True(t, c.CanAccess(1))
	assert.True(t, c.CanAccess(2))
	assert.False(t, c.CanAccess(3))
	assert.False(t, c.CanAccess(0))
}
