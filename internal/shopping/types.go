package shopping

import (
	"errors"

	"github.com/dukerupert/basket/internal/model"
)

var (
	ErrListNotFound    = errors.New("list not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNothingToUndo   = errors.New("nothing to undo")
)

// ListUpdate holds the list fields to change. Nil fields are left alone.
type ListUpdate struct {
	Name     *string `json:"name"`
	Archived *bool   `json:"archived"`
}

// ItemInput describes a new item. A zero Quantity means 1 and an empty
// Category is filled in from the name.
type ItemInput struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
	PhotoURL string `json:"photo_url"`
}

// ItemUpdate holds the item fields to change. Nil fields are left alone.
type ItemUpdate struct {
	Name     *string `json:"name"`
	Quantity *int    `json:"quantity"`
	Category *string `json:"category"`
	PhotoURL *string `json:"photo_url"`
}

// Deleted is the content of the undo slot.
type Deleted struct {
	Kind  string              `json:"kind"` // "item" or "list"
	List  *model.ShoppingList `json:"list,omitempty"`
	Item  *model.ShoppingItem `json:"item,omitempty"`
	// ListID and Index locate a deleted item within its list.
	ListID    string `json:"list_id"`
	Index     int    `json:"index"`
	DeletedAt int64  `json:"deleted_at"`
}

// Event describes a local mutation, for pushing to connected clients.
type Event struct {
	Entity string `json:"entity"` // "list" or "item"
	Action string `json:"action"`
	ListID string `json:"list_id"`
	ItemID string `json:"item_id,omitempty"`
}
