package model

// ShoppingList is one named list owned by the current identity. Times are
// epoch milliseconds; UpdatedAt is the last-writer-wins tiebreak on merge.
type ShoppingList struct {
	ID        string         `json:"id"`
	RemoteID  string         `json:"remote_id,omitempty"`
	Name      string         `json:"name"`
	Items     []ShoppingItem `json:"items"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
	Archived  bool           `json:"archived"`
}

type ShoppingItem struct {
	ID        string `json:"id"`
	RemoteID  string `json:"remote_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Category  string `json:"category"`
	Completed bool   `json:"completed"`
	PhotoURL  string `json:"photo_url,omitempty"`
	Position  int    `json:"position"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// RemoteKey returns the identifier the remote store knows this list by.
func (l ShoppingList) RemoteKey() string {
	if l.RemoteID != "" {
		return l.RemoteID
	}
	return l.ID
}

// RemoteKey returns the identifier the remote store knows this item by.
func (i ShoppingItem) RemoteKey() string {
	if i.RemoteID != "" {
		return i.RemoteID
	}
	return i.ID
}

// HasIncomplete reports whether at least one item still needs buying.
func (l ShoppingList) HasIncomplete() bool {
	for _, item := range l.Items {
		if !item.Completed {
			return true
		}
	}
	return false
}

// ItemIndex returns the index of the item with the given id, or -1.
func (l ShoppingList) ItemIndex(itemID string) int {
	for i, item := range l.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate items freely.
func (l ShoppingList) Clone() ShoppingList {
	out := l
	if l.Items != nil {
		out.Items = make([]ShoppingItem, len(l.Items))
		copy(out.Items, l.Items)
	}
	return out
}

// CloneLists deep-copies a list collection.
func CloneLists(lists []ShoppingList) []ShoppingList {
	if lists == nil {
		return nil
	}
	out := make([]ShoppingList, len(lists))
	for i, l := range lists {
		out[i] = l.Clone()
	}
	return out
}
