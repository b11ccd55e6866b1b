package remote

import "github.com/dukerupert/basket/internal/model"

// ListDoc is a list as stored by the cloud service. ClientID is the id the
// daemon assigned locally.
type ListDoc struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
	Items     []ItemDoc `json:"items,omitempty"`
}

// ItemDoc is an item as stored by the cloud service.
type ItemDoc struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	ListID    string `json:"list_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Category  string `json:"category"`
	Completed bool   `json:"completed"`
	PhotoURL  string `json:"photo_url,omitempty"`
	Position  int    `json:"position"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ListDocFrom converts a local list, without its items.
func ListDocFrom(l model.ShoppingList) ListDoc {
	return ListDoc{
		ClientID:  l.ID,
		Name:      l.Name,
		Archived:  l.Archived,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// ItemDocFrom converts a local item.
func ItemDocFrom(it model.ShoppingItem) ItemDoc {
	return ItemDoc{
		ClientID:  it.ID,
		Name:      it.Name,
		Quantity:  it.Quantity,
		Category:  it.Category,
		Completed: it.Completed,
		PhotoURL:  it.PhotoURL,
		Position:  it.Position,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

// Model converts the document into a local list. The local id is the client
// id when one was recorded and the remote id otherwise.
func (d ListDoc) Model() model.ShoppingList {
	l := model.ShoppingList{
		ID:        d.ClientID,
		RemoteID:  d.ID,
		Name:      d.Name,
		Archived:  d.Archived,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Items:     make([]model.ShoppingItem, 0, len(d.Items)),
	}
	if l.ID == "" {
		l.ID = d.ID
	}
	for _, it := range d.Items {
		l.Items = append(l.Items, it.Model())
	}
	return l
}

func (d ItemDoc) Model() model.ShoppingItem {
	it := model.ShoppingItem{
		ID:        d.ClientID,
		RemoteID:  d.ID,
		Name:      d.Name,
		Quantity:  d.Quantity,
		Category:  d.Category,
		Completed: d.Completed,
		PhotoURL:  d.PhotoURL,
		Position:  d.Position,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if it.ID == "" {
		it.ID = d.ID
	}
	return it
}
