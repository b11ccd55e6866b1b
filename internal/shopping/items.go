package shopping

import (
	"github.com/dukerupert/basket/internal/grocery"
	"github.com/dukerupert/basket/internal/model"
)

func renumber(items []model.ShoppingItem) {
	for i := range items {
		items[i].Position = i
	}
}

func positions(items []model.ShoppingItem) map[string]int {
	m := make(map[string]int, len(items))
	for _, it := range items {
		m[it.ID] = it.Position
	}
	return m
}

// firstCompleted returns the index of the first completed item, or
// len(items) when there is none.
func firstCompleted(items []model.ShoppingItem) int {
	for i, it := range items {
		if it.Completed {
			return i
		}
	}
	return len(items)
}

func insertAt(items []model.ShoppingItem, i int, it model.ShoppingItem) []model.ShoppingItem {
	items = append(items, model.ShoppingItem{})
	copy(items[i+1:], items[i:])
	items[i] = it
	return items
}

// enqueueMoved pushes a position update for every item whose position
// differs from before, except skipID.
func (s *Service) enqueueMoved(m *mutation, list model.ShoppingList, before map[string]int, skipID string) {
	for _, it := range list.Items {
		if it.ID == skipID {
			continue
		}
		if pos, ok := before[it.ID]; ok && pos == it.Position {
			continue
		}
		m.enqueue(s.updateItemOp(m.sc, list, it))
	}
}

func (s *Service) newItem(in ItemInput) (model.ShoppingItem, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return model.ShoppingItem{}, err
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return model.ShoppingItem{}, ErrInvalidQuantity
	}
	category := in.Category
	if category == "" {
		category = grocery.Categorize(name)
	}
	now := s.nowMillis()
	return model.ShoppingItem{
		ID:        s.newID(),
		Name:      name,
		Quantity:  qty,
		Category:  category,
		PhotoURL:  in.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddItem adds one item above the completed items of the list.
func (s *Service) AddItem(listID string, in ItemInput) (model.ShoppingItem, error) {
	items, err := s.AddItems(listID, []ItemInput{in})
	if err != nil {
		return model.ShoppingItem{}, err
	}
	return items[0], nil
}

// AddItems adds several items in one local write. Either all are added or,
// when any input is invalid, none.
func (s *Service) AddItems(listID string, inputs []ItemInput) ([]model.ShoppingItem, error) {
	created := make([]model.ShoppingItem, 0, len(inputs))
	for _, in := range inputs {
		it, err := s.newItem(in)
		if err != nil {
			return nil, err
		}
		created = append(created, it)
	}
	if len(created) == 0 {
		return created, nil
	}

	err := s.apply(func(m *mutation) error {
		i := findList(m.lists, listID)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		before := positions(l.Items)

		at := firstCompleted(l.Items)
		for k, it := range created {
			l.Items = insertAt(l.Items, at+k, it)
		}
		renumber(l.Items)
		l.UpdatedAt = s.touch(l.UpdatedAt)

		snapshot := l.Clone()
		for k := range created {
			created[k] = snapshot.Items[at+k]
			m.enqueue(s.createItemOp(m.sc, snapshot, created[k]))
			m.event("item", "created", listID, created[k].ID)
		}
		for _, it := range created {
			before[it.ID] = it.Position
		}
		s.enqueueMoved(m, snapshot, before, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateItem(listID, itemID string, u ItemUpdate) (model.ShoppingItem, error) {
	if u.Name != nil {
		name, err := cleanName(*u.Name)
		if err != nil {
			return model.ShoppingItem{}, err
		}
		u.Name = &name
	}
	if u.Quantity != nil && *u.Quantity < 1 {
		return model.ShoppingItem{}, ErrInvalidQuantity
	}

	var updated model.ShoppingItem
	err := s.apply(func(m *mutation) error {
		i := findList(m.lists, listID)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		j := l.ItemIndex(itemID)
		if j < 0 {
			return ErrItemNotFound
		}
		it := &l.Items[j]
		if u.Name != nil {
			it.Name = *u.Name
		}
		if u.Quantity != nil {
			it.Quantity = *u.Quantity
		}
		if u.Category != nil {
			it.Category = *u.Category
		}
		if u.PhotoURL != nil {
			it.PhotoURL = *u.PhotoURL
		}
		it.UpdatedAt = s.touch(it.UpdatedAt)
		l.UpdatedAt = s.touch(l.UpdatedAt)
		updated = *it

		m.enqueue(s.updateItemOp(m.sc, l.Clone(), updated))
		m.event("item", "updated", listID, itemID)
		return nil
	})
	return updated, err
}

func (s *Service) DeleteItem(listID, itemID string) error {
	return s.apply(func(m *mutation) error {
		i := findList(m.lists, listID)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		j := l.ItemIndex(itemID)
		if j < 0 {
			return ErrItemNotFound
		}
		removed := l.Items[j]
		l.Items = append(l.Items[:j], l.Items[j+1:]...)
		l.UpdatedAt = s.touch(l.UpdatedAt)

		m.deleted = &Deleted{Kind: "item", Item: &removed, ListID: listID, Index: j, DeletedAt: s.nowMillis()}
		m.enqueue(s.deleteItemOp(m.sc, l.Clone(), removed))
		m.event("item", "deleted", listID, itemID)
		return nil
	})
}

// ToggleItem flips the completion of an item. A completed item moves to the
// end of the list; an item marked incomplete moves just before the first
// remaining completed item. Positions are renumbered afterwards.
func (s *Service) ToggleItem(listID, itemID string) (model.ShoppingList, error) {
	var result model.ShoppingList
	err := s.apply(func(m *mutation) error {
		i := findList(m.lists, listID)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		j := l.ItemIndex(itemID)
		if j < 0 {
			return ErrItemNotFound
		}
		before := positions(l.Items)

		it := l.Items[j]
		it.Completed = !it.Completed
		it.UpdatedAt = s.touch(it.UpdatedAt)
		rest := append(l.Items[:j:j], l.Items[j+1:]...)
		if it.Completed {
			l.Items = append(rest, it)
		} else {
			l.Items = insertAt(rest, firstCompleted(rest), it)
		}
		renumber(l.Items)
		l.UpdatedAt = s.touch(l.UpdatedAt)

		result = l.Clone()
		toggled := result.Items[result.ItemIndex(itemID)]
		m.enqueue(s.updateItemOp(m.sc, result, toggled))
		s.enqueueMoved(m, result, before, itemID)
		m.event("item", "toggled", listID, itemID)
		return nil
	})
	return result, err
}

// ReorderItems moves the item at from to index to and renumbers positions.
// Every item whose position changed is pushed individually.
func (s *Service) ReorderItems(listID string, from, to int) (model.ShoppingList, error) {
	var result model.ShoppingList
	err := s.apply(func(m *mutation) error {
		i := findList(m.lists, listID)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		n := len(l.Items)
		if from < 0 || from >= n || to < 0 || to >= n {
			return ErrIndexOutOfRange
		}
		before := positions(l.Items)

		it := l.Items[from]
		rest := append(l.Items[:from:from], l.Items[from+1:]...)
		l.Items = insertAt(rest, to, it)
		renumber(l.Items)
		l.UpdatedAt = s.touch(l.UpdatedAt)

		result = l.Clone()
		s.enqueueMoved(m, result, before, "")
		m.event("item", "reordered", listID, it.ID)
		return nil
	})
	return result, err
}
