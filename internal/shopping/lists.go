package shopping

import (
	"strings"

	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/syncqueue"
)

// mutation is one optimistic change to the active collection.
type mutation struct {
	lists   []model.ShoppingList
	sc      scope
	ops     []syncqueue.Operation
	events  []Event
	deleted *Deleted
}

func (m *mutation) enqueue(op syncqueue.Operation) {
	m.ops = append(m.ops, op)
}

func (m *mutation) event(entity, action, listID, itemID string) {
	m.events = append(m.events, Event{Entity: entity, Action: action, ListID: listID, ItemID: itemID})
}

// apply runs fn against the active collection and writes the result. On
// error nothing is written or queued.
func (s *Service) apply(fn func(m *mutation) error) error {
	s.mu.Lock()
	m := &mutation{lists: s.local.Read(s.namespace), sc: s.scopeLocked()}
	if err := fn(m); err != nil {
		s.mu.Unlock()
		return err
	}

	s.local.Write(m.sc.ns, m.lists)
	if m.deleted != nil {
		s.lastDeleted = m.deleted
	}
	if s.syncingLocked() {
		for _, op := range m.ops {
			s.queue.Enqueue(op)
		}
	}
	s.mu.Unlock()

	s.emit(m.events...)
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

func (s *Service) CreateList(name string) (model.ShoppingList, error) {
	name, err := cleanName(name)
	if err != nil {
		return model.ShoppingList{}, err
	}

	var created model.ShoppingList
	err = s.apply(func(m *mutation) error {
		now := s.nowMillis()
		created = model.ShoppingList{
			ID:        s.newID(),
			Name:      name,
			Items:     []model.ShoppingItem{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.lists = append(m.lists, created)
		m.enqueue(s.createListOp(m.sc, created))
		m.event("list", "created", created.ID, "")
		return nil
	})
	return created, err
}

func (s *Service) UpdateList(id string, u ListUpdate) (model.ShoppingList, error) {
	if u.Name != nil {
		name, err := cleanName(*u.Name)
		if err != nil {
			return model.ShoppingList{}, err
		}
		u.Name = &name
	}

	var updated model.ShoppingList
	err := s.apply(func(m *mutation) error {
		i := findList(m.lists, id)
		if i < 0 {
			return ErrListNotFound
		}
		l := &m.lists[i]
		if u.Name != nil {
			l.Name = *u.Name
		}
		if u.Archived != nil {
			l.Archived = *u.Archived
		}
		l.UpdatedAt = s.touch(l.UpdatedAt)
		updated = l.Clone()
		m.enqueue(s.updateListOp(m.sc, updated))
		m.event("list", "updated", id, "")
		return nil
	})
	return updated, err
}

func (s *Service) DeleteList(id string) error {
	return s.apply(func(m *mutation) error {
		i := findList(m.lists, id)
		if i < 0 {
			return ErrListNotFound
		}
		removed := m.lists[i].Clone()
		m.lists = append(m.lists[:i], m.lists[i+1:]...)
		m.deleted = &Deleted{Kind: "list", List: &removed, Index: i, ListID: id, DeletedAt: s.nowMillis()}
		m.enqueue(s.deleteListOp(m.sc, removed))
		m.event("list", "deleted", id, "")
		return nil
	})
}

// Undo restores the most recently deleted list or item and clears the slot.
// The restored entity is inserted remotely as new.
func (s *Service) Undo() (*Deleted, error) {
	var restored *Deleted
	err := s.apply(func(m *mutation) error {
		d := s.lastDeleted
		if d == nil {
			return ErrNothingToUndo
		}

		switch d.Kind {
		case "list":
			l := d.List.Clone()
			l.RemoteID = ""
			for j := range l.Items {
				l.Items[j].RemoteID = ""
			}
			l.UpdatedAt = s.touch(l.UpdatedAt)
			idx := min(max(d.Index, 0), len(m.lists))
			m.lists = append(m.lists[:idx], append([]model.ShoppingList{l}, m.lists[idx:]...)...)
			s.forgetRemoteIDLocked(l.ID)
			m.enqueue(s.createListOp(m.sc, l))
			for _, it := range l.Items {
				s.forgetRemoteIDLocked(it.ID)
				m.enqueue(s.createItemOp(m.sc, l, it))
			}
			m.event("list", "restored", l.ID, "")
		case "item":
			i := findList(m.lists, d.ListID)
			if i < 0 {
				return ErrListNotFound
			}
			l := &m.lists[i]
			before := positions(l.Items)
			it := *d.Item
			it.RemoteID = ""
			it.UpdatedAt = s.touch(it.UpdatedAt)
			idx := min(max(d.Index, 0), len(l.Items))
			l.Items = append(l.Items[:idx], append([]model.ShoppingItem{it}, l.Items[idx:]...)...)
			renumber(l.Items)
			l.UpdatedAt = s.touch(l.UpdatedAt)
			s.forgetRemoteIDLocked(it.ID)
			snapshot := l.Clone()
			m.enqueue(s.createItemOp(m.sc, snapshot, snapshot.Items[idx]))
			s.enqueueMoved(m, snapshot, before, it.ID)
			m.event("item", "restored", l.ID, it.ID)
		}

		restored = d
		s.lastDeleted = nil
		return nil
	})
	return restored, err
}
