package shopping

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/remote"
	"github.com/dukerupert/basket/internal/syncqueue"
)

// Remote operations resolve their target when they run, not when they are
// queued: a list created a moment ago may only now have a remote id.

// scope is the namespace and user an operation was queued for.
type scope struct {
	ns     string
	userID string
}

func (s *Service) scopeLocked() scope {
	return scope{ns: s.namespace, userID: s.userID}
}

func (s *Service) findLocal(ns, listID, itemID string) (model.ShoppingList, *model.ShoppingItem) {
	lists := s.local.Read(ns)
	i := findList(lists, listID)
	if i < 0 {
		return model.ShoppingList{}, nil
	}
	if itemID == "" {
		return lists[i], nil
	}
	if j := lists[i].ItemIndex(itemID); j >= 0 {
		return lists[i], &lists[i].Items[j]
	}
	return lists[i], nil
}

// remoteKey resolves the remote id of a local list or item. listID is the
// list of the item, or the list itself when itemID is empty.
func (s *Service) remoteKey(ns, listID, itemID string) string {
	id := listID
	if itemID != "" {
		id = itemID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rid, ok := s.remoteIDs[id]; ok {
		return rid
	}
	list, item := s.findLocal(ns, listID, itemID)
	if itemID == "" && list.RemoteID != "" {
		return list.RemoteID
	}
	if item != nil {
		return item.RemoteKey()
	}
	return id
}

// recordRemoteID stores a learned remote id in the registry and on the local
// entity, if it still exists.
func (s *Service) recordRemoteID(ns, listID, itemID, rid string) {
	if rid == "" {
		return
	}
	id := listID
	if itemID != "" {
		id = itemID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteIDs[id] = rid

	lists := s.local.Read(ns)
	i := findList(lists, listID)
	if i < 0 {
		return
	}
	if itemID == "" {
		if lists[i].RemoteID == rid {
			return
		}
		lists[i].RemoteID = rid
	} else {
		j := lists[i].ItemIndex(itemID)
		if j < 0 || lists[i].Items[j].RemoteID == rid {
			return
		}
		lists[i].Items[j].RemoteID = rid
	}
	s.local.Write(ns, lists)
}

func (s *Service) forgetRemoteIDLocked(id string) {
	delete(s.remoteIDs, id)
}

// pushList creates the list remotely from its current local state, falling
// back to the snapshot taken at queue time when it is gone locally.
func (s *Service) pushList(ctx context.Context, sc scope, snapshot model.ShoppingList) (string, error) {
	s.mu.Lock()
	current, _ := s.findLocal(sc.ns, snapshot.ID, "")
	s.mu.Unlock()
	if current.ID == "" {
		current = snapshot
	}

	rid, err := s.remote.CreateList(ctx, current, sc.userID)
	if err != nil {
		return "", fmt.Errorf("create list %s: %w", snapshot.ID, err)
	}
	s.recordRemoteID(sc.ns, snapshot.ID, "", rid)
	return rid, nil
}

// pushItem creates the item remotely. When the parent list does not exist
// remotely it is created first.
func (s *Service) pushItem(ctx context.Context, sc scope, list model.ShoppingList, snapshot model.ShoppingItem) error {
	s.mu.Lock()
	currentList, current := s.findLocal(sc.ns, list.ID, snapshot.ID)
	s.mu.Unlock()
	item := snapshot
	if current != nil {
		item = *current
	}
	if currentList.ID != "" {
		list = currentList
	}

	listKey := s.remoteKey(sc.ns, list.ID, "")
	rid, err := s.remote.CreateItem(ctx, item, listKey, sc.userID)
	if errors.Is(err, remote.ErrNotFound) {
		s.logger.Info("list missing remotely, recreating", "list", list.ID)
		listKey, err = s.pushList(ctx, sc, list)
		if err != nil {
			return err
		}
		rid, err = s.remote.CreateItem(ctx, item, listKey, sc.userID)
	}
	if err != nil {
		return fmt.Errorf("create item %s: %w", item.ID, err)
	}
	s.recordRemoteID(sc.ns, list.ID, item.ID, rid)
	return nil
}

func (s *Service) createListOp(sc scope, list model.ShoppingList) syncqueue.Operation {
	return syncqueue.Operation{
		Name: "create-list " + list.ID,
		Run: func(ctx context.Context) error {
			_, err := s.pushList(ctx, sc, list)
			return err
		},
	}
}

func (s *Service) updateListOp(sc scope, list model.ShoppingList) syncqueue.Operation {
	patch := remote.ListPatch{Name: &list.Name, Archived: &list.Archived, UpdatedAt: list.UpdatedAt}
	return syncqueue.Operation{
		Name: "update-list " + list.ID,
		Run: func(ctx context.Context) error {
			key := s.remoteKey(sc.ns, list.ID, "")
			rid, err := s.remote.UpdateList(ctx, key, patch, sc.userID)
			if errors.Is(err, remote.ErrNotFound) {
				s.logger.Info("list missing remotely, inserting", "list", list.ID)
				_, err = s.pushList(ctx, sc, list)
				return err
			}
			if err != nil {
				return fmt.Errorf("update list %s: %w", list.ID, err)
			}
			s.recordRemoteID(sc.ns, list.ID, "", rid)
			return nil
		},
	}
}

func (s *Service) deleteListOp(sc scope, list model.ShoppingList) syncqueue.Operation {
	return syncqueue.Operation{
		Name: "delete-list " + list.ID,
		Run: func(ctx context.Context) error {
			key := s.remoteKey(sc.ns, list.ID, "")
			err := s.remote.DeleteList(ctx, key, sc.userID)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("delete list %s: %w", list.ID, err)
			}
			return nil
		},
	}
}

func (s *Service) createItemOp(sc scope, list model.ShoppingList, item model.ShoppingItem) syncqueue.Operation {
	return syncqueue.Operation{
		Name: "create-item " + item.ID,
		Run: func(ctx context.Context) error {
			return s.pushItem(ctx, sc, list, item)
		},
	}
}

// updateItemOp pushes every mutable field of item. A missing remote item is
// inserted instead.
func (s *Service) updateItemOp(sc scope, list model.ShoppingList, item model.ShoppingItem) syncqueue.Operation {
	patch := remote.PatchFromItem(item)
	return syncqueue.Operation{
		Name: "update-item " + item.ID,
		Run: func(ctx context.Context) error {
			key := s.remoteKey(sc.ns, list.ID, item.ID)
			err := s.remote.UpdateItem(ctx, key, patch, sc.userID)
			if errors.Is(err, remote.ErrNotFound) {
				s.logger.Info("item missing remotely, inserting", "item", item.ID)
				return s.pushItem(ctx, sc, list, item)
			}
			if err != nil {
				return fmt.Errorf("update item %s: %w", item.ID, err)
			}
			return nil
		},
	}
}

func (s *Service) deleteItemOp(sc scope, list model.ShoppingList, item model.ShoppingItem) syncqueue.Operation {
	return syncqueue.Operation{
		Name: "delete-item " + item.ID,
		Run: func(ctx context.Context) error {
			key := s.remoteKey(sc.ns, list.ID, item.ID)
			err := s.remote.DeleteItem(ctx, key, sc.userID)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("delete item %s: %w", item.ID, err)
			}
			return nil
		},
	}
}

func (s *Service) enqueuePlanLocked(plan *Plan) {
	sc := s.scopeLocked()
	byID := make(map[string]model.ShoppingList, len(plan.Lists))
	for _, l := range plan.Lists {
		byID[l.ID] = l
	}
	for _, id := range plan.Create {
		l, ok := byID[id]
		if !ok {
			continue
		}
		s.queue.Enqueue(s.createListOp(sc, l))
		for _, it := range l.Items {
			s.queue.Enqueue(s.createItemOp(sc, l, it))
		}
	}
	for _, id := range plan.Update {
		l, ok := byID[id]
		if !ok {
			continue
		}
		s.queue.Enqueue(s.updateListOp(sc, l))
		for _, it := range l.Items {
			s.queue.Enqueue(s.updateItemOp(sc, l, it))
		}
	}
}
