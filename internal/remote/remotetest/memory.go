// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/remote"
)

// Call records one invocation of the store.
type Call struct {
	Method string
	ID     string
	UserID string
}

// Memory mimics the cloud service: creates upsert on the client id, update
// and delete resolve targets by remote id or client id, and deleting a
// missing document succeeds.
type Memory struct {
	mu     sync.Mutex
	lists  map[string]*remote.ListDoc // by remote id
	items  map[string]*remote.ItemDoc // by remote id
	owners map[string]string          // remote id -> user id
	seq    int
	calls  []Call
	faults map[string][]error
	hook   func(Call)
}

func NewMemory() *Memory {
	return &Memory{
		lists:  make(map[string]*remote.ListDoc),
		items:  make(map[string]*remote.ItemDoc),
		owners: make(map[string]string),
		faults: make(map[string][]error),
	}
}

var _ remote.Store = (*Memory)(nil)

// Fail makes the next len(errs) calls of method return errs in order.
func (m *Memory) Fail(method string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[method] = append(m.faults[method], errs...)
}

// OnCall registers a hook invoked, without the store lock, on every call.
func (m *Memory) OnCall(fn func(Call)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Calls returns the invocations so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method was invoked.
func (m *Memory) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Seed stores a list as if the given user had created it elsewhere.
func (m *Memory) Seed(userID string, list model.ShoppingList) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := remote.ListDocFrom(list)
	doc.ID = m.nextID("list")
	m.lists[doc.ID] = &doc
	m.owners[doc.ID] = userID
	for _, it := range list.Items {
		itemDoc := remote.ItemDocFrom(it)
		itemDoc.ID = m.nextID("item")
		itemDoc.ListID = doc.ID
		m.items[itemDoc.ID] = &itemDoc
		m.owners[itemDoc.ID] = userID
	}
	return doc.ID
}

// Lists returns the stored lists of userID with their items.
func (m *Memory) Lists(userID string) []model.ShoppingList {
	lists, _ := m.collect(userID)
	return lists
}

func (m *Memory) begin(method, id, userID string) error {
	m.mu.Lock()
	call := Call{Method: method, ID: id, UserID: userID}
	m.calls = append(m.calls, call)
	hook := m.hook
	var err error
	if queued := m.faults[method]; len(queued) > 0 {
		err = queued[0]
		m.faults[method] = queued[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return err
}

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *Memory) findList(id, userID string) *remote.ListDoc {
	if doc, ok := m.lists[id]; ok && m.owners[id] == userID {
		return doc
	}
	for rid, doc := range m.lists {
		if doc.ClientID == id && m.owners[rid] == userID {
			return doc
		}
	}
	return nil
}

func (m *Memory) findItem(id, userID string) *remote.ItemDoc {
	if doc, ok := m.items[id]; ok && m.owners[id] == userID {
		return doc
	}
	for rid, doc := range m.items {
		if doc.ClientID == id && m.owners[rid] == userID {
			return doc
		}
	}
	return nil
}

func notFound(kind, id string) error {
	return &remote.Error{Status: 404, Code: remote.CodeNotFound, Message: kind + " " + id + " not found"}
}

func (m *Memory) CreateList(_ context.Context, list model.ShoppingList, userID string) (string, error) {
	if err := m.begin("CreateList", list.ID, userID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.findList(list.ID, userID); existing != nil && list.ID != "" {
		existing.Name = list.Name
		existing.Archived = list.Archived
		existing.UpdatedAt = list.UpdatedAt
		return existing.ID, nil
	}
	doc := remote.ListDocFrom(list)
	doc.ID = m.nextID("list")
	m.lists[doc.ID] = &doc
	m.owners[doc.ID] = userID
	return doc.ID, nil
}

func (m *Memory) UpdateList(_ context.Context, id string, patch remote.ListPatch, userID string) (string, error) {
	if err := m.begin("UpdateList", id, userID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.findList(id, userID)
	if doc == nil {
		return "", notFound("list", id)
	}
	if patch.Name != nil {
		doc.Name = *patch.Name
	}
	if patch.Archived != nil {
		doc.Archived = *patch.Archived
	}
	if patch.UpdatedAt != 0 {
		doc.UpdatedAt = patch.UpdatedAt
	}
	return doc.ID, nil
}

func (m *Memory) DeleteList(_ context.Context, id string, userID string) error {
	if err := m.begin("DeleteList", id, userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.findList(id, userID)
	if doc == nil {
		return nil
	}
	for rid, it := range m.items {
		if it.ListID == doc.ID {
			delete(m.items, rid)
			delete(m.owners, rid)
		}
	}
	delete(m.lists, doc.ID)
	delete(m.owners, doc.ID)
	return nil
}

func (m *Memory) CreateItem(_ context.Context, item model.ShoppingItem, listID string, userID string) (string, error) {
	if err := m.begin("CreateItem", item.ID, userID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.findList(listID, userID)
	if list == nil {
		return "", notFound("list", listID)
	}
	if existing := m.findItem(item.ID, userID); existing != nil && item.ID != "" {
		id := existing.ID
		*existing = remote.ItemDocFrom(item)
		existing.ID = id
		existing.ListID = list.ID
		return id, nil
	}
	doc := remote.ItemDocFrom(item)
	doc.ID = m.nextID("item")
	doc.ListID = list.ID
	m.items[doc.ID] = &doc
	m.owners[doc.ID] = userID
	return doc.ID, nil
}

func (m *Memory) UpdateItem(_ context.Context, id string, patch remote.ItemPatch, userID string) error {
	if err := m.begin("UpdateItem", id, userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.findItem(id, userID)
	if doc == nil {
		return notFound("item", id)
	}
	if patch.Name != nil {
		doc.Name = *patch.Name
	}
	if patch.Quantity != nil {
		doc.Quantity = *patch.Quantity
	}
	if patch.Category != nil {
		doc.Category = *patch.Category
	}
	if patch.Completed != nil {
		doc.Completed = *patch.Completed
	}
	if patch.PhotoURL != nil {
		doc.PhotoURL = *patch.PhotoURL
	}
	if patch.Position != nil {
		doc.Position = *patch.Position
	}
	if patch.UpdatedAt != 0 {
		doc.UpdatedAt = patch.UpdatedAt
	}
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, id string, userID string) error {
	if err := m.begin("DeleteItem", id, userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc := m.findItem(id, userID); doc != nil {
		delete(m.items, doc.ID)
		delete(m.owners, doc.ID)
	}
	return nil
}

func (m *Memory) ListAll(_ context.Context, userID string) ([]model.ShoppingList, error) {
	if err := m.begin("ListAll", "", userID); err != nil {
		return nil, err
	}
	return m.collect(userID)
}

func (m *Memory) collect(userID string) ([]model.ShoppingList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []remote.ListDoc
	for rid, doc := range m.lists {
		if m.owners[rid] != userID {
			continue
		}
		d := *doc
		d.Items = nil
		for iid, it := range m.items {
			if it.ListID == rid && m.owners[iid] == userID {
				d.Items = append(d.Items, *it)
			}
		}
		sort.Slice(d.Items, func(i, j int) bool { return d.Items[i].Position < d.Items[j].Position })
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	lists := make([]model.ShoppingList, 0, len(docs))
	for _, d := range docs {
		lists = append(lists, d.Model())
	}
	return lists, nil
}
