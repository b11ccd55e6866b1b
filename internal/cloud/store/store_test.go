package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dukerupert/basket/internal/database"
	"github.com/dukerupert/basket/internal/remote"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenCloud(filepath.Join(t.TempDir(), "cloud.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func ptr[T any](v T) *T { return &v }

func TestCreateListUpsertsOnClientID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries", CreatedAt: 100, UpdatedAt: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" || first.ID == "l1" {
		t.Fatalf("expected server id, got %q", first.ID)
	}

	second, err := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Weekly", CreatedAt: 100, UpdatedAt: 200})
	if err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry created a new list: %q vs %q", second.ID, first.ID)
	}
	if second.Name != "Weekly" || second.UpdatedAt != 200 {
		t.Errorf("upsert did not overwrite: %+v", second)
	}

	// Same client id for another user is a different document.
	other, err := s.CreateList(ctx, "u2", remote.ListDoc{ClientID: "l1", Name: "Theirs"})
	if err != nil {
		t.Fatalf("create other user: %v", err)
	}
	if other.ID == first.ID {
		t.Error("users share a document")
	}

	lists, err := s.ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("expected 1 list for u1, got %d", len(lists))
	}
}

func TestCreateListWithoutClientID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, err := s.CreateList(ctx, "u1", remote.ListDoc{Name: "A"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateList(ctx, "u1", remote.ListDoc{Name: "B"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.ID == b.ID {
		t.Error("expected distinct lists")
	}
	if a.ClientID != a.ID {
		t.Errorf("client id = %q, want server id %q", a.ClientID, a.ID)
	}
	if a.CreatedAt == 0 || a.UpdatedAt != a.CreatedAt {
		t.Errorf("timestamps not defaulted: %+v", a)
	}
}

func TestUpdateListResolvesEitherID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	created, _ := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries"})

	tests := []struct {
		name string
		ref  string
	}{
		{"server id", created.ID},
		{"client id", "l1"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.UpdateList(ctx, "u1", tt.ref, remote.ListPatch{Archived: ptr(i == 0), UpdatedAt: int64(500 + i)})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got == nil {
				t.Fatal("expected list")
			}
			if got.ID != created.ID || got.Archived != (i == 0) || got.UpdatedAt != int64(500+i) {
				t.Errorf("unexpected list: %+v", got)
			}
			if got.Name != "Groceries" {
				t.Errorf("name changed to %q", got.Name)
			}
		})
	}
}

func TestUpdateListMissing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	created, _ := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries"})

	got, err := s.UpdateList(ctx, "u1", "nope", remote.ListPatch{Name: ptr("x")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}

	got, err = s.UpdateList(ctx, "u2", created.ID, remote.ListPatch{Name: ptr("x")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Error("another user's list was updated")
	}
}

func TestDeleteListCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	list, _ := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries"})
	item, err := s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "i1", Name: "Milk", Quantity: 1})
	if err != nil || item == nil {
		t.Fatalf("create item: %v %v", item, err)
	}

	if err := s.DeleteList(ctx, "u1", list.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteList(ctx, "u1", list.ID); err != nil {
		t.Errorf("deleting a missing list: %v", err)
	}
	if got, _ := s.UpdateItem(ctx, "u1", "i1", remote.ItemPatch{Name: ptr("x")}); got != nil {
		t.Error("item survived list deletion")
	}
	lists, _ := s.ListAll(ctx, "u1")
	if len(lists) != 0 {
		t.Errorf("expected no lists, got %d", len(lists))
	}
}

func TestCreateItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	list, _ := s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries"})

	got, err := s.CreateItem(ctx, "u1", "missing", remote.ItemDoc{ClientID: "i1", Name: "Milk"})
	if err != nil {
		t.Fatalf("create on missing list: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing list")
	}

	first, err := s.CreateItem(ctx, "u1", list.ID, remote.ItemDoc{ClientID: "i1", Name: "Milk", Quantity: 0, Category: "Dairy"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ListID != list.ID || first.Quantity != 1 {
		t.Errorf("unexpected item: %+v", first)
	}

	again, err := s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "i1", Name: "Oat milk", Quantity: 2, Position: 3})
	if err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if again.ID != first.ID || again.Name != "Oat milk" || again.Quantity != 2 || again.Position != 3 {
		t.Errorf("upsert mismatch: %+v", again)
	}
}

func TestUpdateAndDeleteItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "Groceries"})
	item, _ := s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "i1", Name: "Milk", Quantity: 1, Category: "Dairy"})

	got, err := s.UpdateItem(ctx, "u1", "i1", remote.ItemPatch{Completed: ptr(true), Position: ptr(4), UpdatedAt: 900})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got == nil || !got.Completed || got.Position != 4 || got.UpdatedAt != 900 {
		t.Fatalf("unexpected item: %+v", got)
	}
	if got.Name != "Milk" || got.Category != "Dairy" {
		t.Errorf("untouched fields changed: %+v", got)
	}

	if err := s.DeleteItem(ctx, "u1", item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteItem(ctx, "u1", item.ID); err != nil {
		t.Errorf("deleting a missing item: %v", err)
	}
	if got, _ := s.UpdateItem(ctx, "u1", item.ID, remote.ItemPatch{Name: ptr("x")}); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestListAllOrdersItems(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l1", Name: "A", CreatedAt: 1})
	s.CreateList(ctx, "u1", remote.ListDoc{ClientID: "l2", Name: "B", CreatedAt: 2})
	s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "c", Name: "Cheese", Position: 2})
	s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "a", Name: "Apples", Position: 0})
	s.CreateItem(ctx, "u1", "l1", remote.ItemDoc{ClientID: "b", Name: "Bread", Position: 1})

	lists, err := s.ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists) != 2 || lists[0].ClientID != "l1" || lists[1].ClientID != "l2" {
		t.Fatalf("unexpected lists: %+v", lists)
	}
	var names []string
	for _, it := range lists[0].Items {
		names = append(names, it.Name)
	}
	if len(names) != 3 || names[0] != "Apples" || names[1] != "Bread" || names[2] != "Cheese" {
		t.Errorf("items = %v", names)
	}
	if len(lists[1].Items) != 0 {
		t.Errorf("expected empty list, got %+v", lists[1].Items)
	}
}
