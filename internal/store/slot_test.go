package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/basket/internal/database"
	"github.com/dukerupert/basket/internal/model"
)

func openDB(t *testing.T) *SlotStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "basket.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSlotStore(db)
}

func TestSlotGetMissing(t *testing.T) {
	ss := openDB(t)
	value, ok, err := ss.Get(context.Background(), "basket:guest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || value != nil {
		t.Errorf("expected missing slot, got ok=%v value=%q", ok, value)
	}
}

func TestSlotPutOverwrite(t *testing.T) {
	ss := openDB(t)
	ctx := context.Background()

	if err := ss.Put(ctx, "basket:guest", []byte(`[1]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ss.Put(ctx, "basket:guest", []byte(`[2]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := ss.Get(ctx, "basket:guest")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(value) != `[2]` {
		t.Errorf("value = %q, want %q", value, `[2]`)
	}
}

func TestSlotNamespacesAreIndependent(t *testing.T) {
	ss := openDB(t)
	ctx := context.Background()

	ss.Put(ctx, "basket:guest", []byte(`"guest"`))
	ss.Put(ctx, "basket:user:u1", []byte(`"user"`))

	names, err := ss.Namespaces(ctx)
	if err != nil {
		t.Fatalf("namespaces: %v", err)
	}
	if len(names) != 2 || names[0] != "basket:guest" || names[1] != "basket:user:u1" {
		t.Errorf("namespaces = %v", names)
	}

	if err := ss.Delete(ctx, "basket:guest"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := ss.Get(ctx, "basket:user:u1"); !ok {
		t.Error("deleting guest slot removed user slot")
	}
}

func TestNotificationLog(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "basket.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()
	nl := NewNotificationLogStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	records := []model.NotificationRecord{
		{StoreKey: "aldi|main-st", ListIDs: []string{"l1"}, FiredAt: now.Add(-25 * time.Hour)},
		{StoreKey: "aldi|main-st", ListIDs: []string{"l1", "l2"}, FiredAt: now.Add(-time.Hour)},
		{StoreKey: "lidl|", FiredAt: now},
	}
	for _, rec := range records {
		if err := nl.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := nl.Since(ctx, "aldi|main-st", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 recent record, got %d", len(got))
	}
	if len(got[0].ListIDs) != 2 || got[0].ListIDs[1] != "l2" {
		t.Errorf("list ids = %v, want [l1 l2]", got[0].ListIDs)
	}
	if !got[0].FiredAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("fired_at = %v, want %v", got[0].FiredAt, now.Add(-time.Hour))
	}

	removed, err := nl.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d, want 1", removed)
	}

	lidl, _ := nl.Since(ctx, "lidl|", now.Add(-time.Minute))
	if len(lidl) != 1 || len(lidl[0].ListIDs) != 0 {
		t.Errorf("lidl records = %+v, want one record with no list ids", lidl)
	}
}

func TestSupermarketCRUD(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "basket.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()
	sms := NewSupermarketStore(db)
	ctx := context.Background()

	lat, lon := 52.52, 13.405
	withCoords, err := sms.Create(ctx, "Rewe", "Alexanderplatz 1", &lat, &lon)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !withCoords.HasCoordinates() || *withCoords.Latitude != lat {
		t.Errorf("coordinates not stored: %+v", withCoords)
	}

	noCoords, err := sms.Create(ctx, "Aldi", "", nil, nil)
	if err != nil {
		t.Fatalf("create without coordinates: %v", err)
	}
	if noCoords.HasCoordinates() {
		t.Error("expected nil coordinates")
	}

	all, err := sms.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Aldi" {
		t.Errorf("list = %+v, want Aldi first", all)
	}

	if err := sms.Delete(ctx, noCoords.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := sms.GetByID(ctx, noCoords.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
