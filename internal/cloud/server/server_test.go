package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukerupert/basket/internal/database"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/remote"
)

const testToken = "secret"

func newTestService(t *testing.T, rateLimit int) *httptest.Server {
	t.Helper()
	db, err := database.OpenCloud(filepath.Join(t.TempDir(), "cloud.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(db, testToken, rateLimit, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestService(t, 0)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := newTestService(t, 0)
	c := remote.NewClient(srv.URL, testToken)
	ctx := context.Background()

	list := model.ShoppingList{ID: "l1", Name: "Groceries", CreatedAt: 10, UpdatedAt: 10}
	listRID, err := c.CreateList(ctx, list, "alice")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	again, err := c.CreateList(ctx, list, "alice")
	if err != nil {
		t.Fatalf("retry create list: %v", err)
	}
	if again != listRID {
		t.Errorf("retried create returned %q, want %q", again, listRID)
	}

	item := model.ShoppingItem{ID: "i1", Name: "Milk", Quantity: 2, Category: "Dairy"}
	if _, err := c.CreateItem(ctx, item, "l1", "alice"); err != nil {
		t.Fatalf("create item: %v", err)
	}
	done := true
	if err := c.UpdateItem(ctx, "i1", remote.ItemPatch{Completed: &done, UpdatedAt: 20}, "alice"); err != nil {
		t.Fatalf("update item: %v", err)
	}
	name := "Weekly"
	if rid, err := c.UpdateList(ctx, "l1", remote.ListPatch{Name: &name, UpdatedAt: 30}, "alice"); err != nil || rid != listRID {
		t.Fatalf("update list: %q %v", rid, err)
	}

	lists, err := c.ListAll(ctx, "alice")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("expected 1 list, got %d", len(lists))
	}
	got := lists[0]
	if got.ID != "l1" || got.RemoteID != listRID || got.Name != "Weekly" || got.UpdatedAt != 30 {
		t.Errorf("unexpected list: %+v", got)
	}
	if len(got.Items) != 1 || !got.Items[0].Completed || got.Items[0].ID != "i1" || got.Items[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", got.Items)
	}

	if others, err := c.ListAll(ctx, "bob"); err != nil || len(others) != 0 {
		t.Errorf("bob sees %d lists (err %v)", len(others), err)
	}

	if err := c.DeleteItem(ctx, "i1", "alice"); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := c.DeleteList(ctx, listRID, "alice"); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	if err := c.DeleteList(ctx, listRID, "alice"); err != nil {
		t.Errorf("deleting a missing list: %v", err)
	}
}

func TestClientNotFound(t *testing.T) {
	srv := newTestService(t, 0)
	c := remote.NewClient(srv.URL, testToken)
	ctx := context.Background()

	name := "x"
	_, err := c.UpdateList(ctx, "missing", remote.ListPatch{Name: &name}, "alice")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("update list: expected not found, got %v", err)
	}
	if err := c.UpdateItem(ctx, "missing", remote.ItemPatch{Name: &name}, "alice"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("update item: expected not found, got %v", err)
	}
	_, err = c.CreateItem(ctx, model.ShoppingItem{ID: "i1", Name: "Milk"}, "missing", "alice")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("create item: expected not found, got %v", err)
	}
}

func TestAuthAndValidation(t *testing.T) {
	srv := newTestService(t, 0)

	tests := []struct {
		name     string
		token    string
		user     string
		body     string
		wantCode string
		status   int
	}{
		{"bad token", "wrong", "alice", `{"name":"A"}`, remote.CodePermissionDenied, http.StatusUnauthorized},
		{"missing user", testToken, "", `{"name":"A"}`, remote.CodeInvalidArgument, http.StatusBadRequest},
		{"empty name", testToken, "alice", `{"name":" "}`, remote.CodeInvalidArgument, http.StatusBadRequest},
		{"bad json", testToken, "alice", `{`, remote.CodeInvalidArgument, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/lists", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+tt.token)
			req.Header.Set(remote.UserHeader, tt.user)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var body remote.Error
			json.NewDecoder(resp.Body).Decode(&body)
			if body.Code != tt.wantCode || body.Message == "" {
				t.Errorf("body = %+v, want code %q", body, tt.wantCode)
			}
		})
	}
}

func TestRateLimitPerUser(t *testing.T) {
	srv := newTestService(t, 2)
	c := remote.NewClient(srv.URL, testToken)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.ListAll(ctx, "alice"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := c.ListAll(ctx, "alice")
	var remoteErr *remote.Error
	if !errors.As(err, &remoteErr) || remoteErr.Code != remote.CodeResourceExhausted || remoteErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected resource-exhausted, got %v", err)
	}

	if _, err := c.ListAll(ctx, "bob"); err != nil {
		t.Errorf("bob was limited by alice's requests: %v", err)
	}
}
