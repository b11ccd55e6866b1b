package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/basket/internal/model"
)

func TestErrorIsNotFound(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{&Error{Status: 404}, true},
		{&Error{Status: 400, Code: CodeNotFound}, true},
		{&Error{Status: 403, Code: CodePermissionDenied}, false},
		{&Error{Status: 503, Code: CodeUnavailable}, false},
	}
	for _, tt := range tests {
		if got := errors.Is(tt.err, ErrNotFound); got != tt.want {
			t.Errorf("errors.Is(%v, ErrNotFound) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClientSendsAuthAndUser(t *testing.T) {
	var gotAuth, gotUser string
	var gotBody ListDoc
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get(UserHeader)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ListDoc{ID: "r-1", ClientID: gotBody.ClientID, Name: gotBody.Name})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "secret")
	id, err := c.CreateList(context.Background(), model.ShoppingList{ID: "l1", Name: "Weekly"}, "u1")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if id != "r-1" {
		t.Errorf("remote id = %q, want r-1", id)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotUser != "u1" {
		t.Errorf("user header = %q, want u1", gotUser)
	}
	if gotBody.ClientID != "l1" || gotBody.Name != "Weekly" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		notFound bool
	}{
		{"json body", http.StatusForbidden, `{"error":"nope","code":"permission-denied"}`, CodePermissionDenied, false},
		{"plain 404", http.StatusNotFound, "missing\n", CodeNotFound, true},
		{"rate limited", http.StatusTooManyRequests, "", CodeResourceExhausted, false},
		{"bad gateway", http.StatusBadGateway, "", CodeUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL, "").UpdateItem(context.Background(), "i1", ItemPatch{}, "u1")
			var remoteErr *Error
			if !errors.As(err, &remoteErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if remoteErr.Status != tt.status || remoteErr.Code != tt.wantCode {
				t.Errorf("error = %+v, want status %d code %s", remoteErr, tt.status, tt.wantCode)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("not found = %v, want %v", !tt.notFound, tt.notFound)
			}
		})
	}
}

func TestClientListAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/lists" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]ListDoc{
			{ID: "r-1", ClientID: "l1", Name: "Weekly", UpdatedAt: 5, Items: []ItemDoc{
				{ID: "r-i1", ClientID: "i1", Name: "Milk", Quantity: 2},
			}},
			{ID: "r-2", Name: "Made elsewhere"},
		})
	}))
	defer server.Close()

	lists, err := NewClient(server.URL, "").ListAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("lists = %d, want 2", len(lists))
	}
	if lists[0].ID != "l1" || lists[0].RemoteID != "r-1" {
		t.Errorf("first list ids = %q/%q", lists[0].ID, lists[0].RemoteID)
	}
	if it := lists[0].Items[0]; it.ID != "i1" || it.RemoteID != "r-i1" || it.Quantity != 2 {
		t.Errorf("item = %+v", it)
	}
	if lists[1].ID != "r-2" {
		t.Errorf("list without client id got id %q, want remote id", lists[1].ID)
	}
}

func TestClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewClient(url, "").DeleteList(context.Background(), "l1", "u1")
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		t.Errorf("transport failure reported as remote error %+v", remoteErr)
	}
}
