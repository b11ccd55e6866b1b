// Package remote defines the contract of the remote list/item document store
// and an HTTP client for the basket cloud service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/basket/internal/model"
)

// Error codes returned by the cloud service.
const (
	CodeUnavailable       = "unavailable"
	CodeResourceExhausted = "resource-exhausted"
	CodeDeadlineExceeded  = "deadline-exceeded"
	CodeInvalidArgument   = "invalid-argument"
	CodePermissionDenied  = "permission-denied"
	CodeNotFound          = "not-found"
	CodeInternal          = "internal"
)

// ErrNotFound reports that the targeted remote document does not exist.
var ErrNotFound = errors.New("remote: not found")

// Error is a failure reported by the remote store.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %d: %s", e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && (e.Status == http.StatusNotFound || e.Code == CodeNotFound)
}

// CodeForStatus picks the code for an HTTP status when the body carried none.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodePermissionDenied
	case http.StatusTooManyRequests:
		return CodeResourceExhausted
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return CodeDeadlineExceeded
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ListPatch carries the list fields to change. Nil fields are left alone.
type ListPatch struct {
	Name      *string `json:"name,omitempty"`
	Archived  *bool   `json:"archived,omitempty"`
	UpdatedAt int64   `json:"updated_at,omitempty"`
}

// ItemPatch carries the item fields to change. Nil fields are left alone.
type ItemPatch struct {
	Name      *string `json:"name,omitempty"`
	Quantity  *int    `json:"quantity,omitempty"`
	Category  *string `json:"category,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
	Position  *int    `json:"position,omitempty"`
	UpdatedAt int64   `json:"updated_at,omitempty"`
}

// PatchFromItem builds a patch that overwrites every mutable field.
func PatchFromItem(item model.ShoppingItem) ItemPatch {
	return ItemPatch{
		Name:      &item.Name,
		Quantity:  &item.Quantity,
		Category:  &item.Category,
		Completed: &item.Completed,
		PhotoURL:  &item.PhotoURL,
		Position:  &item.Position,
		UpdatedAt: item.UpdatedAt,
	}
}

// Store is the remote list/item collaborator. Update and delete methods take
// the remote key of the target and return an error matching ErrNotFound when
// it does not exist.
type Store interface {
	CreateList(ctx context.Context, list model.ShoppingList, userID string) (string, error)
	UpdateList(ctx context.Context, id string, patch ListPatch, userID string) (string, error)
	DeleteList(ctx context.Context, id string, userID string) error
	CreateItem(ctx context.Context, item model.ShoppingItem, listID string, userID string) (string, error)
	UpdateItem(ctx context.Context, id string, patch ItemPatch, userID string) error
	DeleteItem(ctx context.Context, id string, userID string) error
	ListAll(ctx context.Context, userID string) ([]model.ShoppingList, error)
}
