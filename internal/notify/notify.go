// Package notify displays and closes user alerts.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/dukerupert/basket/internal/websocket"
)

// Alert is one user-visible notification. Tag identifies it for Close and
// replaces an earlier alert with the same tag.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Dispatcher shows alerts on some surface.
type Dispatcher interface {
	// Permitted reports whether alerts can currently reach the user.
	Permitted(ctx context.Context) bool
	Show(ctx context.Context, a Alert) error
	Close(ctx context.Context, tag string) error
}

// HubDispatcher shows alerts in connected UIs.
type HubDispatcher struct {
	hub *websocket.Hub
}

func NewHubDispatcher(hub *websocket.Hub) *HubDispatcher {
	return &HubDispatcher{hub: hub}
}

func (d *HubDispatcher) Permitted(context.Context) bool {
	return d.hub.ClientCount() > 0
}

func (d *HubDispatcher) Show(_ context.Context, a Alert) error {
	d.hub.Broadcast(websocket.Message{
		Type: websocket.TypeAlertShow,
		Extra: map[string]any{
			"title": a.Title,
			"body":  a.Body,
			"tag":   a.Tag,
			"url":   a.URL,
		},
	})
	return nil
}

func (d *HubDispatcher) Close(_ context.Context, tag string) error {
	d.hub.Broadcast(websocket.Message{
		Type:  websocket.TypeAlertClose,
		Extra: map[string]any{"tag": tag},
	})
	return nil
}

// Multi fans out to several dispatchers. It is permitted when any of them
// is, and only permitted dispatchers are used.
type Multi []Dispatcher

func (m Multi) Permitted(ctx context.Context) bool {
	for _, d := range m {
		if d.Permitted(ctx) {
			return true
		}
	}
	return false
}

func (m Multi) Show(ctx context.Context, a Alert) error {
	var err error
	for _, d := range m {
		if d.Permitted(ctx) {
			err = multierr.Append(err, d.Show(ctx, a))
		}
	}
	return err
}

func (m Multi) Close(ctx context.Context, tag string) error {
	var err error
	for _, d := range m {
		err = multierr.Append(err, d.Close(ctx, tag))
	}
	return err
}
