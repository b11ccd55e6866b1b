package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/multierr"

	"github.com/dukerupert/basket/internal/model"
)

// ErrExpired is returned when a push subscription is gone (410).
var ErrExpired = errors.New("push subscription expired")

// Subscriptions is the push subscription storage WebPush reads from.
type Subscriptions interface {
	List(ctx context.Context) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type pushPayload struct {
	Type  string `json:"type"` // "show" or "close"
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

type sendFunc func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// WebPush delivers alerts to every registered push subscription. The
// service worker on the device shows or closes the notification.
type WebPush struct {
	subs       Subscriptions
	publicKey  string
	privateKey string
	subscriber string
	send       sendFunc
	logger     *slog.Logger
}

func NewWebPush(subs Subscriptions, publicKey, privateKey string, logger *slog.Logger) *WebPush {
	return &WebPush{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: "mailto:noreply@basket.local",
		send:       webpush.SendNotification,
		logger:     logger,
	}
}

// VAPIDPublicKey returns the key browsers subscribe with.
func (p *WebPush) VAPIDPublicKey() string {
	return p.publicKey
}

// Configured reports whether VAPID keys are set.
func (p *WebPush) Configured() bool {
	return p.publicKey != "" && p.privateKey != ""
}

func (p *WebPush) Permitted(ctx context.Context) bool {
	if !p.Configured() {
		return false
	}
	subs, err := p.subs.List(ctx)
	if err != nil {
		p.logger.Warn("list push subscriptions", "error", err)
		return false
	}
	return len(subs) > 0
}

func (p *WebPush) Show(ctx context.Context, a Alert) error {
	return p.broadcast(ctx, pushPayload{Type: "show", Title: a.Title, Body: a.Body, Tag: a.Tag, URL: a.URL})
}

func (p *WebPush) Close(ctx context.Context, tag string) error {
	return p.broadcast(ctx, pushPayload{Type: "close", Tag: tag})
}

func (p *WebPush) broadcast(ctx context.Context, payload pushPayload) error {
	if !p.Configured() {
		return nil
	}
	subs, err := p.subs.List(ctx)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var errs error
	for i := range subs {
		sub := &subs[i]
		err := p.sendOne(data, sub)
		if errors.Is(err, ErrExpired) {
			p.logger.Info("removing expired push subscription", "device", sub.DeviceName)
			if err := p.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("delete expired subscription: %w", err))
			}
			continue
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (p *WebPush) sendOne(data []byte, sub *model.PushSubscription) error {
	resp, err := p.send(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		Subscriber:      p.subscriber,
		TTL:             300,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys creates a P-256 key pair encoded for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))
	return publicKey, privateKey, nil
}
