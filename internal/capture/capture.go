package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/shopping"
)

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindImage Kind = "image"
)

var ErrUnknownKind = errors.New("unknown capture kind")

// ParseKind validates a kind taken from a request path.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindText, KindVoice, KindImage:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Adder is the part of the mutation API a capture needs.
type Adder interface {
	AddItems(listID string, inputs []shopping.ItemInput) ([]model.ShoppingItem, error)
}

// Result describes one capture. Message is set when nothing was added.
type Result struct {
	Kind    Kind                 `json:"kind"`
	Items   []model.ShoppingItem `json:"items"`
	Message string               `json:"message,omitempty"`
}

type Capturer struct {
	adder      Adder
	extractors map[Kind]Extractor
	logger     *slog.Logger
}

// New creates a Capturer with the local text extractor registered.
func New(adder Adder, logger *slog.Logger) *Capturer {
	return &Capturer{
		adder:      adder,
		extractors: map[Kind]Extractor{KindText: TextExtractor{}},
		logger:     logger,
	}
}

// Register sets the extractor used for kind.
func (c *Capturer) Register(kind Kind, ex Extractor) {
	c.extractors[kind] = ex
}

// Capture extracts items from input and adds them to the list in one batch.
// Extraction failures are not errors: the result has no items and carries a
// message for the user. The returned error is a local mutation failure.
func (c *Capturer) Capture(ctx context.Context, kind Kind, listID string, input []byte) (Result, error) {
	res := Result{Kind: kind, Items: []model.ShoppingItem{}}

	ex, ok := c.extractors[kind]
	if !ok {
		res.Message = fmt.Sprintf("%s capture is not available", kind)
		return res, nil
	}

	extracted, err := ex.Extract(ctx, input)
	if err != nil {
		c.logger.Warn("extraction failed", "kind", kind, "error", err)
		extracted = nil
	}

	inputs := make([]shopping.ItemInput, 0, len(extracted))
	for _, e := range extracted {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		qty := e.Quantity
		if qty < 1 {
			qty = 1
		}
		inputs = append(inputs, shopping.ItemInput{Name: name, Quantity: qty})
	}
	if len(inputs) == 0 {
		res.Message = "No items found"
		return res, nil
	}

	items, err := c.adder.AddItems(listID, inputs)
	if err != nil {
		return res, err
	}
	res.Items = items
	c.logger.Info("items captured", "kind", kind, "list", listID, "count", len(items))
	return res, nil
}
