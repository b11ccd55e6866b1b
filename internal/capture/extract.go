// Package capture turns free text, voice recordings and photos into list
// items.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extracted is one item recognised in the input.
type Extracted struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
}

// Extractor recognises items in raw input.
type Extractor interface {
	Extract(ctx context.Context, input []byte) ([]Extracted, error)
}

// maxItems bounds how many items one capture can add.
const maxItems = 100

var (
	leadingQty  = regexp.MustCompile(`^(\d{1,3})\s*[x×]?\s+(.+)$`)
	trailingQty = regexp.MustCompile(`^(.+?)\s+[x×]\s*(\d{1,3})$`)
	bullet      = regexp.MustCompile(`^(?:[-*•]+\s*|\[[ xX]?\]\s*|\d+[.)]\s+)`)
)

// TextExtractor parses a typed or pasted list. Entries are separated by
// newlines, commas or semicolons; quantities may lead ("2 milk", "3x eggs")
// or trail ("eggs x12").
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, input []byte) ([]Extracted, error) {
	fields := strings.FieldsFunc(string(input), func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';'
	})

	var out []Extracted
	for _, f := range fields {
		e, ok := parseEntry(f)
		if !ok {
			continue
		}
		out = append(out, e)
		if len(out) == maxItems {
			break
		}
	}
	return out, nil
}

func parseEntry(s string) (Extracted, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(bullet.ReplaceAllString(s, ""))
	if s == "" {
		return Extracted{}, false
	}

	e := Extracted{Name: s}
	if m := leadingQty.FindStringSubmatch(s); m != nil {
		e.Name = m[2]
		e.Quantity, _ = strconv.Atoi(m[1])
	} else if m := trailingQty.FindStringSubmatch(s); m != nil {
		e.Name = m[1]
		e.Quantity, _ = strconv.Atoi(m[2])
	}
	e.Name = strings.Join(strings.Fields(e.Name), " ")
	if e.Name == "" {
		return Extracted{}, false
	}
	return e, true
}

// HTTPExtractor forwards the raw input to an external recognition service
// and expects {"items": [{"name": ..., "quantity": ...}]} back.
type HTTPExtractor struct {
	client      *http.Client
	url         string
	contentType string
}

// NewHTTPExtractor creates an extractor posting to url with the given
// content type.
func NewHTTPExtractor(url, contentType string) *HTTPExtractor {
	return &HTTPExtractor{
		client:      &http.Client{Timeout: 30 * time.Second},
		url:         url,
		contentType: contentType,
	}
}

type extractResponse struct {
	Items []Extracted `json:"items"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, input []byte) ([]Extracted, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", e.contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extract service returned status %d", resp.StatusCode)
	}

	var body extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	if len(body.Items) > maxItems {
		body.Items = body.Items[:maxItems]
	}
	return body.Items, nil
}
