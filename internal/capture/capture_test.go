package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/shopping"
)

func TestTextExtractor(t *testing.T) {
	tests := []struct {
		input string
		want  []Extracted
	}{
		{"milk", []Extracted{{Name: "milk"}}},
		{"2 milk", []Extracted{{Name: "milk", Quantity: 2}}},
		{"3x eggs", []Extracted{{Name: "eggs", Quantity: 3}}},
		{"eggs x12", []Extracted{{Name: "eggs", Quantity: 12}}},
		{"bread, butter;  jam ", []Extracted{{Name: "bread"}, {Name: "butter"}, {Name: "jam"}}},
		{"- apples\n* 4 pears\n[ ] oat   milk", []Extracted{{Name: "apples"}, {Name: "pears", Quantity: 4}, {Name: "oat milk"}}},
		{"1. flour\n2) sugar", []Extracted{{Name: "flour"}, {Name: "sugar"}}},
		{"7up", []Extracted{{Name: "7up"}}},
		{"box", []Extracted{{Name: "box"}}},
		{" ,\n\n;", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := TextExtractor{}.Extract(context.Background(), []byte(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHTTPExtractor(t *testing.T) {
	var gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"items":[{"name":"Milk","quantity":2},{"name":"Bread"}]}`))
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL, "audio/webm")
	got, err := ex.Extract(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if gotType != "audio/webm" || string(gotBody) != "audio-bytes" {
		t.Errorf("request = %q %q", gotType, gotBody)
	}
	if len(got) != 2 || got[0] != (Extracted{Name: "Milk", Quantity: 2}) || got[1].Name != "Bread" {
		t.Errorf("items = %+v", got)
	}
}

func TestHTTPExtractorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPExtractor(srv.URL, "image/jpeg").Extract(context.Background(), nil); err == nil {
		t.Error("expected error for non-200 status")
	}
}

type recordingAdder struct {
	listID string
	inputs []shopping.ItemInput
	err    error
}

func (a *recordingAdder) AddItems(listID string, inputs []shopping.ItemInput) ([]model.ShoppingItem, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.listID, a.inputs = listID, inputs
	items := make([]model.ShoppingItem, len(inputs))
	for i, in := range inputs {
		items[i] = model.ShoppingItem{ID: in.Name, Name: in.Name, Quantity: in.Quantity}
	}
	return items, nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, []byte) ([]Extracted, error) {
	return nil, errors.New("recognition offline")
}

type fixedExtractor []Extracted

func (f fixedExtractor) Extract(context.Context, []byte) ([]Extracted, error) {
	return f, nil
}

func TestCaptureAddsBatch(t *testing.T) {
	adder := &recordingAdder{}
	c := New(adder, slog.Default())

	res, err := c.Capture(context.Background(), KindText, "L1", []byte("2 milk, bread"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Message != "" {
		t.Errorf("result = %+v", res)
	}
	if adder.listID != "L1" || len(adder.inputs) != 2 {
		t.Fatalf("adder got %q %+v", adder.listID, adder.inputs)
	}
	if adder.inputs[0].Quantity != 2 || adder.inputs[1].Quantity != 1 {
		t.Errorf("quantities = %d, %d", adder.inputs[0].Quantity, adder.inputs[1].Quantity)
	}
}

func TestCaptureZeroItems(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		ex   Extractor
	}{
		{"extractor fails", KindVoice, failingExtractor{}},
		{"nothing recognised", KindImage, fixedExtractor{{Name: "  "}}},
		{"kind not configured", KindVoice, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adder := &recordingAdder{}
			c := New(adder, slog.Default())
			if tt.ex != nil {
				c.Register(tt.kind, tt.ex)
			}
			res, err := c.Capture(context.Background(), tt.kind, "L1", []byte("x"))
			if err != nil {
				t.Fatalf("capture returned error: %v", err)
			}
			if len(res.Items) != 0 || res.Message == "" {
				t.Errorf("result = %+v, want zero items with a message", res)
			}
			if adder.inputs != nil {
				t.Error("adder called with nothing to add")
			}
		})
	}
}

func TestCaptureLocalFailure(t *testing.T) {
	c := New(&recordingAdder{err: shopping.ErrListNotFound}, slog.Default())
	_, err := c.Capture(context.Background(), KindText, "missing", []byte("milk"))
	if !errors.Is(err, shopping.ErrListNotFound) {
		t.Errorf("err = %v, want ErrListNotFound", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Voice"); err != nil || k != KindVoice {
		t.Errorf("ParseKind(Voice) = %q, %v", k, err)
	}
	if _, err := ParseKind("video"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(video) err = %v", err)
	}
}
