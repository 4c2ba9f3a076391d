package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conftix/ticket-engine/internal/money"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestWindow_Open(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		w    Window
		open bool
	}{
		{"unbounded", Window{}, true},
		{"inside both bounds", Window{From: ts("2025-06-01T00:00:00Z"), To: ts("2025-06-30T00:00:00Z")}, true},
		{"before from", Window{From: ts("2025-07-01T00:00:00Z")}, false},
		{"after to", Window{To: ts("2025-06-01T00:00:00Z")}, false},
		{"open-ended from, passed", Window{From: ts("2025-01-01T00:00:00Z")}, true},
		{"open-ended to, not reached", Window{To: ts("2025-12-31T00:00:00Z")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Open(now); got != tt.open {
				t.Errorf("Open(%v) = %v, expected %v", now, got, tt.open)
			}
		})
	}
}

func TestWindow_Valid(t *testing.T) {
	if (Window{From: ts("2025-06-30T00:00:00Z"), To: ts("2025-06-01T00:00:00Z")}).Valid() {
		t.Error("expected inverted window to be invalid")
	}
	if !(Window{From: ts("2025-06-01T00:00:00Z"), To: ts("2025-06-01T00:00:00Z")}).Valid() {
		t.Error("expected equal bounds to be valid")
	}
}

func TestBasket_Subtotal(t *testing.T) {
	rate := money.MustTaxRate(decimal.NewFromFloat(0.20))
	standard := TicketType{ID: "standard", Price: money.FromNet(money.New(1000, "GBP"), rate)}
	dinner := TicketType{ID: "dinner", Price: money.FromNet(money.New(500, "GBP"), rate), Supplementary: true}

	b := Basket{Tickets: []TicketType{standard, standard, dinner}}
	subtotal, err := b.Subtotal("GBP", rate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subtotal.Net().Amount != 2500 || subtotal.Gross().Amount != 3000 {
		t.Errorf("expected 2500/3000, got %d/%d", subtotal.Net().Amount, subtotal.Gross().Amount)
	}
	if b.TicketCount() != 3 {
		t.Errorf("expected 3 tickets, got %d", b.TicketCount())
	}
	if b.CountOf("standard") != 2 {
		t.Errorf("expected 2 standard tickets, got %d", b.CountOf("standard"))
	}
}

func TestBasket_SubtotalEmpty(t *testing.T) {
	subtotal, err := Basket{}.Subtotal("GBP", money.ZeroRate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !subtotal.IsZero() {
		t.Errorf("expected zero subtotal, got %s", subtotal)
	}
	if subtotal.Currency() != "GBP" {
		t.Errorf("expected GBP currency tag, got %s", subtotal.Currency())
	}
}
