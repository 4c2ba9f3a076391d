// Package catalog defines the core domain types shared across the ticket
// engine: ticket types, discount codes, availability windows, and the
// purchaser's basket.
package catalog

import (
	"time"

	"github.com/conftix/ticket-engine/internal/money"
)

// TicketType is one catalogue entry. Immutable after configuration build.
// Supplementary tickets (workshop add-ons, dinners) do not require
// attendee details.
type TicketType struct {
	ID            string      `json:"id"`
	Price         money.Price `json:"-"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Supplementary bool        `json:"supplementary"`
}

// Discount computes the price reduction a discount grants over a basket.
// Implementations live in the discount package; the contract is shared here
// so DiscountCode can hold any variant without an import cycle.
type Discount interface {
	// Apply returns the Price to subtract from the basket subtotal.
	// Always non-negative and in the basket's currency and tax rate.
	Apply(b Basket) (money.Price, error)
}

// DiscountCode binds a user-entered code (case-sensitive) to a display
// name and a discount computation. Immutable.
type DiscountCode struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Discount Discount
}

// Window is an optional availability window attached to a catalogue entry
// (ticket or discount code). A nil bound is open-ended on that side.
type Window struct {
	From *time.Time `json:"availableFrom,omitempty"`
	To   *time.Time `json:"availableTo,omitempty"`
}

// Valid reports whether the window bounds are ordered (From ≤ To when
// both are set).
func (w Window) Valid() bool {
	if w.From == nil || w.To == nil {
		return true
	}
	return !w.From.After(*w.To)
}

// Open reports whether the entry is purchasable at the given instant.
func (w Window) Open(now time.Time) bool {
	if w.From != nil && now.Before(*w.From) {
		return false
	}
	if w.To != nil && now.After(*w.To) {
		return false
	}
	return true
}

// Basket is the purchaser's selection: an ordered sequence of tickets
// (one element per ticket, repeats allowed) plus an optional discount code.
type Basket struct {
	Tickets []TicketType
	Code    *DiscountCode
}

// TicketCount returns the number of tickets in the basket.
func (b Basket) TicketCount() int {
	return len(b.Tickets)
}

// CountOf returns how many tickets of one type the basket holds.
func (b Basket) CountOf(ticketTypeID string) int {
	n := 0
	for _, t := range b.Tickets {
		if t.ID == ticketTypeID {
			n++
		}
	}
	return n
}

// Subtotal sums the ticket prices. The zero value for an empty basket is
// expressed in the given currency and rate so downstream arithmetic stays
// currency-tagged.
func (b Basket) Subtotal(currency string, rate money.TaxRate) (money.Price, error) {
	subtotal := money.ZeroPrice(currency, rate)
	for _, t := range b.Tickets {
		sum, err := subtotal.Add(t.Price)
		if err != nil {
			return money.Price{}, err
		}
		subtotal = sum
	}
	return subtotal, nil
}
