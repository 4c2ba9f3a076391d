// Package booking provides the purchase-flow business logic and HTTP
// handlers: basket pricing with discount codes, and the reservation
// lifecycle over limited ticket inventory.
package booking

import (
	"fmt"

	"github.com/conftix/ticket-engine/internal/catalog"
	"github.com/conftix/ticket-engine/internal/clock"
	"github.com/conftix/ticket-engine/internal/config"
	"github.com/conftix/ticket-engine/internal/money"
)

// Line is one basket selection: a ticket type and how many of it.
type Line struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// BasketRequest is the external shape of a basket: selected lines plus an
// optional discount code.
type BasketRequest struct {
	Tickets      []Line `json:"tickets"`
	DiscountCode string `json:"discount_code,omitempty"`
}

// Quote is the priced outcome of a basket: subtotal, discount deducted,
// and the clamped-at-zero total.
type Quote struct {
	Currency     string
	TicketCount  int
	Subtotal     money.Price
	Discount     money.Price
	Total        money.Price
	DiscountCode string // display name, empty when no code applied
}

// Pricer runs the deterministic basket pricing pipeline against an
// immutable configuration snapshot. Pure: no I/O, no hidden state; the
// current instant comes from the injected clock.
type Pricer struct {
	cfg *config.Config
	clk clock.Clock
}

// NewPricer creates a pricer over the given configuration.
func NewPricer(cfg *config.Config, clk clock.Clock) *Pricer {
	return &Pricer{cfg: cfg, clk: clk}
}

// Quote validates and prices a basket:
//
//  1. every line must reference a known ticket type inside its
//     availability window,
//  2. subtotal = Σ ticket price,
//  3. a present discount code must exist and be inside its window; its
//     discount is computed over the basket,
//  4. total = subtotal − discount, clamped at zero.
func (p *Pricer) Quote(req BasketRequest) (Quote, error) {
	now := p.clk.Now()

	basket, err := p.buildBasket(req)
	if err != nil {
		return Quote{}, err
	}

	subtotal, err := basket.Subtotal(p.cfg.Currency, p.cfg.TaxRate)
	if err != nil {
		return Quote{}, err
	}

	disc := money.ZeroPrice(p.cfg.Currency, p.cfg.TaxRate)
	discountName := ""
	if req.DiscountCode != "" {
		code, ok := p.cfg.DiscountCode(req.DiscountCode)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", catalog.ErrDiscountCodeNotFound, req.DiscountCode)
		}
		if !p.cfg.DiscountWindow(code.Code).Open(now) {
			return Quote{}, fmt.Errorf("%w: %q", catalog.ErrDiscountCodeExpired, code.Code)
		}
		basket.Code = &code
		disc, err = code.Discount.Apply(basket)
		if err != nil {
			return Quote{}, err
		}
		discountName = code.Name
	}

	total, err := subtotal.Subtract(disc)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Currency:     p.cfg.Currency,
		TicketCount:  basket.TicketCount(),
		Subtotal:     subtotal,
		Discount:     disc,
		Total:        total,
		DiscountCode: discountName,
	}, nil
}

// buildBasket resolves lines into catalogue entries, expanding quantities
// into the basket's ordered ticket sequence.
func (p *Pricer) buildBasket(req BasketRequest) (catalog.Basket, error) {
	now := p.clk.Now()
	var basket catalog.Basket

	for _, line := range req.Tickets {
		if line.Quantity <= 0 {
			return catalog.Basket{}, fmt.Errorf("%w: quantity %d for %q",
				ErrInvalidLine, line.Quantity, line.TicketTypeID)
		}
		tt, ok := p.cfg.TicketType(line.TicketTypeID)
		if !ok {
			return catalog.Basket{}, fmt.Errorf("%w: %q", catalog.ErrUnknownTicketType, line.TicketTypeID)
		}
		if !p.cfg.TicketWindow(tt.ID).Open(now) {
			return catalog.Basket{}, fmt.Errorf("%w: %q", catalog.ErrTicketUnavailable, tt.ID)
		}
		for i := 0; i < line.Quantity; i++ {
			basket.Tickets = append(basket.Tickets, tt)
		}
	}
	return basket, nil
}
