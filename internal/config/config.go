// Package config builds the validated, cross-referenced catalogue from raw
// settings: ticket types, discount codes, availability windows, and initial
// inventory counts.
//
// Construction is two-phase: all ticket types are built first, then discount
// codes are resolved against a finished financial snapshot (currency + tax
// rate), so no discount factory ever sees a half-built configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conftix/ticket-engine/internal/catalog"
	"github.com/conftix/ticket-engine/internal/discount"
	"github.com/conftix/ticket-engine/internal/money"
)

// ErrInvalidConfiguration is returned for malformed settings: missing
// required fields, unknown discount kinds, inverted availability windows.
// Fatal at startup; the process must not start.
var ErrInvalidConfiguration = errors.New("config: invalid configuration")

// Defaults merged under the provided settings.
const (
	DefaultCurrency = "GBP"
)

// Settings is the raw, untyped shape consumed from a settings file.
type Settings struct {
	Tickets       map[string]TicketSettings   `json:"tickets"`
	DiscountCodes map[string]DiscountSettings `json:"discountCodes"`
	Financial     FinancialSettings           `json:"financial"`
}

// TicketSettings defines one ticket type. Cost is the net price in minor
// currency units.
type TicketSettings struct {
	Cost          *int64          `json:"cost"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Supplementary bool            `json:"supplementary,omitempty"`
	Available     *int            `json:"available"`
	Metadata      *WindowSettings `json:"metadata,omitempty"`
}

// DiscountSettings defines one discount code.
type DiscountSettings struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Options  map[string]any  `json:"options,omitempty"`
	Metadata *WindowSettings `json:"metadata,omitempty"`
}

// WindowSettings is an optional availability window, RFC 3339 timestamps.
type WindowSettings struct {
	AvailableFrom *time.Time `json:"availableFrom,omitempty"`
	AvailableTo   *time.Time `json:"availableTo,omitempty"`
}

// FinancialSettings carries currency, tax rate, and whether tax is shown
// separately in price displays.
type FinancialSettings struct {
	Currency   string          `json:"currency,omitempty"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	DisplayTax bool            `json:"displayTax,omitempty"`
}

// Config is the process-wide catalogue, read-only after construction.
type Config struct {
	Currency   string
	TaxRate    money.TaxRate
	DisplayTax bool

	TicketTypes      map[string]catalog.TicketType
	AvailableTickets map[string]int // initial counts, not live inventory
	DiscountCodes    map[string]catalog.DiscountCode
	TicketWindows    map[string]catalog.Window
	DiscountWindows  map[string]catalog.Window
}

// Load reads a JSON settings file and builds the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
	}
	return FromSettings(settings)
}

// FromSettings merges defaults and builds the catalogue. Ticket types are
// fully built before any discount code is resolved; discount factories
// receive only the finished financial snapshot.
func FromSettings(settings Settings) (*Config, error) {
	financial := settings.Financial
	if financial.Currency == "" {
		financial.Currency = DefaultCurrency
	}

	taxRate, err := money.NewTaxRate(financial.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("%w: financial.taxRate: %v", ErrInvalidConfiguration, err)
	}

	cfg := &Config{
		Currency:   financial.Currency,
		TaxRate:    taxRate,
		DisplayTax: financial.DisplayTax,

		TicketTypes:      make(map[string]catalog.TicketType, len(settings.Tickets)),
		AvailableTickets: make(map[string]int, len(settings.Tickets)),
		DiscountCodes:    make(map[string]catalog.DiscountCode, len(settings.DiscountCodes)),
		TicketWindows:    make(map[string]catalog.Window),
		DiscountWindows:  make(map[string]catalog.Window),
	}

	// Phase one: ticket types, counts, windows.
	for id, ts := range settings.Tickets {
		if err := cfg.buildTicket(id, ts); err != nil {
			return nil, err
		}
	}

	// Phase two: discount codes against the finished snapshot.
	env := discount.Env{Currency: cfg.Currency, TaxRate: cfg.TaxRate}
	for code, ds := range settings.DiscountCodes {
		if err := cfg.buildDiscountCode(code, ds, env); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) buildTicket(id string, ts TicketSettings) error {
	if id == "" {
		return fmt.Errorf("%w: tickets: empty ticket type identifier", ErrInvalidConfiguration)
	}
	if ts.Name == "" {
		return fmt.Errorf("%w: tickets.%s: missing name", ErrInvalidConfiguration, id)
	}
	if ts.Cost == nil {
		return fmt.Errorf("%w: tickets.%s: missing cost", ErrInvalidConfiguration, id)
	}
	if *ts.Cost < 0 {
		return fmt.Errorf("%w: tickets.%s: cost must not be negative", ErrInvalidConfiguration, id)
	}
	if ts.Available == nil {
		return fmt.Errorf("%w: tickets.%s: missing available", ErrInvalidConfiguration, id)
	}
	if *ts.Available < 0 {
		return fmt.Errorf("%w: tickets.%s: available must not be negative", ErrInvalidConfiguration, id)
	}

	window, err := buildWindow(ts.Metadata)
	if err != nil {
		return fmt.Errorf("%w: tickets.%s.metadata: %v", ErrInvalidConfiguration, id, err)
	}

	cfg.TicketTypes[id] = catalog.TicketType{
		ID:            id,
		Price:         money.FromNet(money.New(*ts.Cost, cfg.Currency), cfg.TaxRate),
		Name:          ts.Name,
		Description:   ts.Description,
		Supplementary: ts.Supplementary,
	}
	cfg.AvailableTickets[id] = *ts.Available
	cfg.TicketWindows[id] = window
	return nil
}

func (cfg *Config) buildDiscountCode(code string, ds DiscountSettings, env discount.Env) error {
	if code == "" {
		return fmt.Errorf("%w: discountCodes: empty code", ErrInvalidConfiguration)
	}
	if ds.Name == "" {
		return fmt.Errorf("%w: discountCodes.%s: missing name", ErrInvalidConfiguration, code)
	}
	if ds.Type == "" {
		return fmt.Errorf("%w: discountCodes.%s: missing type", ErrInvalidConfiguration, code)
	}

	d, err := discount.New(ds.Type, ds.Options, env)
	if err != nil {
		return fmt.Errorf("%w: discountCodes.%s: %v", ErrInvalidConfiguration, code, err)
	}

	window, err := buildWindow(ds.Metadata)
	if err != nil {
		return fmt.Errorf("%w: discountCodes.%s.metadata: %v", ErrInvalidConfiguration, code, err)
	}

	cfg.DiscountCodes[code] = catalog.DiscountCode{
		Code:     code,
		Name:     ds.Name,
		Discount: d,
	}
	cfg.DiscountWindows[code] = window
	return nil
}

func buildWindow(ws *WindowSettings) (catalog.Window, error) {
	if ws == nil {
		return catalog.Window{}, nil
	}
	w := catalog.Window{From: ws.AvailableFrom, To: ws.AvailableTo}
	if !w.Valid() {
		return catalog.Window{}, errors.New("availableFrom is after availableTo")
	}
	return w, nil
}

// TicketType looks up a catalogue entry by identifier.
func (cfg *Config) TicketType(id string) (catalog.TicketType, bool) {
	t, ok := cfg.TicketTypes[id]
	return t, ok
}

// DiscountCode looks up a discount code. The key is case-sensitive.
func (cfg *Config) DiscountCode(code string) (catalog.DiscountCode, bool) {
	c, ok := cfg.DiscountCodes[code]
	return c, ok
}

// TicketWindow returns the availability window for a ticket type. An entry
// without metadata has an unbounded window.
func (cfg *Config) TicketWindow(id string) catalog.Window {
	return cfg.TicketWindows[id]
}

// DiscountWindow returns the availability window for a discount code.
func (cfg *Config) DiscountWindow(code string) catalog.Window {
	return cfg.DiscountWindows[code]
}
