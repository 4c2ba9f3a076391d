// Package discount implements the discount variant family and the
// name-keyed registry that resolves a configured discount kind into a
// constructed catalog.Discount.
//
// The family is open for extension: a new variant implements
// catalog.Discount and registers a Factory under its kind tag.
package discount

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/conftix/ticket-engine/internal/catalog"
	"github.com/conftix/ticket-engine/internal/money"
)

// Supported discount kinds.
const (
	KindFixedPerTicket     = "fixed_per_ticket"
	KindFixedTotal         = "fixed_total"
	KindPercentage         = "percentage"
	KindFixedPerTicketType = "fixed_per_ticket_type"
)

var (
	// ErrInvalidConfiguration is returned when discount options are
	// malformed. Fatal at startup; the process must not start.
	ErrInvalidConfiguration = errors.New("discount: invalid discount configuration")

	// ErrUnknownKind is returned when no factory is registered for the
	// configured discount kind.
	ErrUnknownKind = errors.New("discount: unknown discount kind")
)

// Env is the immutable slice of configuration a discount factory needs.
// It is a finished snapshot, never a reference to a configuration still
// being built.
type Env struct {
	Currency string
	TaxRate  money.TaxRate
}

// Factory constructs a discount variant from its raw options.
type Factory func(options map[string]any, env Env) (catalog.Discount, error)

var registry = map[string]Factory{
	KindFixedPerTicket:     newFixedPerTicket,
	KindFixedTotal:         newFixedTotal,
	KindPercentage:         newPercentage,
	KindFixedPerTicketType: newFixedPerTicketType,
}

// New resolves kind against the registry and constructs the variant.
func New(kind string, options map[string]any, env Env) (catalog.Discount, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return factory(options, env)
}

// Kinds returns the registered discount kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// FixedPerTicket deducts a fixed amount per ticket in the basket,
// regardless of ticket type.
type FixedPerTicket struct {
	PerTicket money.Price
}

func newFixedPerTicket(options map[string]any, env Env) (catalog.Discount, error) {
	amount, err := intOption(options, "amount")
	if err != nil {
		return nil, err
	}
	return FixedPerTicket{
		PerTicket: money.FromNet(money.New(amount, env.Currency), env.TaxRate),
	}, nil
}

// Apply returns perTicketAmount × basket ticket count.
func (d FixedPerTicket) Apply(b catalog.Basket) (money.Price, error) {
	return d.PerTicket.Multiply(int64(b.TicketCount())), nil
}

// FixedTotal deducts a flat amount once per basket, however many tickets
// it holds. An empty basket gets no deduction.
type FixedTotal struct {
	Amount money.Price
}

func newFixedTotal(options map[string]any, env Env) (catalog.Discount, error) {
	amount, err := intOption(options, "amount")
	if err != nil {
		return nil, err
	}
	return FixedTotal{
		Amount: money.FromNet(money.New(amount, env.Currency), env.TaxRate),
	}, nil
}

func (d FixedTotal) Apply(b catalog.Basket) (money.Price, error) {
	if b.TicketCount() == 0 {
		return money.ZeroPrice(d.Amount.Currency(), d.Amount.Rate()), nil
	}
	return d.Amount, nil
}

// Percentage deducts a fraction of the basket's gross subtotal. The
// deduction is re-derived through FromGross so it carries a consistent
// net/tax split at the configured rate.
type Percentage struct {
	Fraction decimal.Decimal
	currency string
	rate     money.TaxRate
}

func newPercentage(options map[string]any, env Env) (catalog.Discount, error) {
	fraction, err := decimalOption(options, "rate")
	if err != nil {
		return nil, err
	}
	if fraction.IsNegative() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: rate must be within [0, 1], got %s", ErrInvalidConfiguration, fraction)
	}
	return Percentage{Fraction: fraction, currency: env.Currency, rate: env.TaxRate}, nil
}

func (d Percentage) Apply(b catalog.Basket) (money.Price, error) {
	subtotal, err := b.Subtotal(d.currency, d.rate)
	if err != nil {
		return money.Price{}, err
	}
	gross := decimal.NewFromInt(subtotal.Gross().Amount).Mul(d.Fraction).Round(0).IntPart()
	return money.FromGross(money.New(gross, d.currency), d.rate), nil
}

// FixedPerTicketType deducts a fixed amount per ticket of one named type,
// leaving other tickets in the basket untouched.
type FixedPerTicketType struct {
	TicketTypeID string
	PerTicket    money.Price
}

func newFixedPerTicketType(options map[string]any, env Env) (catalog.Discount, error) {
	ticketType, err := stringOption(options, "ticketType")
	if err != nil {
		return nil, err
	}
	amount, err := intOption(options, "amount")
	if err != nil {
		return nil, err
	}
	return FixedPerTicketType{
		TicketTypeID: ticketType,
		PerTicket:    money.FromNet(money.New(amount, env.Currency), env.TaxRate),
	}, nil
}

func (d FixedPerTicketType) Apply(b catalog.Basket) (money.Price, error) {
	return d.PerTicket.Multiply(int64(b.CountOf(d.TicketTypeID))), nil
}

// --- Option parsing ---
// Options arrive as generic JSON maps; numbers decode as float64 or
// json-decoded decimal strings depending on the caller.

func intOption(options map[string]any, key string) (int64, error) {
	raw, ok := options[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing option %q", ErrInvalidConfiguration, key)
	}
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: option %q must be an integer amount in minor units, got %v",
				ErrInvalidConfiguration, key, v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: option %q must be an integer, got %T", ErrInvalidConfiguration, key, raw)
	}
}

func decimalOption(options map[string]any, key string) (decimal.Decimal, error) {
	raw, ok := options[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: missing option %q", ErrInvalidConfiguration, key)
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: option %q: %v", ErrInvalidConfiguration, key, err)
		}
		return d, nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: option %q must be a number, got %T", ErrInvalidConfiguration, key, raw)
	}
}

func stringOption(options map[string]any, key string) (string, error) {
	raw, ok := options[key]
	if !ok {
		return "", fmt.Errorf("%w: missing option %q", ErrInvalidConfiguration, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: option %q must be a non-empty string", ErrInvalidConfiguration, key)
	}
	return s, nil
}
