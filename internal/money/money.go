// Package money implements exact monetary arithmetic for ticket pricing:
// currency-tagged amounts in integer minor units, tax rates, and the
// net/gross/tax price triple.
//
// Amounts are int64 minor units (pence, cents), never float64 for money.
// Tax conversion goes through shopspring/decimal and rounds half up on
// minor units.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when two amounts in different
	// currencies meet in one operation. Always a programming or
	// configuration error, never user-recoverable.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")

	// ErrNegativeTaxRate is returned when constructing a TaxRate below zero.
	ErrNegativeTaxRate = errors.New("money: tax rate must not be negative")
)

// Money is an exact amount in integer minor units of one currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New creates an amount in minor units of the given ISO currency code.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// Add returns m + other. Fails with ErrCurrencyMismatch across currencies.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. Fails with ErrCurrencyMismatch across currencies.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Multiply returns m scaled by an integer factor.
func (m Money) Multiply(factor int64) Money {
	return Money{Amount: m.Amount * factor, Currency: m.Currency}
}

// Equal reports whether two amounts are the same value in the same currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount == other.Amount
}

// Cmp compares two amounts: -1 if m < other, 0 if equal, +1 if m > other.
// Fails with ErrCurrencyMismatch across currencies.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// TaxRate is a decimal tax fraction, e.g. 0.20 for 20% VAT.
type TaxRate struct {
	rate decimal.Decimal
}

// NewTaxRate validates and wraps a tax fraction.
func NewTaxRate(rate decimal.Decimal) (TaxRate, error) {
	if rate.IsNegative() {
		return TaxRate{}, fmt.Errorf("%w: %s", ErrNegativeTaxRate, rate)
	}
	return TaxRate{rate: rate}, nil
}

// MustTaxRate is NewTaxRate for constants known valid at compile time.
// Panics on a negative rate.
func MustTaxRate(rate decimal.Decimal) TaxRate {
	r, err := NewTaxRate(rate)
	if err != nil {
		panic(err)
	}
	return r
}

// ZeroRate is the 0% tax rate.
func ZeroRate() TaxRate {
	return TaxRate{rate: decimal.Zero}
}

// Rate returns the underlying decimal fraction.
func (r TaxRate) Rate() decimal.Decimal {
	return r.rate
}

// TaxOn computes the tax due on a net amount: roundHalfUp(net × rate).
func (r TaxRate) TaxOn(net Money) Money {
	tax := decimal.NewFromInt(net.Amount).Mul(r.rate)
	return Money{Amount: roundHalfUp(tax), Currency: net.Currency}
}

// NetFrom derives the net amount contained in a gross amount:
// roundHalfUp(gross / (1 + rate)).
func (r TaxRate) NetFrom(gross Money) Money {
	divisor := decimal.NewFromInt(1).Add(r.rate)
	net := decimal.NewFromInt(gross.Amount).Div(divisor)
	return Money{Amount: roundHalfUp(net), Currency: gross.Currency}
}

func (r TaxRate) String() string {
	return r.rate.String()
}

// roundHalfUp rounds to whole minor units, half away from zero. All amounts
// in this engine are non-negative after clamping, so this is round-half-up.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
