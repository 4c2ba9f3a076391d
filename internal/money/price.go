package money

// Price is a consistent (net, gross, tax) triple for one tax rate.
// Construct only via FromNet or FromGross, never by assigning the three
// amounts directly, so that gross = net + tax always holds.
type Price struct {
	net   Money
	gross Money
	tax   Money
	rate  TaxRate
}

// FromNet builds a Price from a net amount: tax = roundHalfUp(net × rate),
// gross = net + tax.
func FromNet(net Money, rate TaxRate) Price {
	tax := rate.TaxOn(net)
	return Price{
		net:   net,
		gross: Money{Amount: net.Amount + tax.Amount, Currency: net.Currency},
		tax:   tax,
		rate:  rate,
	}
}

// FromGross builds a Price from a gross amount:
// net = roundHalfUp(gross / (1 + rate)), tax = gross − net.
func FromGross(gross Money, rate TaxRate) Price {
	net := rate.NetFrom(gross)
	return Price{
		net:   net,
		gross: gross,
		tax:   Money{Amount: gross.Amount - net.Amount, Currency: gross.Currency},
		rate:  rate,
	}
}

// ZeroPrice is the zero Price in the given currency and rate.
func ZeroPrice(currency string, rate TaxRate) Price {
	return FromNet(Zero(currency), rate)
}

// Net returns the amount excluding tax.
func (p Price) Net() Money { return p.net }

// Gross returns the amount including tax.
func (p Price) Gross() Money { return p.gross }

// Tax returns the tax portion.
func (p Price) Tax() Money { return p.tax }

// Rate returns the tax rate the triple was derived under.
func (p Price) Rate() TaxRate { return p.rate }

// Currency returns the currency tag shared by all three amounts.
func (p Price) Currency() string { return p.net.Currency }

// Multiply scales the price by an integer factor. Tax is recomputed from
// the scaled net so that line totals stay tax-correct for the total amount
// rather than accumulating per-unit rounding. This is the one scaling rule
// used across the engine.
func (p Price) Multiply(factor int64) Price {
	return FromNet(p.net.Multiply(factor), p.rate)
}

// Add sums two prices under the same currency. Fails with
// ErrCurrencyMismatch across currencies. The sum keeps the receiver's rate;
// tax is the sum of both tax portions so gross = net + tax is preserved.
func (p Price) Add(other Price) (Price, error) {
	net, err := p.net.Add(other.net)
	if err != nil {
		return Price{}, err
	}
	gross, err := p.gross.Add(other.gross)
	if err != nil {
		return Price{}, err
	}
	return Price{
		net:   net,
		gross: gross,
		tax:   Money{Amount: gross.Amount - net.Amount, Currency: net.Currency},
		rate:  p.rate,
	}, nil
}

// Subtract deducts a discount price, clamping net and gross at zero so a
// discount larger than the subtotal never produces a negative total.
// Tax is the remaining gross − net, itself never negative.
func (p Price) Subtract(discount Price) (Price, error) {
	net, err := p.net.Sub(discount.net)
	if err != nil {
		return Price{}, err
	}
	gross, err := p.gross.Sub(discount.gross)
	if err != nil {
		return Price{}, err
	}
	if net.Amount < 0 {
		net.Amount = 0
	}
	if gross.Amount < 0 {
		gross.Amount = 0
	}
	tax := gross.Amount - net.Amount
	if tax < 0 {
		tax = 0
		gross.Amount = net.Amount
	}
	return Price{
		net:   net,
		gross: gross,
		tax:   Money{Amount: tax, Currency: net.Currency},
		rate:  p.rate,
	}, nil
}

// IsZero reports whether the gross amount is zero.
func (p Price) IsZero() bool {
	return p.gross.IsZero()
}

func (p Price) String() string {
	return "net " + p.net.String() + " / gross " + p.gross.String()
}
