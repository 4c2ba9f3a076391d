package catalog

import "errors"

var (
	// ErrUnknownTicketType is returned when a basket references a ticket
	// type the catalogue does not contain.
	ErrUnknownTicketType = errors.New("catalog: unknown ticket type")

	// ErrTicketUnavailable is returned when a ticket type exists but is
	// outside its availability window.
	ErrTicketUnavailable = errors.New("catalog: ticket type not currently available")

	// ErrDiscountCodeNotFound is returned when a basket names a discount
	// code the catalogue does not contain.
	ErrDiscountCodeNotFound = errors.New("catalog: discount code not found")

	// ErrDiscountCodeExpired is returned when a discount code exists but
	// is outside its availability window.
	ErrDiscountCodeExpired = errors.New("catalog: discount code expired")
)
