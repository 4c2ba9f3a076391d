package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conftix/ticket-engine/internal/catalog"
	"github.com/conftix/ticket-engine/internal/clock"
	"github.com/conftix/ticket-engine/internal/config"
	"github.com/conftix/ticket-engine/internal/inventory"
	"github.com/conftix/ticket-engine/internal/metrics"
	"github.com/conftix/ticket-engine/internal/money"
)

var (
	// ErrInvalidLine is returned for a basket line with a non-positive
	// quantity.
	ErrInvalidLine = errors.New("booking: line quantity must be positive")

	// ErrOrderLimitExceeded is returned when one purchase asks for more
	// tickets than the per-order maximum.
	ErrOrderLimitExceeded = errors.New("booking: order exceeds maximum tickets per purchase")
)

const (
	defaultReservationTTL = 15 * time.Minute
	defaultMaxPerOrder    = 10
)

// Service handles catalogue queries, basket quoting, and the reservation
// lifecycle. Pricing is pure; all inventory mutation goes through the
// store's atomic operations.
type Service struct {
	cfg         *config.Config
	store       inventory.Store
	clk         clock.Clock
	pricer      *Pricer
	ttl         time.Duration
	maxPerOrder int
	wsHub       *WSHub // optional hub for availability broadcasts
}

// NewService creates a booking service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(cfg *config.Config, store inventory.Store, clk clock.Clock, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		store:       store,
		clk:         clk,
		pricer:      NewPricer(cfg, clk),
		ttl:         defaultReservationTTL,
		maxPerOrder: defaultMaxPerOrder,
		wsHub:       hub,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithReservationTTL overrides how long a tentative reservation holds
// inventory before it expires.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxPerOrder overrides the per-purchase ticket limit.
func WithMaxPerOrder(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPerOrder = n
		}
	}
}

// SeedCounters creates or updates one inventory counter per configured
// ticket type. Called at startup and on catalogue rebuild.
func (s *Service) SeedCounters(ctx context.Context) error {
	for id, capacity := range s.cfg.AvailableTickets {
		if err := s.store.EnsureCounter(ctx, id, capacity); err != nil {
			return err
		}
	}
	return nil
}

// --- Response types ---

// PriceView is the display shape of a Price. Net and tax appear only when
// the configuration asks for tax to be shown separately.
type PriceView struct {
	Currency string `json:"currency"`
	Gross    int64  `json:"gross"`
	Net      *int64 `json:"net,omitempty"`
	Tax      *int64 `json:"tax,omitempty"`
}

// TicketTypeView is one catalogue entry in API responses.
type TicketTypeView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Supplementary bool      `json:"supplementary"`
	Price         PriceView `json:"price"`
}

// DiscountCodeView is one discount code in API responses. The discount
// computation itself is not exposed.
type DiscountCodeView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AvailabilityView reports remaining inventory for one ticket type.
type AvailabilityView struct {
	TicketTypeID string `json:"ticket_type_id"`
	Remaining    int    `json:"remaining"`
	SoldOut      bool   `json:"sold_out"`
}

// QuoteResponse is the JSON body returned from POST /quote.
type QuoteResponse struct {
	Currency     string    `json:"currency"`
	TicketCount  int       `json:"ticket_count"`
	Subtotal     PriceView `json:"subtotal"`
	Discount     PriceView `json:"discount"`
	Total        PriceView `json:"total"`
	DiscountCode string    `json:"discount_code,omitempty"`
}

// ReservationResponse is the JSON shape of a reservation.
type ReservationResponse struct {
	ID           string    `json:"id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PurchaseResponse is the JSON body returned from POST /purchase:
// the priced basket plus the reservations holding its inventory.
type PurchaseResponse struct {
	PurchaseID   string                `json:"purchase_id"`
	Quote        QuoteResponse         `json:"quote"`
	Reservations []ReservationResponse `json:"reservations"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

func (s *Service) priceView(p money.Price) PriceView {
	v := PriceView{Currency: p.Currency(), Gross: p.Gross().Amount}
	if s.cfg.DisplayTax {
		net, tax := p.Net().Amount, p.Tax().Amount
		v.Net = &net
		v.Tax = &tax
	}
	return v
}

func (s *Service) quoteResponse(q Quote) QuoteResponse {
	return QuoteResponse{
		Currency:     q.Currency,
		TicketCount:  q.TicketCount,
		Subtotal:     s.priceView(q.Subtotal),
		Discount:     s.priceView(q.Discount),
		Total:        s.priceView(q.Total),
		DiscountCode: q.DiscountCode,
	}
}

func reservationResponse(r inventory.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:           r.ID,
		TicketTypeID: r.TicketTypeID,
		Quantity:     r.Quantity,
		Status:       string(r.Status),
		ExpiresAt:    r.ExpiresAt,
	}
}

// --- Catalogue handlers ---

// ListTicketTypes handles GET /api/v1/tickets
func (s *Service) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	views := make([]TicketTypeView, 0, len(s.cfg.TicketTypes))
	for _, tt := range s.cfg.TicketTypes {
		views = append(views, s.ticketTypeView(tt))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetTicketType handles GET /api/v1/tickets/{ticketTypeID}
func (s *Service) GetTicketType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketTypeID")
	tt, ok := s.cfg.TicketType(id)
	if !ok {
		writeError(w, "ticket type not found: "+id, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.ticketTypeView(tt))
}

// GetAvailability handles GET /api/v1/tickets/{ticketTypeID}/availability
func (s *Service) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketTypeID")
	c, err := s.store.GetCounter(r.Context(), id)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityView{
		TicketTypeID: c.TicketTypeID,
		Remaining:    c.Remaining,
		SoldOut:      c.SoldOut(),
	})
}

// ListDiscountCodes handles GET /api/v1/discounts
func (s *Service) ListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	views := make([]DiscountCodeView, 0, len(s.cfg.DiscountCodes))
	for _, code := range s.cfg.DiscountCodes {
		views = append(views, DiscountCodeView{Code: code.Code, Name: code.Name})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Service) ticketTypeView(tt catalog.TicketType) TicketTypeView {
	return TicketTypeView{
		ID:            tt.ID,
		Name:          tt.Name,
		Description:   tt.Description,
		Supplementary: tt.Supplementary,
		Price:         s.priceView(tt.Price),
	}
}

// --- Pricing handler ---

// QuoteBasket handles POST /api/v1/quote
// Prices a basket without touching inventory.
func (s *Service) QuoteBasket(w http.ResponseWriter, r *http.Request) {
	var req BasketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	quote, err := s.pricer.Quote(req)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("rejected").Inc()
		writeErrorFor(w, err)
		return
	}

	metrics.QuotesTotal.WithLabelValues("priced").Inc()
	if quote.DiscountCode != "" {
		metrics.DiscountApplications.WithLabelValues(req.DiscountCode).Inc()
	}
	writeJSON(w, http.StatusOK, s.quoteResponse(quote))
}

// --- Reservation handlers ---

// CreateReservation handles POST /api/v1/reservations
// Atomically decrements the counter and records a pending reservation.
func (s *Service) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req Line
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}
	if req.Quantity > s.maxPerOrder {
		writeErrorFor(w, ErrOrderLimitExceeded)
		return
	}

	res, err := s.reserve(r, req)
	if err != nil {
		writeErrorFor(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservationResponse(res))
}

// ConfirmReservation handles POST /api/v1/reservations/{reservationID}/confirm
func (s *Service) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationID")
	res, err := s.store.Confirm(r.Context(), id, s.clk.Now())
	if err != nil {
		writeErrorFor(w, err)
		return
	}

	slog.Info("reservation confirmed",
		"reservation_id", res.ID,
		"ticket_type", res.TicketTypeID,
		"quantity", res.Quantity,
	)
	s.broadcastAvailability(r, res.TicketTypeID)
	writeJSON(w, http.StatusOK, reservationResponse(res))
}

// ReleaseReservation handles DELETE /api/v1/reservations/{reservationID}
// The compensating action for payment failure or abandonment.
func (s *Service) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationID")
	res, err := s.store.Release(r.Context(), id, s.clk.Now())
	if err != nil {
		if errors.Is(err, inventory.ErrOverRelease) {
			// Counter was clamped; the release itself succeeded.
			slog.Error("over-release clamped", "reservation_id", id, "err", err)
		} else {
			writeErrorFor(w, err)
			return
		}
	}

	slog.Info("reservation released",
		"reservation_id", res.ID,
		"ticket_type", res.TicketTypeID,
		"quantity", res.Quantity,
	)
	s.broadcastAvailability(r, res.TicketTypeID)
	writeJSON(w, http.StatusOK, reservationResponse(res))
}

// --- Purchase handler ---

// Purchase handles POST /api/v1/purchase
// Prices the basket, then reserves every line. If any line cannot be
// reserved, reservations already taken for this purchase are released
// (compensating action) and the whole purchase fails.
func (s *Service) Purchase(w http.ResponseWriter, r *http.Request) {
	var req BasketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	quote, err := s.pricer.Quote(req)
	if err != nil {
		writeErrorFor(w, err)
		return
	}
	if quote.TicketCount == 0 {
		writeError(w, "basket is empty", http.StatusBadRequest)
		return
	}
	if quote.TicketCount > s.maxPerOrder {
		writeErrorFor(w, ErrOrderLimitExceeded)
		return
	}

	var reserved []inventory.Reservation
	var expiresAt time.Time
	for _, line := range req.Tickets {
		res, err := s.reserve(r, line)
		if err != nil {
			s.compensate(r, reserved)
			writeErrorFor(w, err)
			return
		}
		reserved = append(reserved, res)
		expiresAt = res.ExpiresAt
	}

	purchaseID := uuid.New().String()
	views := make([]ReservationResponse, 0, len(reserved))
	for _, res := range reserved {
		views = append(views, reservationResponse(res))
	}

	slog.Info("purchase reserved",
		"purchase_id", purchaseID,
		"tickets", quote.TicketCount,
		"total_gross", quote.Total.Gross().Amount,
		"currency", quote.Currency,
		"discount_code", req.DiscountCode,
	)

	writeJSON(w, http.StatusCreated, PurchaseResponse{
		PurchaseID:   purchaseID,
		Quote:        s.quoteResponse(quote),
		Reservations: views,
		ExpiresAt:    expiresAt,
	})
}

// reserve decrements inventory for one line and broadcasts the new
// availability.
func (s *Service) reserve(r *http.Request, line Line) (inventory.Reservation, error) {
	now := s.clk.Now()
	res := inventory.Reservation{
		ID:           uuid.New().String(),
		TicketTypeID: line.TicketTypeID,
		Quantity:     line.Quantity,
		Status:       inventory.StatusPending,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}

	if err := s.store.Reserve(r.Context(), res); err != nil {
		if errors.Is(err, inventory.ErrInsufficientInventory) {
			metrics.ReservationsTotal.WithLabelValues("conflict").Inc()
			metrics.ReservationConflicts.Inc()
		} else {
			metrics.ReservationsTotal.WithLabelValues("error").Inc()
		}
		return inventory.Reservation{}, err
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	slog.Info("reservation created",
		"reservation_id", res.ID,
		"ticket_type", res.TicketTypeID,
		"quantity", res.Quantity,
		"expires_at", res.ExpiresAt,
	)
	s.broadcastAvailability(r, res.TicketTypeID)
	return res, nil
}

// compensate releases reservations taken earlier in a purchase that
// failed partway.
func (s *Service) compensate(r *http.Request, reserved []inventory.Reservation) {
	for _, res := range reserved {
		if _, err := s.store.Release(r.Context(), res.ID, s.clk.Now()); err != nil {
			slog.Error("compensating release failed",
				"reservation_id", res.ID, "err", err)
			continue
		}
		s.broadcastAvailability(r, res.TicketTypeID)
	}
}

// broadcastAvailability pushes the current remaining count for a ticket
// type to WebSocket clients and refreshes the sold-out gauge.
func (s *Service) broadcastAvailability(r *http.Request, ticketTypeID string) {
	c, err := s.store.GetCounter(r.Context(), ticketTypeID)
	if err != nil {
		return
	}

	if counters, err := s.store.ListCounters(r.Context()); err == nil {
		soldOut := 0
		for _, cc := range counters {
			if cc.SoldOut() {
				soldOut++
			}
		}
		metrics.SoldOutTicketTypes.Set(float64(soldOut))
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "availability",
			TicketTypeID: c.TicketTypeID,
			Remaining:    c.Remaining,
			SoldOut:      c.SoldOut(),
		})
	}
}

// --- Error mapping ---

// writeErrorFor maps domain errors onto HTTP statuses. Inventory conflicts
// are distinguishable from persistence failures so callers can offer a
// ticket-selection retry instead of a generic error page.
func writeErrorFor(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownTicketType),
		errors.Is(err, catalog.ErrDiscountCodeNotFound),
		errors.Is(err, inventory.ErrCounterNotFound),
		errors.Is(err, inventory.ErrReservationNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, catalog.ErrDiscountCodeExpired),
		errors.Is(err, inventory.ErrReservationExpired):
		writeError(w, err.Error(), http.StatusGone)
	case errors.Is(err, catalog.ErrTicketUnavailable),
		errors.Is(err, inventory.ErrInsufficientInventory),
		errors.Is(err, inventory.ErrReservationConfirmed),
		errors.Is(err, inventory.ErrReservationReleased):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrOrderLimitExceeded),
		errors.Is(err, inventory.ErrInvalidQuantity):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
