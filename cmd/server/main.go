package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/conftix/ticket-engine/internal/booking"
	"github.com/conftix/ticket-engine/internal/clock"
	"github.com/conftix/ticket-engine/internal/config"
	"github.com/conftix/ticket-engine/internal/inventory"
	"github.com/conftix/ticket-engine/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("configuration failed", "path", configPath, "err", err)
		os.Exit(1)
	}
	slog.Info("catalogue loaded",
		"ticket_types", len(cfg.TicketTypes),
		"discount_codes", len(cfg.DiscountCodes),
		"currency", cfg.Currency,
	)

	// --- Initialize inventory store ---
	var st inventory.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = inventory.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = inventory.NewCachedStore(st, rdb, 5*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = inventory.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := booking.NewWSHub()
	go wsHub.Run()

	// --- Booking service ---
	var opts []booking.Option
	if ttl := os.Getenv("RESERVATION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			slog.Error("invalid RESERVATION_TTL", "err", err)
			os.Exit(1)
		}
		opts = append(opts, booking.WithReservationTTL(d))
	}
	svc := booking.NewService(cfg, st, clock.NewSystem(), wsHub, opts...)

	if err := svc.SeedCounters(context.Background()); err != nil {
		slog.Error("seeding inventory counters failed", "err", err)
		os.Exit(1)
	}

	// Background sweep returning inventory held by expired reservations.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go expirySweep(sweepCtx, st)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ticket-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time availability updates.
		r.Get("/ws", wsHub.HandleWS)

		// Catalogue.
		r.Get("/tickets", svc.ListTicketTypes)
		r.Get("/tickets/{ticketTypeID}", svc.GetTicketType)
		r.Get("/tickets/{ticketTypeID}/availability", svc.GetAvailability)
		r.Get("/discounts", svc.ListDiscountCodes)

		// Pricing.
		r.Post("/quote", svc.QuoteBasket)

		// Purchase and reservation lifecycle.
		r.Post("/purchase", svc.Purchase)
		r.Post("/reservations", svc.CreateReservation)
		r.Post("/reservations/{reservationID}/confirm", svc.ConfirmReservation)
		r.Delete("/reservations/{reservationID}", svc.ReleaseReservation)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ticket-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ticket-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ticket-engine stopped")
}

// expirySweep periodically releases reservations whose hold has lapsed so
// their inventory returns to sale.
func expirySweep(ctx context.Context, st inventory.Store) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			released, err := st.ReleaseExpired(ctx, now.UTC())
			if err != nil {
				slog.Error("expiry sweep failed", "err", err)
				continue
			}
			if released > 0 {
				slog.Info("expired reservations released", "count", released)
				metrics.ReservationsTotal.WithLabelValues("expired").Add(float64(released))
			}
		}
	}
}
