package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arinellipar/laossuicide-sub000/internal/auth"
	"github.com/arinellipar/laossuicide-sub000/internal/breaker"
	"github.com/arinellipar/laossuicide-sub000/internal/checkout"
	"github.com/arinellipar/laossuicide-sub000/internal/config"
	"github.com/arinellipar/laossuicide-sub000/internal/gateway"
	"github.com/arinellipar/laossuicide-sub000/internal/httpx"
	"github.com/arinellipar/laossuicide-sub000/internal/pkg/telemetry"
	"github.com/arinellipar/laossuicide-sub000/internal/pricing"
	"github.com/arinellipar/laossuicide-sub000/internal/ratelimit"
	"github.com/arinellipar/laossuicide-sub000/internal/reservation"
	"github.com/arinellipar/laossuicide-sub000/internal/store/sqlite"
	"github.com/arinellipar/laossuicide-sub000/internal/webhook"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, "checkout-service")
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefill,
		Window:     cfg.RateLimitWindow,
	})
	defer limiter.Close()

	brk := breaker.New(breaker.Config{
		Threshold:    cfg.BreakerThreshold,
		ResetTimeout: cfg.BreakerResetTimeout,
	})

	service := &checkout.Service{
		Store:        db,
		Reservations: reservation.NewRedisStore(cfg.RedisAddr),
		Calculator:   pricing.NewCalculator(pricing.DefaultConfig()),
		Gateway:      gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout),
		Breaker:      brk,
		Audit:        db,
		BaseURL:      cfg.PublicBaseURL,
		MaxCartItems: cfg.MaxCartItems,
	}

	reconciler := webhook.NewReconciler(db, db)
	handler := httpx.NewHandler(service, limiter, auth.ProxyHeaderValidator{}, reconciler, cfg.GatewayWebhookSecret)

	go sweepAbandonedOrders(ctx, db, cfg.AbandonedOrderTTL)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("checkout service listening", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

// sweepAbandonedOrders cancels PENDING orders that never got a gateway
// session, left behind when the process died between order creation and
// the gateway call.
func sweepAbandonedOrders(ctx context.Context, db *sqlite.Store, ttl time.Duration) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.SweepAbandonedOrders(ctx, ttl)
			if err != nil {
				slog.ErrorContext(ctx, "abandoned order sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "canceled abandoned orders", "count", n)
			}
		}
	}
}
