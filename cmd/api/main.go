package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"golang.org/x/sync/errgroup"

	"github.com/historiasdelamente/detectar-backend/internal/api"
	"github.com/historiasdelamente/detectar-backend/internal/config"
	"github.com/historiasdelamente/detectar-backend/internal/crm"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/fulfill"
	"github.com/historiasdelamente/detectar-backend/internal/payment"
	"github.com/historiasdelamente/detectar-backend/internal/store"
	"github.com/historiasdelamente/detectar-backend/internal/worker"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "provider", cfg.PaymentProvider)

	// ── Database ──────────────────────────────────────────────────────────────
	pool, queries, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	st := store.New(pool, queries)

	// ── Payment gateway ───────────────────────────────────────────────────────
	// One gateway per deployment: PayPal for the USD market, MercadoPago for
	// the COP market. Everything downstream sees only the Provider interface.
	var provider payment.Provider
	switch cfg.PaymentProvider {
	case "mercadopago":
		provider = payment.NewMercadoPagoProvider(
			cfg.MercadoPagoAccessToken,
			cfg.MercadoPagoAPIBase,
			cfg.MercadoPagoBackURL,
		)
	default:
		provider = payment.NewPayPalProvider(
			cfg.PayPalClientID,
			cfg.PayPalClientSecret,
			cfg.PayPalAPIBase,
		)
	}
	logger.Info("payment gateway ready", "provider", provider.Name())

	// ── Email (Resend) ────────────────────────────────────────────────────────
	mailer := email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromAddr, cfg.EmailFromName)

	// ── CRM (Airtable) ────────────────────────────────────────────────────────
	var recorder crm.Recorder = crm.Noop{}
	if cfg.AirtableEnabled() {
		recorder = crm.NewAirtable(cfg.AirtableAPIKey, cfg.AirtableBaseID, cfg.AirtableTableName, "")
		logger.Info("crm sync enabled", "table", cfg.AirtableTableName)
	}

	// ── Fulfillment + sequence dispatch ───────────────────────────────────────
	orch := fulfill.New(st, mailer, logger)
	dispatcher := worker.NewDispatcher(queries, mailer, int32(cfg.SweepBatchSize), logger)
	runner := worker.NewRunner(dispatcher, cfg.SweepInterval, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		queries,
		st,
		orch,
		provider,
		dispatcher, // *Dispatcher satisfies worker.Sweeper
		mailer,
		recorder,
		api.Config{
			BaseURL:    cfg.BaseURL,
			CronSecret: cfg.CronSecret,
			Env:        cfg.Env,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // payment verification calls out to the gateway
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Runner and HTTP server both
	// respect it; the errgroup collects whichever fails first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Give in-flight HTTP requests up to 20 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// openDB opens the connection pool and verifies connectivity before the
// server starts taking traffic.
func openDB(dsn string) (*sql.DB, *db.Queries, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return pool, db.New(pool), nil
}
