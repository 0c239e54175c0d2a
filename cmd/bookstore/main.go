// cmd/bookstore/main.go
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

	"bookstore/internal/clients"
	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/logger"
	"bookstore/internal/memstore"
	"bookstore/internal/notify"
	"bookstore/internal/order"
	"bookstore/internal/telemetry"
	"bookstore/internal/txn"
	"bookstore/internal/voucher"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "bookstore", Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := run(cfg, log); err != nil {
		log.Error("bookstore stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Service:  "bookstore",
		Env:      cfg.AppEnv,
		Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	tx, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger := voucher.NewLedger(time.Now)
	engine := order.NewEngine(tx, ledger, engineOptions(cfg, log))
	defer engine.Wait()

	router := newRouter(tx, engine, ledger, health)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(router, "bookstore"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting bookstore", "port", cfg.Port, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (order.Transactor, func(context.Context) map[string]string, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on exit")
		up := func(context.Context) map[string]string { return map[string]string{"status": "up", "store": "memory"} }
		return memstore.New(), up, func() {}, nil
	case config.StorePostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultOptions())
		if err != nil {
			return nil, nil, nil, err
		}
		health := func(ctx context.Context) map[string]string { return database.Health(ctx, db) }
		return txn.New(db, log), health, func() { closeDB(db, log) }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE %q, want %q or %q", cfg.Store, config.StorePostgres, config.StoreMemory)
	}
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

func engineOptions(cfg config.Config, log *slog.Logger) order.Options {
	opts := order.DefaultOptions()
	opts.Shipping = order.ShippingPolicy{Fee: cfg.ShippingFee, FreeThreshold: cfg.FreeShippingThreshold}
	opts.Limits = order.Limits{MaxLineItems: cfg.MaxLineItems, MaxItemQuantity: cfg.MaxItemQuantity}
	opts.NotifyTimeout = cfg.NotifyTimeout
	opts.Logger = log

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.MailServiceURL != "" {
		mail := clients.NewMailClient(cfg.MailServiceURL, cfg.NotifyTimeout)
		notifiers = append(notifiers, notify.NewThrottled(mail, cfg.MailRatePerSecond, cfg.MailBurst))
	}
	opts.Notifier = notifiers

	if cfg.CustomerServiceURL != "" {
		opts.Customers = clients.NewCustomerClient(cfg.CustomerServiceURL, cfg.NotifyTimeout)
	}
	return opts
}
