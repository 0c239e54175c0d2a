// cmd/audit/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/audit"
	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/logger"
)

// exitViolated is returned when at least one invariant does not hold.
const exitViolated = 2

func main() {
	watch := flag.Duration("watch", 0, "keep sampling for this long instead of a single pass")
	interval := flag.Duration("interval", 5*time.Second, "sampling interval when watching")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Options{Service: "bookstore-audit", Env: cfg.AppEnv, Level: cfg.LogLevel})

	code, err := run(cfg, log, *watch, *interval)
	if err != nil {
		log.Error("audit failed", "error", err)
	}
	os.Exit(code)
}

func run(cfg config.Config, log *slog.Logger, watch, interval time.Duration) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultOptions())
	if err != nil {
		return 1, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	auditor := audit.NewAuditor(db, log)
	auditor.RegisterInvariants()

	report, err := sample(ctx, auditor, watch, interval)
	if err != nil {
		return 1, err
	}
	return writeReport(os.Stdout, report, log, len(auditor.Checks()))
}

func sample(ctx context.Context, auditor *audit.Auditor, watch, interval time.Duration) (*audit.Report, error) {
	if watch > 0 {
		return auditor.Observe(ctx, watch, interval)
	}
	return auditor.Run(ctx)
}

func writeReport(w io.Writer, report *audit.Report, log *slog.Logger, checks int) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 1, fmt.Errorf("failed to write report: %w", err)
	}

	if !report.Held {
		log.Warn("invariants violated", "violations", len(report.Violations))
		return exitViolated, nil
	}
	log.Info("all invariants hold", "checks", checks)
	return 0, nil
}
