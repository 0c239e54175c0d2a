// Package pgtest hands out migrated Postgres databases to tests.
//
// When PGHOST is set the tests run against that server; otherwise a
// throwaway container is started. Tests are skipped when neither is
// available.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"bookstore/internal/database"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const image = "postgres:16-alpine"

// Open returns a database with the latest schema and no rows.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in short mode")
	}

	url, ok := FromEnv()
	if !ok {
		url = startContainer(t)
	}
	return connect(t, url)
}

// FromEnv builds a connection string from the standard PG* variables. It
// reports false when PGHOST is unset.
func FromEnv() (string, bool) {
	host := os.Getenv("PGHOST")
	if host == "" {
		return "", false
	}

	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, get("PGPORT", "5432"), get("PGUSER", "user"), get("PGPASSWORD", "password"), get("PGDATABASE", "testdb")), true
}

func startContainer(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("bookstore"),
		postgres.WithUsername("bookstore"),
		postgres.WithPassword("bookstore"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return url
}

func connect(t testing.TB, url string) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, url, database.DefaultOptions())
	if err != nil {
		t.Skipf("could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	Reset(t, db)
	return db
}

// Reset empties every table but keeps the schema.
func Reset(t testing.TB, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE events, order_details, orders, voucher_usages, vouchers, books RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to reset database: %v", err)
	}
}

// Bench returns a database for benchmarks, which never start containers.
func Bench(b *testing.B) *sql.DB {
	b.Helper()

	url, ok := FromEnv()
	if !ok {
		b.Skip("PGHOST not set")
	}
	return connect(b, url)
}
