package main

import (
	"context"
	"net/http"
	"time"

	"bookstore/internal/catalog"
	"bookstore/internal/identity"
	"bookstore/internal/order"
	"bookstore/internal/respond"
	"bookstore/internal/voucher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// newRouter mounts every endpoint. Catalog and voucher administration run
// on autocommit repositories; order mutations go through the engine.
func newRouter(tx order.Transactor, engine *order.Engine, ledger *voucher.Ledger, health func(context.Context) map[string]string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := health(r.Context())
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(w, status, stats)
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Route("/orders", order.NewHandler(engine).Routes)
		r.Route("/vouchers", voucher.NewHandler(voucher.NewService(tx.Reader().Vouchers(), ledger)).Routes)
		r.Route("/books", catalog.NewHandler(catalog.NewService(tx.Reader().Books())).Routes)
	})
	return r
}
