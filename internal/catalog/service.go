// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service defines the administrative catalog operations. Stock reservation
// and restoration belong to the order engine, not to this service.
type Service interface {
	AddBook(ctx context.Context, isbn, title, author string, price decimal.Decimal, quantity int) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context, limit, offset int) ([]*Book, error)
	Restock(ctx context.Context, id uuid.UUID, quantity int) (*Book, error)
	Reprice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*Book, error)
}
