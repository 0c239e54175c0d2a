// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"strings"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxPageSize = 100

// service implements the Service interface.
type service struct {
	store Store
}

// NewService creates a new catalog service instance.
func NewService(store Store) Service {
	if store == nil {
		panic("catalog: nil store")
	}
	return &service{store: store}
}

// AddBook creates a new book in the catalog.
func (s *service) AddBook(ctx context.Context, isbn, title, author string, price decimal.Decimal, quantity int) (*Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.InvalidInput("title is required")
	}
	if price.IsNegative() {
		return nil, apperror.InvalidInput("price cannot be negative, got %s", price)
	}
	if quantity < 0 {
		return nil, apperror.InvalidInput("quantity cannot be negative, got %d", quantity)
	}

	book := &Book{
		ID:       uuid.New(),
		ISBN:     strings.TrimSpace(isbn),
		Title:    title,
		Author:   strings.TrimSpace(author),
		Price:    price,
		Quantity: quantity,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to add book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book from the catalog by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.store.GetBook(ctx, id)
}

// ListBooks returns a page of books.
func (s *service) ListBooks(ctx context.Context, limit, offset int) ([]*Book, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListBooks(ctx, limit, offset)
}

// Restock adds delivered copies to a book's available quantity.
func (s *service) Restock(ctx context.Context, id uuid.UUID, quantity int) (*Book, error) {
	if quantity <= 0 {
		return nil, apperror.InvalidInput("restock quantity must be positive, got %d", quantity)
	}
	return s.store.AdjustQuantity(ctx, id, quantity)
}

// Reprice changes the catalog price of a book.
func (s *service) Reprice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*Book, error) {
	if price.IsNegative() {
		return nil, apperror.InvalidInput("price cannot be negative, got %s", price)
	}
	return s.store.UpdatePrice(ctx, id, price)
}
