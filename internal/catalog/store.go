// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store reads and mutates books. AdjustQuantity is the only way stock moves:
// a negative delta reserves, a positive delta restores.
type Store interface {
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*Book, error)
	CreateBook(ctx context.Context, book *Book) error
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*Book, error)
	ListBooks(ctx context.Context, limit, offset int) ([]*Book, error)
}

// PostgresStore implements Store over a database.Querier.
type PostgresStore struct {
	q    database.Querier
	lock bool
}

// NewPostgresStore creates a store over q. When lock is set, reads take a
// row lock (SELECT ... FOR UPDATE); only use it with a *sql.Tx.
func NewPostgresStore(q database.Querier, lock bool) *PostgresStore {
	return &PostgresStore{q: q, lock: lock}
}

const bookColumns = `id, isbn, title, author, price, quantity, version, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	book := &Book{}
	err := row.Scan(
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&book.Price,
		&book.Quantity,
		&book.Version,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *PostgresStore) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	if s.lock {
		query += ` FOR UPDATE`
	}

	book, err := scanBook(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// AdjustQuantity moves stock by delta in a single conditional update, so the
// quantity can never drop below zero even under concurrent reservations.
func (s *PostgresStore) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*Book, error) {
	query := `
		UPDATE books
		SET quantity = quantity + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING ` + bookColumns

	book, err := scanBook(s.q.QueryRowContext(ctx, query, id, delta))
	if err == nil {
		return book, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to adjust quantity: %w", err)
	}

	// Either the book is gone or the condition failed.
	current, getErr := s.GetBook(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperror.InsufficientStock(id, -delta, current.Quantity)
}

// CreateBook inserts a new book.
func (s *PostgresStore) CreateBook(ctx context.Context, book *Book) error {
	query := `
		INSERT INTO books (id, isbn, title, author, price, quantity, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING version, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query, book.ID, book.ISBN, book.Title, book.Author, book.Price, book.Quantity).
		Scan(&book.Version, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

// UpdatePrice sets a new catalog price. Existing order details keep the
// price they were created with.
func (s *PostgresStore) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*Book, error) {
	query := `
		UPDATE books
		SET price = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookColumns

	book, err := scanBook(s.q.QueryRowContext(ctx, query, id, price))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("failed to update price: %w", err)
	}
	return book, nil
}

// ListBooks returns books ordered by title.
func (s *PostgresStore) ListBooks(ctx context.Context, limit, offset int) ([]*Book, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		ORDER BY title, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return books, nil
}
