// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book is a sellable title with its current price and available quantity.
// Quantity is never negative; it only moves through AdjustQuantity.
type Book struct {
	ID        uuid.UUID       `json:"id"`
	ISBN      string          `json:"isbn"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
