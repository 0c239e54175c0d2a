package order

import (
	"context"
	"fmt"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReorderItem is one line the caller can order again.
type ReorderItem struct {
	BookID            uuid.UUID       `json:"book_id"`
	Title             string          `json:"title"`
	OriginalQuantity  int             `json:"original_quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	Quantity          int             `json:"quantity"`
	OriginalPrice     decimal.Decimal `json:"original_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	PriceChanged      bool            `json:"price_changed"`
}

// UnavailableItem explains why a line could not be proposed in full.
type UnavailableItem struct {
	BookID            uuid.UUID `json:"book_id"`
	Reason            string    `json:"reason"`
	RequestedQuantity int       `json:"requested_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
}

// ReorderResult is a cart proposal derived from a past order.
type ReorderResult struct {
	OrderID       uuid.UUID         `json:"order_id"`
	Items         []ReorderItem     `json:"items"`
	Unavailable   []UnavailableItem `json:"unavailable"`
	Messages      []string          `json:"messages"`
	ProposedTotal decimal.Decimal   `json:"proposed_total"`
	OriginalTotal decimal.Decimal   `json:"original_total"`
}

// LineItems returns the proposal as input for CreateOrder.
func (r *ReorderResult) LineItems() []LineItem {
	items := make([]LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, LineItem{BookID: it.BookID, Quantity: it.Quantity})
	}
	return items
}

const (
	reasonNoLongerExists = "no longer exists"
	reasonOutOfStock     = "out of stock"
	reasonPartial        = "partially available"
)

// Reorder compares a past order of requesterID against the current catalog
// and proposes a new cart. It reads without locks and mutates nothing.
func (e *Engine) Reorder(ctx context.Context, orderID, requesterID uuid.UUID) (*ReorderResult, error) {
	ctx, span := e.tracer.Start(ctx, "order.reorder")
	defer span.End()

	reader := e.tx.Reader()
	o, err := reader.Orders().Get(ctx, orderID)
	if err != nil {
		e.fail(span, "Reorder", err, "order_id", orderID)
		return nil, err
	}
	if o.UserID != requesterID {
		err := apperror.Forbidden("only the owner can reorder")
		e.fail(span, "Reorder", err, "order_id", orderID)
		return nil, err
	}

	res := &ReorderResult{
		OrderID:       o.ID,
		Items:         []ReorderItem{},
		Unavailable:   []UnavailableItem{},
		Messages:      []string{},
		ProposedTotal: decimal.Zero,
		OriginalTotal: o.Total,
	}

	for _, d := range o.Details {
		book, err := reader.Books().GetBook(ctx, d.BookID)
		if err != nil {
			if apperror.KindOf(err) != apperror.KindNotFound {
				e.fail(span, "Reorder", err, "order_id", orderID, "book_id", d.BookID)
				return nil, err
			}
			res.Unavailable = append(res.Unavailable, UnavailableItem{
				BookID:            d.BookID,
				Reason:            reasonNoLongerExists,
				RequestedQuantity: d.Quantity,
			})
			res.Messages = append(res.Messages, fmt.Sprintf("Book %s no longer exists", d.BookID))
			continue
		}

		if book.Quantity == 0 {
			res.Unavailable = append(res.Unavailable, UnavailableItem{
				BookID:            d.BookID,
				Reason:            reasonOutOfStock,
				RequestedQuantity: d.Quantity,
			})
			res.Messages = append(res.Messages, fmt.Sprintf("%s is out of stock", book.Title))
			continue
		}

		qty := d.Quantity
		if book.Quantity < d.Quantity {
			qty = book.Quantity
			res.Unavailable = append(res.Unavailable, UnavailableItem{
				BookID:            d.BookID,
				Reason:            reasonPartial,
				RequestedQuantity: d.Quantity,
				AvailableQuantity: book.Quantity,
			})
			res.Messages = append(res.Messages, fmt.Sprintf("%s: only %d of %d available", book.Title, book.Quantity, d.Quantity))
		}

		changed := !book.Price.Equal(d.UnitPrice)
		if changed {
			res.Messages = append(res.Messages, fmt.Sprintf("%s: price changed %s→%s",
				book.Title, formatAmount(d.UnitPrice), formatAmount(book.Price)))
		}

		res.Items = append(res.Items, ReorderItem{
			BookID:            d.BookID,
			Title:             book.Title,
			OriginalQuantity:  d.Quantity,
			AvailableQuantity: book.Quantity,
			Quantity:          qty,
			OriginalPrice:     d.UnitPrice,
			CurrentPrice:      book.Price,
			PriceChanged:      changed,
		})
		res.ProposedTotal = res.ProposedTotal.Add(book.Price.Mul(decimal.NewFromInt(int64(qty))))
	}

	return res, nil
}
