// internal/apperror/apperror.go
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Kind classifies an expected business-rule failure.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidVoucher    Kind = "invalid_voucher"
	KindInvalidTransition Kind = "invalid_transition"
	KindForbidden         Kind = "forbidden"
	KindCannotCancel      Kind = "cannot_cancel"
	KindInvalidInput      Kind = "invalid_input"
)

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalidVoucher    = &Error{Kind: KindInvalidVoucher}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrCannotCancel      = &Error{Kind: KindCannotCancel}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

// VoucherReason explains why a voucher was rejected.
type VoucherReason string

const (
	ReasonNotFound     VoucherReason = "not-found"
	ReasonExpired      VoucherReason = "expired"
	ReasonInactive     VoucherReason = "inactive"
	ReasonUsageLimit   VoucherReason = "usage-limit"
	ReasonBelowMinimum VoucherReason = "below-minimum"
	ReasonPerUserLimit VoucherReason = "per-user-limit"
)

// Error is a recoverable, explainable failure returned by the core.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind    Kind
	Message string

	BookID    uuid.UUID
	Requested int
	Available int

	Reason VoucherReason

	From string
	To   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound reports a missing order, book or voucher.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// InsufficientStock reports that a book cannot cover the requested quantity.
func InsufficientStock(bookID uuid.UUID, requested, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for book %s: requested %d, available %d", bookID, requested, available),
		BookID:    bookID,
		Requested: requested,
		Available: available,
	}
}

// InvalidVoucher reports a rejected voucher with a human readable message.
func InvalidVoucher(reason VoucherReason, message string) *Error {
	return &Error{Kind: KindInvalidVoucher, Reason: reason, Message: message}
}

// InvalidTransition reports a status change outside the transition table.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition order from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

// Forbidden reports a failed ownership check.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// CannotCancel reports a cancellation attempt outside Pending/Confirmed.
func CannotCancel(current string) *Error {
	return &Error{
		Kind:    KindCannotCancel,
		Message: fmt.Sprintf("order in status %s cannot be cancelled", current),
		From:    current,
	}
}

// InvalidInput reports a malformed request.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsBusiness reports whether err is an expected business-rule failure
// rather than a storage or transport fault.
func IsBusiness(err error) bool {
	return KindOf(err) != ""
}

// HTTPStatus maps err to the response status a transport should use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInvalidTransition, KindCannotCancel:
		return http.StatusConflict
	case KindInvalidVoucher:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
