package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("create order: %w", InsufficientStock(uuid.New(), 3, 1))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.True(t, IsBusiness(err))
}

func TestStorageFaultIsNotBusiness(t *testing.T) {
	err := errors.New("connection reset")

	assert.False(t, IsBusiness(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		NotFound("order", 1):                     http.StatusNotFound,
		InsufficientStock(uuid.New(), 1, 0):      http.StatusConflict,
		InvalidVoucher(ReasonExpired, "expired"): http.StatusUnprocessableEntity,
		InvalidTransition("Completed", "Pending"): http.StatusConflict,
		Forbidden("not yours"):                   http.StatusForbidden,
		CannotCancel("Completed"):                http.StatusConflict,
		InvalidInput("bad %s", "thing"):          http.StatusBadRequest,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestInvalidVoucherCarriesReason(t *testing.T) {
	err := InvalidVoucher(ReasonUsageLimit, "voucher usage limit reached")

	var appErr *Error
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, ReasonUsageLimit, appErr.Reason)
	assert.Equal(t, "voucher usage limit reached", err.Error())
}
