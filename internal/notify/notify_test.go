package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bookstore/internal/order"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	calls atomic.Int32
	err   error
}

func (c *countingNotifier) OrderConfirmed(ctx context.Context, o *order.Order, cu order.Customer) error {
	c.calls.Add(1)
	return c.err
}

func (c *countingNotifier) StatusChanged(ctx context.Context, o *order.Order, cu order.Customer, from, to order.Status) error {
	c.calls.Add(1)
	return c.err
}

func (c *countingNotifier) Cancelled(ctx context.Context, o *order.Order, cu order.Customer, reason string) error {
	c.calls.Add(1)
	return c.err
}

func testOrder() *order.Order {
	return &order.Order{ID: uuid.New(), UserID: uuid.New(), Status: order.StatusPending}
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("smtp down")
	ok, failing := &countingNotifier{}, &countingNotifier{err: boom}

	err := Multi{failing, ok}.OrderConfirmed(context.Background(), testOrder(), order.Customer{})

	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, ok.calls.Load())
	assert.EqualValues(t, 1, failing.calls.Load())
}

func TestThrottledGivesUpWhenContextExpires(t *testing.T) {
	next := &countingNotifier{}
	th := NewThrottled(next, 0.001, 1)

	require.NoError(t, th.Cancelled(context.Background(), testOrder(), order.Customer{}, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := th.Cancelled(ctx, testOrder(), order.Customer{}, "")

	assert.Error(t, err)
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLogNotifier(nil)
	o := testOrder()

	assert.NoError(t, n.OrderConfirmed(context.Background(), o, order.Customer{}))
	assert.NoError(t, n.StatusChanged(context.Background(), o, order.Customer{}, order.StatusPending, order.StatusConfirmed))
	assert.NoError(t, n.Cancelled(context.Background(), o, order.Customer{}, "duplicate"))
}
