package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookstore/internal/order"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailClientPostsNotification(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	o := &order.Order{ID: uuid.New(), Status: order.StatusConfirmed}
	customer := order.Customer{ID: uuid.New(), Email: "reader@example.com"}

	c := NewMailClient(srv.URL, time.Second)
	require.NoError(t, c.StatusChanged(context.Background(), o, customer, order.StatusPending, order.StatusConfirmed))

	assert.Equal(t, NotificationStatusChanged, got.Type)
	assert.Equal(t, o.ID, got.Order.ID)
	assert.Equal(t, "reader@example.com", got.Customer.Email)
	assert.Equal(t, order.StatusPending, got.OldStatus)
	assert.Equal(t, order.StatusConfirmed, got.NewStatus)
}

func TestMailClientReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewMailClient(srv.URL, time.Second).Cancelled(context.Background(), &order.Order{ID: uuid.New()}, order.Customer{}, "changed my mind")
	assert.ErrorContains(t, err, "502")
}

func TestMailClientHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := NewMailClient(srv.URL, 50*time.Millisecond).OrderConfirmed(context.Background(), &order.Order{ID: uuid.New()}, order.Customer{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCustomerClient(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/"+userID.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"email": "ada@example.com", "name": "Ada"})
	}))
	defer srv.Close()

	c := NewCustomerClient(srv.URL, time.Second)

	customer, err := c.Customer(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, customer.ID)
	assert.Equal(t, "ada@example.com", customer.Email)
	assert.Equal(t, "Ada", customer.Name)

	_, err = c.Customer(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "404")
}
