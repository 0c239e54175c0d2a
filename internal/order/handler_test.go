package order_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookstore/internal/identity"
	"bookstore/internal/order"
	"bookstore/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(h *harness) http.Handler {
	r := chi.NewRouter()
	r.Use(identity.Middleware)
	r.Route("/orders", order.NewHandler(h.engine).Routes)
	return r
}

func call(t *testing.T, srv http.Handler, method, path string, userID uuid.UUID, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderUserID, userID.String())
	if roles != "" {
		req.Header.Set(identity.HeaderRoles, roles)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandlerOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	book := h.addBook(t, "Book", 5, 25_000)
	srv := newRouter(h)
	userID := uuid.New()

	rec := call(t, srv, http.MethodPost, "/orders", userID, "", map[string]any{
		"shipping_address": "1 Le Loi",
		"payment_method":   "card",
		"items":            []map[string]any{{"book_id": book.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, "50000", created.Total.String())

	path := "/orders/" + created.ID.String()

	rec = call(t, srv, http.MethodGet, path, uuid.New(), "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, srv, http.MethodPatch, path+"/status", userID, "", map[string]any{"status": "Confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "status changes are admin only")

	rec = call(t, srv, http.MethodPatch, path+"/status", uuid.New(), "admin", map[string]any{"status": "Completed"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var body respond.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid_transition", body.Kind)
	assert.Equal(t, "Pending", body.From)
	assert.Equal(t, "Completed", body.To)

	rec = call(t, srv, http.MethodPost, path+"/cancel", userID, "", map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, h.quantity(t, book.ID))

	rec = call(t, srv, http.MethodPost, path+"/cancel", userID, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, srv, http.MethodGet, path+"/history", userID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	assert.Len(t, history, 2)

	rec = call(t, srv, http.MethodDelete, path, uuid.New(), "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerInsufficientStock(t *testing.T) {
	h := newHarness(t)
	book := h.addBook(t, "Book", 1, 25_000)

	rec := call(t, newRouter(h), http.MethodPost, "/orders", uuid.New(), "", map[string]any{
		"shipping_address": "1 Le Loi",
		"payment_method":   "card",
		"items":            []map[string]any{{"book_id": book.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body respond.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "insufficient_stock", body.Kind)
	assert.Equal(t, book.ID.String(), body.BookID)
}

func TestHandlerRejectsUnknownFieldsAndBadIDs(t *testing.T) {
	h := newHarness(t)
	srv := newRouter(h)

	rec := call(t, srv, http.MethodPost, "/orders", uuid.New(), "", map[string]any{
		"items":      []map[string]any{},
		"unit_price": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, srv, http.MethodGet, "/orders/not-a-uuid", uuid.New(), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, srv, http.MethodGet, "/orders?status=bogus", uuid.New(), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReorder(t *testing.T) {
	h := newHarness(t)
	book := h.addBook(t, "Book", 5, 25_000)
	userID := uuid.New()
	o := h.place(t, userID, item(book.ID, 2))
	srv := newRouter(h)

	rec := call(t, srv, http.MethodPost, "/orders/"+o.ID.String()+"/reorder", userID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res order.ReorderResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, 2, res.Items[0].Quantity)

	rec = call(t, srv, http.MethodPost, "/orders/"+o.ID.String()+"/reorder", uuid.New(), "admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
