// internal/order/handler.go
package order

import (
	"net/http"
	"time"

	"bookstore/internal/identity"
	"bookstore/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the order endpoints on r. Every route expects
// identity.Middleware to have run.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/history", h.handleHistory)
		r.Post("/cancel", h.handleCancel)
		r.Post("/reorder", h.handleReorder)
		r.With(identity.RequireAdmin).Patch("/status", h.handleUpdateStatus)
		r.With(identity.RequireAdmin).Delete("/", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: "unauthenticated"})
		return
	}

	var req struct {
		ShippingAddress string     `json:"shipping_address"`
		PaymentMethod   string     `json:"payment_method"`
		Items           []LineItem `json:"items"`
		VoucherCode     string     `json:"voucher_code,omitempty"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateOrder(r.Context(), CreateOrderRequest{
		UserID:          p.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           req.Items,
		VoucherCode:     req.VoucherCode,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f Filter

	if v := q.Get("user"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respond.BadRequest(w, "invalid user id")
			return
		}
		f.UserID = id
	}
	if v := q.Get("status"); v != "" {
		status, err := ParseStatus(v)
		if err != nil {
			respond.Error(w, err)
			return
		}
		f.Status = status
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respond.BadRequest(w, "invalid "+key+" timestamp, want RFC 3339")
				return
			}
			*dst = t
		}
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if orders == nil {
		orders = []*Order{}
	}

	respond.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req struct {
		Status Status `json:"status"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !respond.Decode(w, r, &req) {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id, req.Reason)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, events)
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	p, ok := identity.FromContext(r.Context())
	if !ok {
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: "unauthenticated"})
		return
	}

	result, err := h.service.Reorder(r.Context(), id, p.UserID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, result)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}
