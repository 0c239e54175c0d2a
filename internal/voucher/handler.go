package voucher

import (
	"net/http"

	"bookstore/internal/identity"
	"bookstore/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the voucher endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/validate", h.handleValidate)
	r.With(identity.RequireAdmin).Post("/", h.handleCreate)
	r.With(identity.RequireAdmin).Get("/", h.handleList)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string          `json:"code"`
		OrderAmount decimal.Decimal `json:"order_amount"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	var userID *uuid.UUID
	if p, ok := identity.FromContext(r.Context()); ok {
		userID = &p.UserID
	}

	validation, err := h.service.Validate(r.Context(), req.Code, req.OrderAmount, userID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, validation)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req NewVoucher
	if !respond.Decode(w, r, &req) {
		return
	}

	v, err := h.service.Create(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.service.List(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	if vouchers == nil {
		vouchers = []*Voucher{}
	}

	respond.JSON(w, http.StatusOK, vouchers)
}
