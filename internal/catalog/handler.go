// internal/catalog/handler.go
package catalog

import (
	"net/http"
	"strconv"

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

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleListBooks)
	r.Get("/{id}", h.handleGetBook)
	r.With(identity.RequireAdmin).Post("/", h.handleAddBook)
	r.With(identity.RequireAdmin).Patch("/{id}/price", h.handleReprice)
	r.With(identity.RequireAdmin).Post("/{id}/restock", h.handleRestock)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ISBN     string          `json:"isbn"`
		Title    string          `json:"title"`
		Author   string          `json:"author"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	book, err := h.service.AddBook(r.Context(), req.ISBN, req.Title, req.Author, req.Price, req.Quantity)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, book)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	books, err := h.service.ListBooks(r.Context(), limit, offset)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if books == nil {
		books = []*Book{}
	}

	respond.JSON(w, http.StatusOK, books)
}

func (h *Handler) handleReprice(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	book, err := h.service.Reprice(r.Context(), id, req.Price)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, book)
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if !respond.Decode(w, r, &req) {
		return
	}

	book, err := h.service.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, book)
}

func bookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid book ID")
		return uuid.Nil, false
	}
	return id, true
}
