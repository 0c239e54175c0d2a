// Package respond writes JSON responses and translates core errors into
// HTTP statuses for the handlers.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bookstore/internal/apperror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	BookID  string `json:"book_id,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// Error writes err using the status of its kind. Storage faults are
// reported without their internal message.
func Error(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	body := ErrorBody{Error: err.Error()}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		body.Kind = string(appErr.Kind)
		body.Reason = string(appErr.Reason)
		body.From = appErr.From
		body.To = appErr.To
		if appErr.Kind == apperror.KindInsufficientStock {
			body.BookID = appErr.BookID.String()
			body.Details = map[string]int{"requested": appErr.Requested, "available": appErr.Available}
		}
	} else {
		body.Error = http.StatusText(status)
	}

	JSON(w, status, body)
}

// BadRequest writes a 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: msg, Kind: string(apperror.KindInvalidInput)})
}

// Decode reads a JSON request body into v, writing a 400 on failure.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	return true
}
