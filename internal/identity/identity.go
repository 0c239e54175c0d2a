// Package identity carries the authenticated caller through a request.
//
// Authentication itself happens upstream: the gateway verifies the session
// and forwards the caller as X-User-ID and X-User-Roles headers. This
// package only parses those headers and answers ownership questions.
package identity

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"bookstore/internal/apperror"

	"github.com/google/uuid"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRoles  = "X-User-Roles"

	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Principal is the caller of an operation.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Roles, RoleAdmin)
}

// CanAccess reports whether the principal owns ownerID's resources or is an
// admin.
func (p Principal) CanAccess(ownerID uuid.UUID) bool {
	return p.UserID == ownerID || p.IsAdmin()
}

// Provider resolves the caller of the current operation.
type Provider interface {
	CurrentUser(ctx context.Context) (Principal, error)
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// ContextProvider reads the principal placed in the context by Middleware.
type ContextProvider struct{}

// CurrentUser implements Provider.
func (ContextProvider) CurrentUser(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, apperror.Forbidden("no authenticated user")
	}
	return p, nil
}

// Middleware parses the gateway headers. Requests without a valid user id
// are rejected with 401.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderUserID)))
		if err != nil {
			http.Error(w, "missing or invalid "+HeaderUserID, http.StatusUnauthorized)
			return
		}

		p := Principal{UserID: userID, Roles: parseRoles(r.Header.Get(HeaderRoles))}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin rejects callers without the admin role with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok || !p.IsAdmin() {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseRoles(header string) []string {
	var roles []string
	for _, role := range strings.Split(header, ",") {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	return roles
}
