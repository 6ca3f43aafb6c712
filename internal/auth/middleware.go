package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/joao-fontenele/medstore/internal/domain"
)

const CookieName = "access_token"

type Middleware struct {
	issuer *TokenIssuer
	logger *slog.Logger
}

func NewMiddleware(issuer *TokenIssuer, logger *slog.Logger) *Middleware {
	return &Middleware{issuer: issuer, logger: logger}
}

// Authenticate rejects requests without a valid token and stores the
// principal in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		p, err := m.issuer.Parse(token)
		if err != nil {
			m.logger.Debug("rejected token", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole must run after Authenticate.
func (m *Middleware) RequireRole(next http.Handler, roles ...domain.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !slices.Contains(roles, p.Role) {
			m.logger.Info("forbidden", "user_id", p.UserID, "role", p.Role, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Staff is Authenticate followed by a pharmacist or admin role check.
func (m *Middleware) Staff(next http.Handler) http.Handler {
	return m.Authenticate(m.RequireRole(next, domain.RoleAdmin, domain.RolePharmacist))
}

// TokenFromRequest reads the access token cookie, falling back to a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
