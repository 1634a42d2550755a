package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"
)

// HeaderAPIKey is the primary credential header.
const HeaderAPIKey = "X-API-Key"

// CredentialFromRequest reads the credential from X-API-Key, falling back to
// "Authorization: Bearer <key>" or a bare Authorization value.
func CredentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
}

// APIKeyAuth resolves the caller's credential to an Identity and stores it in
// the request context. Every request is resolved afresh.
func APIKeyAuth(resolver identity.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := CredentialFromRequest(r)
			if cred == "" {
				logger.WarnContext(r.Context(), "authentication rejected", "reason", "missing credential", "path", r.URL.Path)
				WriteError(w, http.StatusForbidden, "Missing Authentication Header")
				return
			}
			id, err := resolver.Resolve(cred)
			if err != nil {
				logger.WarnContext(r.Context(), "authentication rejected", "reason", "invalid credential", "path", r.URL.Path)
				WriteError(w, http.StatusForbidden, "Invalid Credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole enforces the access policy for role on every request.
// It must run after APIKeyAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	req := auth.RequireRole(role)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusForbidden, "Missing Authentication Header")
				return
			}
			if err := req.Check(id); err != nil {
				logger.WarnContext(r.Context(), "authorization denied",
					"user_id", id.UserID, "client_id", id.ClientID, "required_role", role)
				WriteError(w, http.StatusForbidden, "Insufficient Permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithIdentity returns a new context carrying id.
func ContextWithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext extracts the resolved identity.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(identity.Identity)
	return id, ok
}

// GetTenantFromContext extracts tenant from context
func GetTenantFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.TenantID
	}
	return ""
}
