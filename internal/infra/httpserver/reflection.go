package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

// Reflector is the reflection use-case served at /reflect.
type Reflector interface {
	Reflect(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error)
}

type ReflectionRouter struct {
	reflector Reflector
	logger    *slog.Logger
}

// NewReflectionRouter builds the reflector's HTTP surface. Only admin
// identities may call /reflect.
func NewReflectionRouter(reflector Reflector, opts Options) http.Handler {
	r := &ReflectionRouter{reflector: reflector, logger: opts.logger()}
	mux := newBaseMux(opts)

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.Resolver, r.logger))
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
		}
		rt.Use(middleware.RequireRole(identity.RoleAdmin, r.logger))
		rt.Post("/reflect", wrap(r.logger, r.handleReflect))
	})

	return mux
}

// POST /reflect
// Body: {"data_payload": {...}, "validation_rules": "..."}
func (r *ReflectionRouter) handleReflect(w http.ResponseWriter, req *http.Request) error {
	var body domain.ReflectionRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&body); err != nil {
		return badRequestf("invalid JSON body: %v", err)
	}
	if body.DataPayload == nil {
		return badRequestf("data_payload is required")
	}
	if err := middleware.ValidateValidationRules(body.ValidationRules); err != nil {
		return badRequest{err: err}
	}

	res, err := r.reflector.Reflect(req.Context(), body)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(res)
}
