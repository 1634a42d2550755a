package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appreceipts "github.com/bryanwahyu/receipt-pipeline/internal/application/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/ai"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

// MaxUploadBytes bounds a multipart upload, form overhead included.
const MaxUploadBytes = 10 << 20

const maxFailuresPage = 200

// Processor runs the receipt pipeline for one document.
type Processor interface {
	Process(ctx context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error)
}

// Options carries the wiring shared by both services' routers.
type Options struct {
	Resolver       identity.Resolver
	Logger         *slog.Logger
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter // optional
	HealthCheckers map[string]middleware.HealthChecker
	HealthInfo     map[string]string
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

type Router struct {
	processor Processor
	documents domain.DocumentSource
	failures  reflections.Repository
	logger    *slog.Logger
}

// NewRouter builds the processor's HTTP surface. documents may be nil, in
// which case object_key requests are rejected. failures may be nil, in which
// case the failure log endpoint is not mounted.
func NewRouter(processor Processor, documents domain.DocumentSource, failures reflections.Repository, opts Options) http.Handler {
	r := &Router{processor: processor, documents: documents, failures: failures, logger: opts.logger()}
	mux := newBaseMux(opts)

	if failures != nil {
		mux.Route("/v1/{tenant}/reflection-failures", func(rt chi.Router) {
			rt.Use(middleware.APIKeyAuth(opts.Resolver, r.logger))
			rt.Use(middleware.RequireRole(identity.RoleAdmin, r.logger))
			rt.Get("/", wrap(r.logger, r.handleFailures))
		})
	}

	mux.Route("/v1/documents", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.Resolver, r.logger))
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
		}
		rt.Use(middleware.RequireRole(identity.RoleWorker, r.logger))
		rt.Post("/process", wrap(r.logger, r.handleProcess))
	})

	return mux
}

// newBaseMux installs the common middleware chain and the unauthenticated
// probe endpoints.
func newBaseMux(opts Options) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.LoggingMiddleware(opts.logger()))
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderAPIKey, middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers, opts.HealthInfo))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks an error caused by the request body itself.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func badRequestf(format string, args ...any) error {
	return badRequest{err: fmt.Errorf(format, args...)}
}

func wrap(logger *slog.Logger, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.As(err, &br):
			middleware.WriteError(w, http.StatusBadRequest, br.Error())
		case errors.Is(err, identity.ErrAuthentication):
			middleware.WriteError(w, http.StatusForbidden, "Invalid Credentials")
		case errors.Is(err, identity.ErrAuthorization):
			middleware.WriteError(w, http.StatusForbidden, "Insufficient Permissions")
		case errors.Is(err, domain.ErrDocumentNotFound):
			middleware.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrUnsupportedDocument):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProcessing):
			logger.ErrorContext(req.Context(), "processing failed", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		case errors.Is(err, ai.ErrUpstream):
			logger.ErrorContext(req.Context(), "reflection backend failed", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, "AI Error: "+err.Error())
		default:
			logger.ErrorContext(req.Context(), "request failed", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

// POST /v1/documents/process
// Body: multipart form with a "file" part, or {"object_key": "<key>"}.
func (r *Router) handleProcess(w http.ResponseWriter, req *http.Request) error {
	id, ok := middleware.IdentityFromContext(req.Context())
	if !ok {
		return identity.ErrAuthentication
	}

	doc, err := r.readDocument(w, req)
	if err != nil {
		return err
	}

	res, err := r.processor.Process(req.Context(), appreceipts.ProcessCommand{
		Identity:  id,
		Document:  doc,
		RequestID: middleware.RequestIDFromContext(req.Context()),
	})
	if err != nil {
		return err
	}
	middleware.RecordDocument(res.Meta.Reflection, res.Decision.Status == domain.StatusReviewRequired)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(res)
}

// GET /v1/{tenant}/reflection-failures?limit=50
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		return badRequest{err: err}
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = min(limit, maxFailuresPage)

	list, err := r.failures.ListByTenant(req.Context(), tenant, limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*reflections.Failure{}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

func (r *Router) readDocument(w http.ResponseWriter, req *http.Request) (domain.Document, error) {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		return domain.Document{}, badRequestf("missing or invalid Content-Type")
	}
	switch mt {
	case "multipart/form-data":
		return readUpload(w, req)
	case "application/json":
		return r.readStored(req)
	default:
		return domain.Document{}, badRequestf("unsupported Content-Type %s", mt)
	}
}

func readUpload(w http.ResponseWriter, req *http.Request) (domain.Document, error) {
	req.Body = http.MaxBytesReader(w, req.Body, MaxUploadBytes)
	file, header, err := req.FormFile("file")
	if err != nil {
		return domain.Document{}, badRequestf("file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Document{}, badRequestf("file: %v", err)
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	ct, err = middleware.ValidateDocumentType(ct)
	if err != nil {
		return domain.Document{}, badRequest{err: err}
	}
	return domain.Document{
		Name:        middleware.SanitizeString(header.Filename),
		ContentType: ct,
		Data:        data,
	}, nil
}

func (r *Router) readStored(req *http.Request) (domain.Document, error) {
	var body struct {
		ObjectKey string `json:"object_key"`
	}
	dec := json.NewDecoder(io.LimitReader(req.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return domain.Document{}, badRequestf("invalid JSON body: %v", err)
	}
	key := strings.TrimSpace(body.ObjectKey)
	if err := middleware.ValidateObjectKey(key); err != nil {
		return domain.Document{}, badRequest{err: err}
	}
	if r.documents == nil {
		return domain.Document{}, badRequestf("object storage is not configured; upload the file instead")
	}
	doc, err := r.documents.Fetch(req.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.Document{}, err
		}
		return domain.Document{}, fmt.Errorf("%w: fetch %s: %w", domain.ErrProcessing, key, err)
	}
	if _, err := middleware.ValidateDocumentType(doc.ContentType); err != nil {
		return domain.Document{}, badRequest{err: err}
	}
	return doc, nil
}
