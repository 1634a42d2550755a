package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/receipt-pipeline/internal/application"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	appreceipts "github.com/bryanwahyu/receipt-pipeline/internal/application/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/reflection"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/ai"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/ai/mock"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/reflectclient"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

const (
	adminKey  = "sk_admin_master"
	workerKey = "sk_worker_bot"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type MockProcessor struct {
	ProcessFunc func(ctx context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error)
	last        appreceipts.ProcessCommand
}

func (m *MockProcessor) Process(ctx context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error) {
	m.last = cmd
	return m.ProcessFunc(ctx, cmd)
}

type MockDocumentSource struct {
	FetchFunc func(ctx context.Context, key string) (domain.Document, error)
}

func (m *MockDocumentSource) Fetch(ctx context.Context, key string) (domain.Document, error) {
	return m.FetchFunc(ctx, key)
}

type MockReflector struct {
	ReflectFunc func(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error)
}

func (m *MockReflector) Reflect(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error) {
	return m.ReflectFunc(ctx, req)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	r, err := auth.NewResolver([]auth.Entry{
		{Credential: adminKey, Identity: identity.Identity{UserID: "u_admin", ClientID: "platform_admin", Roles: []string{identity.RoleAdmin}, TenantID: "TENANT_01"}},
		{Credential: workerKey, Identity: identity.Identity{UserID: "u_bot_01", ClientID: "automation_worker", Roles: []string{identity.RoleWorker}, TenantID: "TENANT_02"}},
	})
	require.NoError(t, err)
	return Options{Resolver: r, AllowedOrigins: []string{"https://dashboard.example.com"}}
}

func approvedResult(cmd appreceipts.ProcessCommand) *appreceipts.ProcessResult {
	return &appreceipts.ProcessResult{
		Draft:    domain.Draft{"merchant": "Cafe", "amount": 12.5, "date": "2025-01-01", "confidence": 0.95},
		Decision: domain.Decision{Status: domain.StatusApproved},
		Meta: appreceipts.Meta{
			ProcessedBy: cmd.Identity.UserID,
			Route:       appreceipts.RouteDirect,
			Role:        identity.RoleWorker,
			TenantID:    cmd.Identity.TenantID,
			RequestID:   cmd.RequestID,
			Reflection:  appreceipts.ReflectionSkipped,
		},
	}
}

func uploadRequest(t *testing.T, key, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if key != "" {
		req.Header.Set(middleware.HeaderAPIKey, key)
	}
	return req
}

func jsonRequest(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.HeaderAPIKey, key)
	}
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Detail
}

func TestRouter_ProbesAreUnauthenticated(t *testing.T) {
	h := NewRouter(&MockProcessor{}, nil, nil, testOptions(t))
	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID), path)
	}
}

func TestRouter_Process_Upload(t *testing.T) {
	proc := &MockProcessor{ProcessFunc: func(_ context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error) {
		return approvedResult(cmd), nil
	}}
	h := NewRouter(proc, nil, nil, testOptions(t))

	for _, key := range []string{workerKey, adminKey} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, uploadRequest(t, key, "receipt.png", "", pngHeader))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "APPROVED", got["compliance_status"])
		assert.Equal(t, "Cafe", got["merchant"])
		assert.NotContains(t, got, "ui_blocks")

		assert.Equal(t, "image/png", proc.last.Document.ContentType)
		assert.Equal(t, "receipt.png", proc.last.Document.Name)
		assert.Equal(t, pngHeader, proc.last.Document.Data)
		assert.Equal(t, rec.Header().Get(middleware.HeaderRequestID), proc.last.RequestID)
	}
	assert.Equal(t, "u_admin", proc.last.Identity.UserID)
}

func TestRouter_Process_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		procErr    error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "missing credential",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "", "r.png", "image/png", pngHeader) },
			wantStatus: http.StatusForbidden,
			wantDetail: "Missing Authentication Header",
		},
		{
			name:       "invalid credential",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "sk_guess", "r.png", "image/png", pngHeader) },
			wantStatus: http.StatusForbidden,
			wantDetail: "Invalid Credentials",
		},
		{
			name:       "unsupported upload type",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, workerKey, "r.html", "text/html", []byte("<html>")) },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "empty upload",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, workerKey, "r.png", "image/png", nil)
			},
			procErr:    errors.Join(domain.ErrProcessing, domain.ErrEmptyDocument),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "processing failed\ndocument is empty",
		},
		{
			name: "no content type",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", strings.NewReader("x"))
				req.Header.Set(middleware.HeaderAPIKey, workerKey)
				return req
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "object key without storage",
			req: func(t *testing.T) *http.Request {
				return jsonRequest("/v1/documents/process", workerKey, `{"object_key":"TENANT_02/r.png"}`)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "processing failure",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, workerKey, "r.png", "image/png", pngHeader)
			},
			procErr:    errors.Join(domain.ErrProcessing, errors.New("vision backend down")),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "pdf the extractor cannot read",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, workerKey, "r.pdf", "application/pdf", []byte("%PDF-1.7"))
			},
			procErr:    fmt.Errorf("%w: extraction: %w", domain.ErrProcessing, fmt.Errorf("%w: vision extraction cannot read %q", domain.ErrUnsupportedDocument, "application/pdf")),
			wantStatus: http.StatusBadRequest,
			wantDetail: `processing failed: extraction: unsupported document type: vision extraction cannot read "application/pdf"`,
		},
		{
			name: "authorization failure from service",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, workerKey, "r.png", "image/png", pngHeader)
			},
			procErr:    identity.ErrAuthorization,
			wantStatus: http.StatusForbidden,
			wantDetail: "Insufficient Permissions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &MockProcessor{ProcessFunc: func(_ context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error) {
				if tt.procErr != nil {
					return nil, tt.procErr
				}
				return approvedResult(cmd), nil
			}}
			rec := httptest.NewRecorder()
			NewRouter(proc, nil, nil, testOptions(t)).ServeHTTP(rec, tt.req(t))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decodeDetail(t, rec))
			}
		})
	}
}

func TestRouter_Process_ObjectKey(t *testing.T) {
	var fetched string
	src := &MockDocumentSource{FetchFunc: func(_ context.Context, key string) (domain.Document, error) {
		fetched = key
		if key == "TENANT_02/missing.png" {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{Name: "r.png", ContentType: "image/png", Data: pngHeader}, nil
	}}
	proc := &MockProcessor{ProcessFunc: func(_ context.Context, cmd appreceipts.ProcessCommand) (*appreceipts.ProcessResult, error) {
		return approvedResult(cmd), nil
	}}
	h := NewRouter(proc, src, nil, testOptions(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest("/v1/documents/process", workerKey, `{"object_key":"TENANT_02/2025/r.png"}`))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "TENANT_02/2025/r.png", fetched)
	assert.Equal(t, pngHeader, proc.last.Document.Data)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest("/v1/documents/process", workerKey, `{"object_key":"TENANT_02/missing.png"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest("/v1/documents/process", workerKey, `{"object_key":"../secrets"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest("/v1/documents/process", workerKey, `{"object_key":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type MockFailureRepo struct {
	ListFunc func(ctx context.Context, tenant string, limit int) ([]*reflections.Failure, error)
}

func (m *MockFailureRepo) Save(context.Context, *reflections.Failure) error { return nil }

func (m *MockFailureRepo) ListByTenant(ctx context.Context, tenant string, limit int) ([]*reflections.Failure, error) {
	return m.ListFunc(ctx, tenant, limit)
}

func TestRouter_ReflectionFailures(t *testing.T) {
	var gotTenant string
	var gotLimit int
	repo := &MockFailureRepo{ListFunc: func(_ context.Context, tenant string, limit int) ([]*reflections.Failure, error) {
		gotTenant, gotLimit = tenant, limit
		return []*reflections.Failure{{ID: "f1", TenantID: tenant, Kind: reflections.KindTimeout}}, nil
	}}
	h := NewRouter(&MockProcessor{}, nil, repo, testOptions(t))

	get := func(key, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			req.Header.Set(middleware.HeaderAPIKey, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get(adminKey, "/v1/TENANT_02/reflection-failures?limit=5000")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "TENANT_02", gotTenant)
	assert.Equal(t, maxFailuresPage, gotLimit)
	var list []reflections.Failure
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, reflections.KindTimeout, list[0].Kind)

	assert.Equal(t, http.StatusForbidden, get(workerKey, "/v1/TENANT_02/reflection-failures").Code)
	assert.Equal(t, http.StatusForbidden, get("", "/v1/TENANT_02/reflection-failures").Code)
	assert.Equal(t, http.StatusBadRequest, get(adminKey, "/v1/bad%20tenant/reflection-failures").Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := NewRouter(&MockProcessor{}, nil, nil, testOptions(t))
	req := httptest.NewRequest(http.MethodOptions, "/v1/documents/process", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.HeaderAPIKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReflectionRouter(t *testing.T) {
	refl := &MockReflector{ReflectFunc: func(_ context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error) {
		if req.ValidationRules == "explode" {
			return domain.ReflectionResult{}, ai.ErrQuotaExceeded
		}
		return domain.ReflectionResult{RefinedData: req.DataPayload, WasModified: false, Notes: "ok"}, nil
	}}
	h := NewReflectionRouter(refl, testOptions(t))
	const payload = `{"data_payload":{"merchant":"Costco","amount":150,"date":"2026-01-01"},"validation_rules":"%s"}`

	tests := []struct {
		name       string
		key        string
		body       string
		wantStatus int
	}{
		{name: "admin", key: adminKey, body: strings.Replace(payload, "%s", "Date must be past.", 1), wantStatus: http.StatusOK},
		{name: "worker is refused", key: workerKey, body: strings.Replace(payload, "%s", "Date must be past.", 1), wantStatus: http.StatusForbidden},
		{name: "no key", body: strings.Replace(payload, "%s", "Date must be past.", 1), wantStatus: http.StatusForbidden},
		{name: "empty rules", key: adminKey, body: strings.Replace(payload, "%s", "", 1), wantStatus: http.StatusBadRequest},
		{name: "missing payload", key: adminKey, body: `{"validation_rules":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "upstream failure", key: adminKey, body: strings.Replace(payload, "%s", "explode", 1), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, jsonRequest("/reflect", tt.key, tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				var res domain.ReflectionResult
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
				assert.Equal(t, "ok", res.Notes)
				assert.Equal(t, "Costco", res.RefinedData["merchant"])
			}
		})
	}
}

// TestPipeline_EndToEnd runs the processor against a live reflector using the
// deterministic fallback strategy.
func TestPipeline_EndToEnd(t *testing.T) {
	opts := testOptions(t)
	clock := application.FixedClock{T: time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC)}

	reflector := httptest.NewServer(NewReflectionRouter(reflection.NewService(reflection.Select(nil, clock), nil), opts))
	defer reflector.Close()

	svc := &appreceipts.Service{
		Extractor: mock.Extractor{},
		Reflector: reflectclient.New(reflector.URL+"/reflect", adminKey, 5*time.Second),
		Clock:     clock,
	}
	h := NewRouter(svc, nil, nil, opts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, workerKey, "receipt.png", "image/png", pngHeader))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Costco", got["merchant"])
	assert.Equal(t, 150.0, got["amount"])
	assert.Equal(t, reflection.FallbackDate, got["date"])
	assert.Equal(t, "REVIEW_REQUIRED", got["compliance_status"])
	assert.Len(t, got["ui_blocks"], 2)

	meta, ok := got["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u_bot_01", meta["processed_by"])
	assert.Equal(t, appreceipts.RouteHealed, meta["route"])
	assert.Equal(t, identity.RoleWorker, meta["role"])
	assert.Equal(t, "TENANT_02", meta["tenant_id"])
	assert.Equal(t, appreceipts.ReflectionHealed, meta["reflection"])
}

// TestPipeline_ReflectorDown checks that an unreachable reflector does not
// fail the request.
func TestPipeline_ReflectorDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	svc := &appreceipts.Service{
		Extractor: mock.Extractor{},
		Reflector: reflectclient.New(url+"/reflect", adminKey, time.Second),
	}
	rec := httptest.NewRecorder()
	NewRouter(svc, nil, nil, testOptions(t)).ServeHTTP(rec, uploadRequest(t, workerKey, "receipt.png", "image/png", pngHeader))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2026-01-01", got["date"])
	meta := got["meta"].(map[string]any)
	assert.Equal(t, appreceipts.RouteDirect, meta["route"])
	assert.Equal(t, appreceipts.ReflectionFailed, meta["reflection"])
}
