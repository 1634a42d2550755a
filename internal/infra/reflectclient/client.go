package reflectclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
)

// HeaderAPIKey carries the service-to-service credential.
const HeaderAPIKey = "X-API-Key"

const maxErrorBody = 512

// Error is a classified reflection call failure.
type Error struct {
	kind   reflections.FailureKind
	status int
	err    error
}

func (e *Error) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("reflection %s (status %d): %v", e.kind, e.status, e.err)
	}
	return fmt.Sprintf("reflection %s: %v", e.kind, e.err)
}

func (e *Error) Unwrap() error                 { return e.err }
func (e *Error) Kind() reflections.FailureKind { return e.kind }
func (e *Error) StatusCode() int               { return e.status }

// Client calls the reflection service over HTTP.
type Client struct {
	url        string
	serviceKey string
	http       *http.Client
}

// New returns a client. The timeout caps every call in addition to any
// deadline on the caller's context.
func New(url, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

// Reflect implements receipts.Reflector.
func (c *Client) Reflect(ctx context.Context, in domain.ReflectionRequest) (domain.ReflectionResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.ReflectionResult{}, &Error{kind: reflections.KindUnknown, err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.ReflectionResult{}, &Error{kind: reflections.KindUnknown, err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ReflectionResult{}, &Error{kind: transportKind(ctx, err), err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.ReflectionResult{}, &Error{
			kind:   reflections.KindStatus,
			status: resp.StatusCode,
			err:    errors.New(strings.TrimSpace(string(snippet))),
		}
	}

	var out struct {
		RefinedData domain.Draft `json:"refined_data"`
		WasModified *bool        `json:"was_modified"`
		Notes       string       `json:"notes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ReflectionResult{}, &Error{kind: reflections.KindMalformed, status: resp.StatusCode, err: err}
	}
	if out.WasModified == nil {
		return domain.ReflectionResult{}, &Error{kind: reflections.KindMalformed, status: resp.StatusCode, err: errors.New("was_modified missing")}
	}
	if *out.WasModified && out.RefinedData == nil {
		return domain.ReflectionResult{}, &Error{kind: reflections.KindMalformed, status: resp.StatusCode, err: errors.New("refined_data missing")}
	}
	return domain.ReflectionResult{RefinedData: out.RefinedData, WasModified: *out.WasModified, Notes: out.Notes}, nil
}

func transportKind(ctx context.Context, err error) reflections.FailureKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return reflections.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return reflections.KindTimeout
	}
	return reflections.KindNetwork
}
