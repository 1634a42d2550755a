package reflections

import "time"

// FailureKind classifies why a reflection call did not produce a usable result.
type FailureKind string

const (
	KindTimeout   FailureKind = "timeout"
	KindNetwork   FailureKind = "network"
	KindStatus    FailureKind = "status"
	KindMalformed FailureKind = "malformed"
	KindUnknown   FailureKind = "unknown"
)

// Failure is an audit entry for a reflection call that was absorbed by the
// fail-open path. It never carries document contents.
type Failure struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	RequestID  string      `json:"request_id"`
	UserID     string      `json:"user_id"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Message    string      `json:"message"`
	DurationMS int64       `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
}
