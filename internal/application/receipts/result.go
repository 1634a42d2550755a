package receipts

import (
	"encoding/json"
	"errors"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// Meta identifies who processed a document and how.
type Meta struct {
	ProcessedBy     string `json:"processed_by"`
	Route           string `json:"route"`
	Role            string `json:"role"`
	TenantID        string `json:"tenant_id,omitempty"`
	RequestID       string `json:"request_id"`
	Reflection      string `json:"reflection"`
	ReflectionNotes string `json:"reflection_notes,omitempty"`
}

// ProcessResult is the unified response: the draft fields at top level plus
// compliance_status, ui_blocks and meta.
type ProcessResult struct {
	Draft    domain.Draft
	Decision domain.Decision
	Meta     Meta
}

func (r ProcessResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Draft)+3)
	for k, v := range r.Draft {
		out[k] = v
	}
	out["compliance_status"] = r.Decision.Status
	if r.Decision.ReviewArtifact != nil {
		out["ui_blocks"] = r.Decision.ReviewArtifact
	}
	out["meta"] = r.Meta
	return json.Marshal(out)
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

func statusCodeOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}
