package receipts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well-known draft fields. Extractors may add any others.
const (
	FieldMerchant   = "merchant"
	FieldAmount     = "amount"
	FieldDate       = "date"
	FieldConfidence = "confidence"
)

// Draft is an extraction result: the well-known fields plus whatever else
// the extractor produced. It is kept as a field map so that a refinement can
// overwrite individual fields without dropping unrelated ones.
type Draft map[string]any

// Clone returns a shallow copy of the draft.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns a copy of d with every field of refined written over it.
func (d Draft) Merge(refined Draft) Draft {
	out := d.Clone()
	for k, v := range refined {
		out[k] = v
	}
	return out
}

// Merchant returns the merchant name, or "" when absent.
func (d Draft) Merchant() string {
	s, _ := d[FieldMerchant].(string)
	return s
}

// Date returns the raw date field and whether it was present as a string.
func (d Draft) Date() (string, bool) {
	s, ok := d[FieldDate].(string)
	return s, ok
}

// Amount returns the non-negative transaction amount.
func (d Draft) Amount() (float64, error) {
	v, ok := d[FieldAmount]
	if !ok {
		return 0, fmt.Errorf("%w: amount is missing", ErrInvalidDraft)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: amount: %v", ErrInvalidDraft, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: amount %.2f is negative", ErrInvalidDraft, f)
	}
	return f, nil
}

// Confidence returns the extraction confidence in [0, 1].
func (d Draft) Confidence() (float64, error) {
	v, ok := d[FieldConfidence]
	if !ok {
		return 0, fmt.Errorf("%w: confidence is missing", ErrInvalidDraft)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: confidence: %v", ErrInvalidDraft, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidDraft, f)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
