package mock

import (
	"context"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// Extractor stands in for the vision backend when none is configured. It
// returns the same low-confidence draft with a future date for every
// document, which exercises the reflection path end to end.
type Extractor struct{}

func (Extractor) Extract(_ context.Context, doc domain.Document) (domain.Draft, error) {
	return domain.Draft{
		domain.FieldMerchant:   "Costco",
		domain.FieldAmount:     150.00,
		domain.FieldDate:       "2026-01-01",
		domain.FieldConfidence: 0.75,
		"source_document":      doc.Name,
	}, nil
}
