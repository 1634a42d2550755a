package ai

import (
	"context"

	"github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// Critic is a generative critique-and-fix backend.
type Critic interface {
	Critique(ctx context.Context, req receipts.ReflectionRequest) (receipts.ReflectionResult, error)
}
