package compliance

import (
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// SpendingLimit is the auto-approval ceiling. Amounts equal to it need review.
const SpendingLimit = 75.00

const reasonOverLimit = "Exceeds auto-approval limit"

// Evaluate applies the spending policy. It is pure: the same inputs always
// produce the same decision.
func Evaluate(amount float64, merchant string) domain.Decision {
	if amount >= SpendingLimit {
		return domain.Decision{
			Status:         domain.StatusReviewRequired,
			ReviewArtifact: ApprovalBlocks(merchant, amount, reasonOverLimit),
		}
	}
	return domain.Decision{Status: domain.StatusApproved}
}
