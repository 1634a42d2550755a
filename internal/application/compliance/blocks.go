package compliance

import (
	"fmt"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// ApprovalBlocks renders a review request: an alert section followed by
// approve/reject buttons.
func ApprovalBlocks(merchant string, amount float64, alert string) []domain.UIBlock {
	return []domain.UIBlock{
		{
			Type: "section",
			Text: &domain.TextObject{
				Type: "mrkdwn",
				Text: fmt.Sprintf("🚨 *Compliance Alert*\n*Merchant:* %s\n*Amount:* $%.2f\n*Alert:* %s", merchant, amount, alert),
			},
		},
		{
			Type: "actions",
			Elements: []domain.Element{
				{Type: "button", Text: domain.TextObject{Type: "plain_text", Text: "Approve"}, Value: "approve"},
				{Type: "button", Text: domain.TextObject{Type: "plain_text", Text: "Reject"}, Value: "reject"},
			},
		},
	}
}
