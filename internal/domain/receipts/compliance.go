package receipts

// ComplianceStatus enum
type ComplianceStatus string

const (
	StatusApproved       ComplianceStatus = "APPROVED"
	StatusReviewRequired ComplianceStatus = "REVIEW_REQUIRED"
)

// Decision is the outcome of the spending policy for one transaction.
type Decision struct {
	Status         ComplianceStatus `json:"status"`
	ReviewArtifact []UIBlock        `json:"ui_blocks,omitempty"`
}

// UIBlock is a chat-style layout block (section or actions) used to ask a
// human reviewer for a decision.
type UIBlock struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	Elements []Element   `json:"elements,omitempty"`
}

// TextObject is a typed text payload ("mrkdwn" or "plain_text").
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Element is an interactive element inside an actions block.
type Element struct {
	Type  string     `json:"type"`
	Text  TextObject `json:"text"`
	Value string     `json:"value"`
}
