package receipts

// ReflectionRequest is the wire body accepted by the reflection service.
type ReflectionRequest struct {
	DataPayload     Draft  `json:"data_payload"`
	ValidationRules string `json:"validation_rules"`
}

// ReflectionResult is a possibly-corrected payload plus what happened to it.
type ReflectionResult struct {
	RefinedData Draft  `json:"refined_data"`
	WasModified bool   `json:"was_modified"`
	Notes       string `json:"notes"`
}
