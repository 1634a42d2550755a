package prompt

// GetExtractionSystemPrompt describes the receipt fields the vision call must return.
func GetExtractionSystemPrompt() string {
	return `You read photographed or scanned receipts. Respond with one valid JSON object only (no markdown, no code fences):
{
  "merchant": "<string>",
  "amount": <number, total paid, non-negative>,
  "date": "<YYYY-MM-DD>",
  "currency": "<ISO 4217 code if visible, else empty string>",
  "confidence": <number between 0 and 1, your confidence in the extraction>
}
If a field is unreadable, give your best guess and lower confidence accordingly.`
}

// GetExtractionUserPrompt is the text that accompanies the receipt image.
func GetExtractionUserPrompt(name string) string {
	return "Extract the receipt fields from the attached document: " + name
}
