package receipts

// Document is an uploaded receipt image or PDF.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}
