package receipts

import "errors"

var (
	// ErrProcessing wraps any unexpected failure during extraction or compliance evaluation.
	ErrProcessing = errors.New("processing failed")
	// ErrInvalidDraft means the draft is missing a required field or holds an out-of-range value.
	ErrInvalidDraft = errors.New("invalid extraction draft")
	// ErrEmptyDocument means the request carried no document bytes.
	ErrEmptyDocument = errors.New("document is empty")
	// ErrDocumentNotFound means the requested object key does not exist in storage.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnsupportedDocument means the configured extractor cannot read this content type.
	ErrUnsupportedDocument = errors.New("unsupported document type")
)
