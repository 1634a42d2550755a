package receipts

import "context"

// Extractor produces one draft from a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (Draft, error)
}

// Reflector asks the reflection service to critique and fix a draft.
type Reflector interface {
	Reflect(ctx context.Context, req ReflectionRequest) (ReflectionResult, error)
}

// DocumentSource loads a stored document by key.
type DocumentSource interface {
	Fetch(ctx context.Context, key string) (Document, error)
}
