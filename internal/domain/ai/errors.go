package ai

import (
	"errors"
	"fmt"
)

// ErrUpstream means the generative backend failed or returned an unusable answer.
var ErrUpstream = errors.New("upstream model failure")

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
// It is a kind of ErrUpstream.
var ErrQuotaExceeded = fmt.Errorf("%w: ai quota exceeded", ErrUpstream)
