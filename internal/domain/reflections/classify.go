package reflections

import (
	"context"
	"errors"
	"net"
)

// Classified is implemented by errors that already know their failure kind.
type Classified interface {
	Kind() FailureKind
}

// Classify maps an error from a reflection call to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}
