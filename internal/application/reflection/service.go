package reflection

import (
	"context"
	"log/slog"

	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// Mode names the active strategy.
type Mode string

const (
	ModeGenerative Mode = "generative"
	ModeFallback   Mode = "fallback"
)

// Strategy critiques and fixes a payload against free-text rules.
type Strategy interface {
	Mode() Mode
	Reflect(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error)
}

// Service is the reflection use-case. Callers must hold the admin role; the
// HTTP boundary enforces it, this type does not re-check.
type Service struct {
	strategy Strategy
	logger   *slog.Logger
}

func NewService(strategy Strategy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{strategy: strategy, logger: logger}
}

// Mode reports which strategy was selected at startup.
func (s *Service) Mode() Mode { return s.strategy.Mode() }

func (s *Service) Reflect(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error) {
	s.logger.InfoContext(ctx, "reflection invoked", "mode", s.strategy.Mode(), "fields", len(req.DataPayload))
	res, err := s.strategy.Reflect(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "reflection failed", "mode", s.strategy.Mode(), "error", err)
		return domain.ReflectionResult{}, err
	}
	s.logger.InfoContext(ctx, "reflection complete", "mode", s.strategy.Mode(), "was_modified", res.WasModified, "notes", res.Notes)
	return res, nil
}
