package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/receipt-pipeline/internal/application"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/compliance"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/reflections"
)

const (
	// ConfidenceThreshold splits routing: drafts scoring below it are reflected.
	ConfidenceThreshold = 0.85
	// DefaultReflectionTimeout bounds the call to the reflection service.
	DefaultReflectionTimeout = 30 * time.Second
	// DefaultValidationRules is sent with every reflection request.
	DefaultValidationRules = "Date must be past. Amount positive."

	failureSaveTimeout = 2 * time.Second
)

// Pipeline stages, used as structured log fields.
const (
	StageReceived          = "RECEIVED"
	StageExtracted         = "EXTRACTED"
	StageDirect            = "DIRECT"
	StageReflecting        = "REFLECTING"
	StageComplianceChecked = "COMPLIANCE_CHECKED"
	StageResponded         = "RESPONDED"
)

// Route markers reported in response metadata.
const (
	RouteDirect = "Direct Extraction"
	RouteHealed = "Reflection Engine (Healed)"
)

// Reflection outcomes reported in response metadata.
const (
	ReflectionSkipped   = "skipped"
	ReflectionHealed    = "healed"
	ReflectionUnchanged = "unchanged"
	ReflectionFailed    = "failed"
)

// Service orchestrates one receipt: extraction, optional reflection and the
// compliance check. It holds no per-request state and is safe for concurrent use.
type Service struct {
	Extractor domain.Extractor
	Reflector domain.Reflector
	// Failures is optional; absorbed reflection failures are logged either way.
	Failures reflections.Repository
	Clock    application.Clock
	Logger   *slog.Logger

	ReflectionTimeout time.Duration
	ValidationRules   string
}

// ProcessCommand is one inbound "process document" request.
type ProcessCommand struct {
	Identity  identity.Identity
	Document  domain.Document
	RequestID string
}

// Process runs the pipeline. Authorization errors are returned as-is;
// extraction and compliance failures are wrapped in domain.ErrProcessing.
// Reflection failures never fail the request.
func (s *Service) Process(ctx context.Context, cmd ProcessCommand) (*ProcessResult, error) {
	if err := auth.Authorize(cmd.Identity, identity.RoleWorker); err != nil {
		return nil, err
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.New().String()
	}
	log := s.logger().With("request_id", cmd.RequestID, "user_id", cmd.Identity.UserID, "tenant_id", cmd.Identity.TenantID)
	log.InfoContext(ctx, "processing document", "stage", StageReceived, "document", cmd.Document.Name, "bytes", len(cmd.Document.Data))

	if len(cmd.Document.Data) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, domain.ErrEmptyDocument)
	}
	draft, err := s.Extractor.Extract(ctx, cmd.Document)
	if err != nil {
		return nil, fmt.Errorf("%w: extraction: %w", domain.ErrProcessing, err)
	}
	confidence, err := draft.Confidence()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	log.InfoContext(ctx, "draft extracted", "stage", StageExtracted, "confidence", confidence)

	route, outcome, notes := RouteDirect, ReflectionSkipped, ""
	if confidence < ConfidenceThreshold {
		log.WarnContext(ctx, "low confidence, requesting reflection", "stage", StageReflecting, "confidence", confidence)
		draft, outcome, notes = s.reflect(ctx, log, cmd, draft)
		if outcome == ReflectionHealed {
			route = RouteHealed
		}
	} else {
		log.InfoContext(ctx, "confidence sufficient", "stage", StageDirect)
	}

	amount, err := draft.Amount()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	decision := compliance.Evaluate(amount, draft.Merchant())
	log.InfoContext(ctx, "compliance evaluated", "stage", StageComplianceChecked, "status", decision.Status, "amount", amount)

	res := &ProcessResult{
		Draft:    draft,
		Decision: decision,
		Meta: Meta{
			ProcessedBy:     cmd.Identity.UserID,
			Route:           route,
			Role:            auth.GrantingRole(cmd.Identity, identity.RoleWorker),
			TenantID:        cmd.Identity.TenantID,
			RequestID:       cmd.RequestID,
			Reflection:      outcome,
			ReflectionNotes: notes,
		},
	}
	log.InfoContext(ctx, "document processed", "stage", StageResponded, "route", route)
	return res, nil
}

// reflect performs the best-effort correction. Any failure is logged,
// recorded and absorbed; the original draft is returned unchanged.
func (s *Service) reflect(ctx context.Context, log *slog.Logger, cmd ProcessCommand, draft domain.Draft) (domain.Draft, string, string) {
	timeout := s.ReflectionTimeout
	if timeout <= 0 {
		timeout = DefaultReflectionTimeout
	}
	rules := s.ValidationRules
	if rules == "" {
		rules = DefaultValidationRules
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.now()
	res, err := s.Reflector.Reflect(callCtx, domain.ReflectionRequest{
		DataPayload:     draft.Clone(),
		ValidationRules: rules,
	})
	if err != nil {
		kind := reflections.Classify(err)
		log.ErrorContext(ctx, "reflection service failed", "kind", kind, "error", err)
		s.recordFailure(ctx, log, cmd, kind, err, s.now().Sub(start))
		return draft, ReflectionFailed, ""
	}
	if !res.WasModified {
		return draft, ReflectionUnchanged, res.Notes
	}
	merged := draft.Merge(res.RefinedData)
	if err := checkRefinement(draft, merged); err != nil {
		log.ErrorContext(ctx, "reflection returned unusable data", "kind", reflections.Classify(err), "error", err)
		s.recordFailure(ctx, log, cmd, reflections.Classify(err), err, s.now().Sub(start))
		return draft, ReflectionFailed, ""
	}
	log.InfoContext(ctx, "reflection fixed data", "notes", res.Notes)
	return merged, ReflectionHealed, res.Notes
}

// rejectedRefinement is a corrected draft that is worse than the original.
type rejectedRefinement struct{ err error }

func (e rejectedRefinement) Error() string               { return "rejected refinement: " + e.err.Error() }
func (e rejectedRefinement) Unwrap() error               { return e.err }
func (rejectedRefinement) Kind() reflections.FailureKind { return reflections.KindMalformed }

// checkRefinement refuses a merge that broke the amount or blanked a merchant
// the extractor had found.
func checkRefinement(original, merged domain.Draft) error {
	if _, err := merged.Amount(); err != nil {
		return rejectedRefinement{err}
	}
	if original.Merchant() != "" && merged.Merchant() == "" {
		return rejectedRefinement{fmt.Errorf("%w: merchant was removed", domain.ErrInvalidDraft)}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, log *slog.Logger, cmd ProcessCommand, kind reflections.FailureKind, cause error, took time.Duration) {
	if s.Failures == nil {
		return
	}
	f := &reflections.Failure{
		ID:         uuid.New().String(),
		TenantID:   cmd.Identity.TenantID,
		RequestID:  cmd.RequestID,
		UserID:     cmd.Identity.UserID,
		Kind:       kind,
		StatusCode: statusCodeOf(cause),
		Message:    cause.Error(),
		DurationMS: took.Milliseconds(),
		CreatedAt:  s.now(),
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureSaveTimeout)
	defer cancel()
	if err := s.Failures.Save(saveCtx, f); err != nil {
		log.WarnContext(ctx, "failed to record reflection failure", "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
