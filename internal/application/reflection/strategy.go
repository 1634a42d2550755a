package reflection

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/bryanwahyu/receipt-pipeline/internal/application"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/ai"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
)

// FallbackDate replaces dates whose year lies in the future.
const FallbackDate = "2025-12-06"

const (
	notesUnavailable = "AI Unavailable (Env Var Missing). Checks passed."
	notesFixedDate   = "Mock AI: Fixed future date error."
)

// Select picks the strategy once: generative when a critic is configured,
// deterministic fallback otherwise.
func Select(critic ai.Critic, clock application.Clock) Strategy {
	if critic != nil {
		return Generative{Critic: critic}
	}
	return Fallback{Clock: clock}
}

// Generative delegates to an external critique-and-fix backend. Failures are
// returned as ai.ErrUpstream and never fall back.
type Generative struct {
	Critic ai.Critic
}

func (Generative) Mode() Mode { return ModeGenerative }

func (g Generative) Reflect(ctx context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error) {
	res, err := g.Critic.Critique(ctx, req)
	if err != nil {
		if errors.Is(err, ai.ErrUpstream) {
			return domain.ReflectionResult{}, err
		}
		return domain.ReflectionResult{}, fmt.Errorf("%w: %v", ai.ErrUpstream, err)
	}
	if res.RefinedData == nil {
		return domain.ReflectionResult{}, fmt.Errorf("%w: response has no refined_data", ai.ErrUpstream)
	}
	return res, nil
}

// Fallback applies one auditable rule without any network access: a date in
// a year after the clock's current year is rewritten to FallbackDate.
type Fallback struct {
	Clock application.Clock
}

func (Fallback) Mode() Mode { return ModeFallback }

var yearPattern = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

func (f Fallback) Reflect(_ context.Context, req domain.ReflectionRequest) (domain.ReflectionResult, error) {
	refined := req.DataPayload.Clone()
	res := domain.ReflectionResult{RefinedData: refined, Notes: notesUnavailable}

	date, ok := refined.Date()
	if !ok {
		return res, nil
	}
	m := yearPattern.FindStringSubmatch(date)
	if m == nil {
		return res, nil
	}
	year, err := strconv.Atoi(m[1])
	if err != nil || year <= f.now().Year() {
		return res, nil
	}

	refined[domain.FieldDate] = FallbackDate
	res.WasModified = true
	res.Notes = notesFixedDate
	return res, nil
}

func (f Fallback) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock.Now()
}
