// Package delay provides the delay step handler, mostly used to pace calls
// against rate-limited services.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/resilience"
)

const maxDelay = 5 * time.Minute

// Handler waits for the configured duration, honoring context cancellation.
type Handler struct {
	Duration time.Duration
}

// NewHandler creates a delay handler from configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	var duration time.Duration

	if ms, ok := config["duration_ms"].(float64); ok {
		duration = time.Duration(ms) * time.Millisecond
	} else if seconds, ok := config["duration_seconds"].(float64); ok {
		duration = time.Duration(seconds * float64(time.Second))
	}

	if duration <= 0 {
		return nil, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("delay requires a positive 'duration_ms' or 'duration_seconds'"))
	}

	if duration > maxDelay {
		return nil, resilience.NewStepError(resilience.FailureValidation,
			fmt.Errorf("delay of %s exceeds the %s maximum", duration, maxDelay))
	}

	return &Handler{Duration: duration}, nil
}

func (h *Handler) Execute(ctx context.Context, _ *models.ExecutionContext) (*models.StepExecutionResult, error) {
	timer := time.NewTimer(h.Duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &models.StepExecutionResult{
		Success: true,
		Output: map[string]any{
			"delayed_ms": h.Duration.Milliseconds(),
		},
	}, nil
}
