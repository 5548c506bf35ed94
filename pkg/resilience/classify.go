// Package resilience wraps step-handler invocations with error
// classification, bounded retries and a per-dependency circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies a step error for retry and fallback decisions.
type FailureKind string

const (
	FailureNetworkTimeout FailureKind = "network_timeout"
	FailureServiceCrash   FailureKind = "service_crash"
	FailureDatabaseError  FailureKind = "database_error"
	FailureRateLimit      FailureKind = "api_rate_limit"
	FailureValidation     FailureKind = "validation"
	FailureUnknown        FailureKind = "unknown"
)

// Retryable reports whether errors of this kind are worth retrying.
// Validation failures and unclassified errors short-circuit immediately.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureNetworkTimeout, FailureServiceCrash, FailureDatabaseError, FailureRateLimit:
		return true
	default:
		return false
	}
}

// FallbackStrategy hints what the caller should do once retries are
// exhausted or skipped.
func (k FailureKind) FallbackStrategy() string {
	switch k {
	case FailureNetworkTimeout:
		return "retry"
	case FailureServiceCrash:
		return "restart_service"
	case FailureDatabaseError:
		return "reconnect_database"
	case FailureRateLimit:
		return "backoff_and_retry"
	default:
		return "abort"
	}
}

// StepError tags an underlying error with its failure kind. Step handlers
// return these so the failure policy can classify without string matching.
type StepError struct {
	Kind FailureKind
	Err  error
}

// NewStepError wraps err with an explicit classification.
func NewStepError(kind FailureKind, err error) *StepError {
	return &StepError{Kind: kind, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the handler.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Classify maps an error to its failure kind. Explicit StepError tags win;
// context deadlines and net timeouts are network timeouts; everything else
// is unknown and therefore not retried.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetworkTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureNetworkTimeout
	}

	return FailureUnknown
}

// IsRetryable reports whether the failure policy should retry this error.
// Breaker rejections are never retried: the dependency is known to be down.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	return Classify(err).Retryable()
}
