package resilience

import (
	"context"
	"time"

	"github.com/eapache/go-resiliency/retrier"
)

// Defaults applied when a policy leaves fields zero.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// RetryPolicy retries retryable errors up to MaxRetries times with Delay
// between attempts, exponentially growing when Exponential is set. A work
// function therefore runs at most MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries  int
	Delay       time.Duration
	Exponential bool
}

// DefaultRetryPolicy is the engine-wide policy when a step declares none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay, Exponential: true}
}

// Run executes work under the policy. Non-retryable errors short-circuit on
// the first attempt; context cancellation stops the backoff wait.
func (p RetryPolicy) Run(ctx context.Context, work func(ctx context.Context) error) error {
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	delay := p.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var backoff []time.Duration
	if p.Exponential {
		backoff = retrier.ExponentialBackoff(retries, delay)
	} else {
		backoff = retrier.ConstantBackoff(retries, delay)
	}

	return retrier.New(backoff, stepClassifier{}).RunCtx(ctx, work)
}

// stepClassifier adapts the failure taxonomy to the retrier contract.
type stepClassifier struct{}

func (stepClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}

	if IsRetryable(err) {
		return retrier.Retry
	}

	return retrier.Fail
}
