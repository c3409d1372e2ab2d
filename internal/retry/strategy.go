// Package retry provides retry strategies for handling transient failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/enmassa-dl/enmassa/pkg/errors"
)

// Strategy defines the interface for retry strategies.
type Strategy interface {
	// ShouldRetry determines if an operation should be retried based on the error and attempt number
	ShouldRetry(err error, attempt int) bool

	// NextDelay calculates the delay before the next retry attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of retry attempts allowed
	MaxAttempts() int
}

// ExponentialStrategy implements exponential backoff with optional jitter.
// The delay doubles (by default) on every attempt, capped at MaxDelay.
type ExponentialStrategy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	JitterFactor  float64 // How much randomness to add (0.0 to 1.0)
	RetryChecker  func(error) bool
}

// NewExponentialStrategy creates a new exponential backoff strategy with
// sensible defaults.
func NewExponentialStrategy() *ExponentialStrategy {
	return &ExponentialStrategy{
		MaxRetries:    3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		JitterFactor:  0.1,
		RetryChecker:  errors.IsRetryable,
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func (s *ExponentialStrategy) WithMaxRetries(maxRetries int) *ExponentialStrategy {
	newStrategy := *s
	newStrategy.MaxRetries = maxRetries

	return &newStrategy
}

// WithBaseDelay sets the base delay for the first retry.
func (s *ExponentialStrategy) WithBaseDelay(baseDelay time.Duration) *ExponentialStrategy {
	newStrategy := *s
	newStrategy.BaseDelay = baseDelay

	return &newStrategy
}

// WithMaxDelay sets the maximum delay between retries.
func (s *ExponentialStrategy) WithMaxDelay(maxDelay time.Duration) *ExponentialStrategy {
	newStrategy := *s
	newStrategy.MaxDelay = maxDelay

	return &newStrategy
}

// WithJitter enables or disables jitter and sets the jitter factor.
func (s *ExponentialStrategy) WithJitter(enabled bool, factor float64) *ExponentialStrategy {
	newStrategy := *s
	newStrategy.Jitter = enabled
	newStrategy.JitterFactor = factor

	return &newStrategy
}

// WithRetryChecker sets a custom function to determine if an error should be retried.
func (s *ExponentialStrategy) WithRetryChecker(checker func(error) bool) *ExponentialStrategy {
	newStrategy := *s
	newStrategy.RetryChecker = checker

	return &newStrategy
}

// ShouldRetry determines if an operation should be retried.
func (s *ExponentialStrategy) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxRetries {
		return false
	}

	if s.RetryChecker != nil {
		return s.RetryChecker(err)
	}

	return errors.IsRetryable(err)
}

// NextDelay calculates the delay for the next retry attempt using
// exponential backoff.
func (s *ExponentialStrategy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return s.BaseDelay
	}

	// For very large attempt numbers, avoid overflow by returning MaxDelay early
	if attempt > 50 {
		delay := s.MaxDelay
		if s.Jitter {
			delay = s.addJitter(delay)
		}
		return delay
	}

	power := math.Pow(s.BackoffFactor, float64(attempt))

	// Check for potential overflow before converting to Duration
	if power > float64(s.MaxDelay)/float64(s.BaseDelay) {
		delay := s.MaxDelay
		if s.Jitter {
			delay = s.addJitter(delay)
		}
		return delay
	}

	delay := time.Duration(float64(s.BaseDelay) * power)

	if delay > s.MaxDelay || delay < 0 {
		delay = s.MaxDelay
	}

	if s.Jitter {
		delay = s.addJitter(delay)
	}

	return delay
}

// MaxAttempts returns the maximum number of retry attempts.
func (s *ExponentialStrategy) MaxAttempts() int {
	return s.MaxRetries
}

// addJitter adds randomness to the delay to prevent thundering herd problems.
func (s *ExponentialStrategy) addJitter(delay time.Duration) time.Duration {
	// #nosec G404 - Jitter for retry delays doesn't require cryptographic randomness
	jitter := time.Duration(float64(delay) * s.JitterFactor * (rand.Float64()*2 - 1))
	jitteredDelay := delay + jitter

	if jitteredDelay < delay/2 {
		jitteredDelay = delay / 2
	}

	if jitteredDelay > delay*2 {
		jitteredDelay = delay * 2
	}

	return jitteredDelay
}

// LinearStrategy implements linear backoff: the delay grows by a fixed
// increment on every attempt. Page and metadata fetches use this with
// Increment == BaseDelay, so attempt n waits (n+1) x BaseDelay.
type LinearStrategy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	RetryChecker func(error) bool
}

// NewLinearStrategy creates a new linear backoff strategy.
func NewLinearStrategy() *LinearStrategy {
	return &LinearStrategy{
		MaxRetries:   3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Increment:    1 * time.Second,
		RetryChecker: errors.IsRetryable,
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func (s *LinearStrategy) WithMaxRetries(maxRetries int) *LinearStrategy {
	newStrategy := *s
	newStrategy.MaxRetries = maxRetries

	return &newStrategy
}

// WithBaseDelay sets the base delay for the first retry.
func (s *LinearStrategy) WithBaseDelay(baseDelay time.Duration) *LinearStrategy {
	newStrategy := *s
	newStrategy.BaseDelay = baseDelay

	return &newStrategy
}

// WithMaxDelay sets the maximum delay between retries.
func (s *LinearStrategy) WithMaxDelay(maxDelay time.Duration) *LinearStrategy {
	newStrategy := *s
	newStrategy.MaxDelay = maxDelay

	return &newStrategy
}

// WithIncrement sets the linear increment for each retry.
func (s *LinearStrategy) WithIncrement(increment time.Duration) *LinearStrategy {
	newStrategy := *s
	newStrategy.Increment = increment

	return &newStrategy
}

// WithRetryChecker sets a custom function to determine if an error should be retried.
func (s *LinearStrategy) WithRetryChecker(checker func(error) bool) *LinearStrategy {
	newStrategy := *s
	newStrategy.RetryChecker = checker

	return &newStrategy
}

// ShouldRetry determines if an operation should be retried.
func (s *LinearStrategy) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxRetries {
		return false
	}

	if s.RetryChecker != nil {
		return s.RetryChecker(err)
	}

	return errors.IsRetryable(err)
}

// NextDelay calculates the delay for the next retry attempt using linear
// backoff.
func (s *LinearStrategy) NextDelay(attempt int) time.Duration {
	delay := s.BaseDelay + time.Duration(attempt)*s.Increment

	if delay > s.MaxDelay {
		delay = s.MaxDelay
	}

	return delay
}

// MaxAttempts returns the maximum number of retry attempts.
func (s *LinearStrategy) MaxAttempts() int {
	return s.MaxRetries
}

// DownloadStrategy returns the backoff used by the download workers.
func DownloadStrategy() Strategy {
	return NewExponentialStrategy().
		WithMaxRetries(4).
		WithBaseDelay(1 * time.Second).
		WithMaxDelay(30 * time.Second).
		WithJitter(true, 0.25)
}

// PageFetchStrategy returns the backoff used by the harvester for catalog
// page fetches.
func PageFetchStrategy() Strategy {
	return NewLinearStrategy().
		WithMaxRetries(3).
		WithBaseDelay(1 * time.Second).
		WithIncrement(1 * time.Second)
}

// MetadataStrategy returns the backoff used by the metadata resolver.
func MetadataStrategy() Strategy {
	return NewLinearStrategy().
		WithMaxRetries(3).
		WithBaseDelay(500 * time.Millisecond).
		WithIncrement(500 * time.Millisecond)
}

// ExecuteWithRetry executes an operation with the specified strategy,
// honoring context cancellation between attempts.
func ExecuteWithRetry(ctx context.Context, strategy Strategy, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= strategy.MaxAttempts(); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !strategy.ShouldRetry(err, attempt) {
			break
		}

		if attempt >= strategy.MaxAttempts() {
			break
		}

		delay := strategy.NextDelay(attempt)
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
