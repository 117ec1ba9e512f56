package httpclient

import (
	"context"
	"time"
)

const (
	// maxJitterFraction bounds the random jitter added on top of each backoff.
	maxJitterFraction = 0.3
	// maxBackoffShift caps the exponent so the delay cannot overflow.
	maxBackoffShift = 30
)

// Outcome is the retry loop's verdict on a single physical attempt.
type Outcome int

const (
	// OutcomeSuccess ends the call with a 2xx response.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable schedules another attempt unless attempts are spent.
	OutcomeRetryable
	// OutcomeNonRetryable ends the call without consuming further attempts.
	OutcomeNonRetryable
	// OutcomeFatal ends the call on a failure outside the HTTP exchange.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeNonRetryable:
		return "non_retryable"
	default:
		return "fatal"
	}
}

// Classify maps an attempt's status code or error onto an Outcome.
// A non-nil err takes precedence over statusCode.
func Classify(statusCode int, err error) Outcome {
	if err != nil {
		if IsErrorType(err, TransportError) {
			return OutcomeRetryable
		}
		return OutcomeFatal
	}
	switch {
	case IsSuccessStatus(statusCode):
		return OutcomeSuccess
	case IsRetryableStatus(statusCode):
		return OutcomeRetryable
	default:
		return OutcomeNonRetryable
	}
}

// BackoffDelay returns the wait after a failed attempt (1-based):
// base*2^(attempt-1) plus jitter of up to 30% of that value. rnd must return values in [0, 1).
func BackoffDelay(base time.Duration, attempt int, rnd func() float64) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	shift := min(attempt-1, maxBackoffShift)
	delay := base << shift
	if rnd == nil {
		return delay
	}
	jitter := time.Duration(float64(delay) * maxJitterFraction * rnd())
	return delay + jitter
}

// retryState lives for the duration of one logical call.
type retryState struct {
	attempt     int
	maxAttempts int
	baseBackoff time.Duration
	started     time.Time
}

func newRetryState(maxAttempts int, baseBackoff time.Duration) *retryState {
	return &retryState{maxAttempts: maxAttempts, baseBackoff: baseBackoff, started: time.Now()}
}

// next advances to the next attempt and reports whether one is allowed.
func (s *retryState) next() bool {
	if s.attempt >= s.maxAttempts {
		return false
	}
	s.attempt++
	return true
}

func (s *retryState) exhausted() bool {
	return s.attempt >= s.maxAttempts
}

func (s *retryState) backoff(rnd func() float64) time.Duration {
	return BackoffDelay(s.baseBackoff, s.attempt, rnd)
}

func (s *retryState) elapsed() time.Duration {
	return time.Since(s.started)
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
