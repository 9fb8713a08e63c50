package worklog

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
)

// FailureAction defines how a failed attempt should be handled.
type FailureAction int

const (
	// FailureRetry retries the entry after a backoff sleep.
	FailureRetry FailureAction = iota
	// FailureDead moves the entry to the fail log without further attempts.
	FailureDead
)

// Failure describes one failed executor attempt.
type Failure struct {
	TxID    TxID
	Offset  int64
	Attempt int
	Err     error
}

// FailureHandler is notified about every failed attempt.
type FailureHandler func(ctx context.Context, failure Failure)

// FailureClassifier decides whether a failure is retryable.
type FailureClassifier func(ctx context.Context, failure Failure) FailureAction

// Permanent wraps err so the default classifier dead-letters it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func defaultFailureClassifier(_ context.Context, failure Failure) FailureAction {
	var permanent *backoff.PermanentError
	if errors.As(failure.Err, &permanent) {
		return FailureDead
	}
	return FailureRetry
}
