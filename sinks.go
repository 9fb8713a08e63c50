package worklog

import (
	"context"
	"time"
)

// Outcome is the result of one executor attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetry     Outcome = "retry"
	OutcomeDead      Outcome = "dead"
)

// Attempt is a journal row describing one executor attempt.
type Attempt struct {
	Log       string
	TxID      TxID
	Offset    int64
	Attempt   int
	Outcome   Outcome
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// AttemptRecorder receives every executor attempt. Errors are logged and ignored.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// DeadLetter describes an entry moved to the fail log.
type DeadLetter struct {
	Log       string
	TxID      TxID
	Offset    int64
	Payload   []byte
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// DeadLetterSink mirrors dead-lettered entries outside the fail log.
// Errors are logged and ignored; the fail log stays authoritative.
type DeadLetterSink interface {
	WriteDeadLetter(ctx context.Context, letter DeadLetter) error
}
