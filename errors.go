package worklog

import "errors"

var (
	// ErrNoEntries signals that the log has no unread incomplete records.
	ErrNoEntries = errors.New("worklog has no unread entries")
	// ErrNotStarted is returned by log operations before Start or after Close.
	ErrNotStarted = errors.New("worklog is not started")
	// ErrAlreadyStarted is returned when Start is called twice without Close.
	ErrAlreadyStarted = errors.New("worklog is already started")
	// ErrLogBroken is returned after an I/O fault made the log unusable.
	ErrLogBroken = errors.New("worklog is broken by an earlier i/o fault")
	// ErrNilEntry is returned when a nil entry is passed to WriteCompleted.
	ErrNilEntry = errors.New("worklog entry is nil")
	// ErrAlreadyCompleted is returned when an entry is completed twice.
	ErrAlreadyCompleted = errors.New("worklog entry is already completed")
	// ErrForeignEntry is returned when an entry read from another log is completed.
	ErrForeignEntry = errors.New("worklog entry belongs to another log")
	// ErrStaleEntry is returned when an entry read before the last Close is completed.
	ErrStaleEntry = errors.New("worklog entry was read before the log was restarted")
	// ErrPayloadSize is returned when a codec buffer does not match the entry size.
	ErrPayloadSize = errors.New("worklog payload size mismatch")
	// ErrLayoutMismatch is returned when an item does not match the hook layout.
	ErrLayoutMismatch = errors.New("worklog item layout mismatch")
	// ErrInvalidLayout is returned for empty layouts or unknown field kinds.
	ErrInvalidLayout = errors.New("worklog layout is invalid")
	// ErrNonNumericField is returned when an item field is not a number.
	ErrNonNumericField = errors.New("worklog item field is not numeric")
	// ErrFieldOverflow is returned when a value does not fit its field kind.
	ErrFieldOverflow = errors.New("worklog item field overflows its kind")
	// ErrFieldCount is returned when the number of values differs from the layout.
	ErrFieldCount = errors.New("worklog item field count mismatch")
	// ErrInvalidState is returned for lifecycle calls made in the wrong worker state.
	ErrInvalidState = errors.New("worklog worker is in the wrong state")
	// ErrExecutorPanic indicates that an executor panicked during an attempt.
	ErrExecutorPanic = errors.New("worklog executor panic")
)
