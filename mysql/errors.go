package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("worklog mysql: db is required")
	// ErrExecutorRequired is returned when insert is called with a nil executor.
	ErrExecutorRequired = errors.New("worklog mysql: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("worklog mysql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("worklog mysql: invalid table name")
	// ErrLogNameRequired is returned when a dead letter has no log name.
	ErrLogNameRequired = errors.New("worklog mysql: log name is required")
	// ErrPayloadTooLarge is returned when a payload exceeds the column size.
	ErrPayloadTooLarge = errors.New("worklog mysql: payload too large")
	// ErrListLimitInvalid is returned when a list limit is not positive.
	ErrListLimitInvalid = errors.New("worklog mysql: list limit must be positive")
	// ErrCleanupBeforeRequired is returned when cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("worklog mysql: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("worklog mysql: cleanup limit must be non-negative")
	// ErrCleanupRetentionInvalid is returned when cleanup retention is not positive.
	ErrCleanupRetentionInvalid = errors.New("worklog mysql: cleanup retention must be positive")
)
