package worklog

// Status is the first byte of every log record.
type Status uint8

const (
	// StatusIncomplete marks a record that has not been executed successfully yet.
	StatusIncomplete Status = 0
	// StatusComplete marks a record whose execution finished (or was dead-lettered).
	StatusComplete Status = 1
)

// String returns a lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

func (s Status) valid() bool {
	return s == StatusIncomplete || s == StatusComplete
}
