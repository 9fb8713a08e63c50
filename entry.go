package worklog

// TxID identifies the host transaction that produced an entry.
type TxID uint32

// Entry is a handle to one incomplete record returned by WorkLog.Next.
type Entry[T any] struct {
	item      T
	txID      TxID
	offset    int64
	log       *WorkLog[T]
	session   uint64
	completed bool
}

// Item returns the decoded payload.
func (e *Entry[T]) Item() T { return e.item }

// TxID returns the origin transaction id.
func (e *Entry[T]) TxID() TxID { return e.txID }

// Offset returns the byte offset of the record in the log file.
func (e *Entry[T]) Offset() int64 { return e.offset }
