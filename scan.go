package worklog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// RecordView is one raw record seen by ScanFile.
type RecordView[T any] struct {
	Offset  int64
	Status  Status
	TxID    TxID
	Payload []byte
	Item    T
	// Err is set when the payload could not be decoded or the status is unknown.
	Err error
}

// ScanSummary counts what ScanFile saw.
type ScanSummary struct {
	Records    int64
	Complete   int64
	Incomplete int64
	Corrupt    int64
	TornBytes  int64
}

// ScanFile reads every record of a log file without modifying it, including
// COMPLETE ones. A torn trailing record is reported in TornBytes. Scanning
// stops at the first error returned by fn.
func ScanFile[T any](path string, hook Hook[T], fn func(RecordView[T]) error) (ScanSummary, error) {
	var summary ScanSummary

	file, err := os.Open(path)
	if err != nil {
		return summary, fmt.Errorf("worklog: open %s: %w", path, err)
	}
	defer file.Close()

	size := hook.EntrySize()
	codec := hook.NewCodec()
	rec := make([]byte, RecordSize(size))
	r := bufio.NewReaderSize(file, 64*len(rec))

	var off int64
	for {
		n, err := io.ReadFull(r, rec)
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			summary.TornBytes = int64(n)
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("worklog: read %s at %d: %w", path, off, err)
		}

		view := RecordView[T]{
			Offset:  off,
			Status:  Status(rec[0]),
			TxID:    TxID(binary.BigEndian.Uint32(rec[statusSize+size:])),
			Payload: append([]byte(nil), rec[statusSize:statusSize+size]...),
			Item:    hook.NewItem(),
		}
		summary.Records++
		switch {
		case !view.Status.valid():
			view.Err = fmt.Errorf("worklog: unknown status %d", rec[0])
		default:
			view.Err = codec.Decode(view.Payload, &view.Item)
		}
		switch {
		case view.Err != nil:
			summary.Corrupt++
		case view.Status == StatusComplete:
			summary.Complete++
		default:
			summary.Incomplete++
		}

		if fn != nil {
			if err := fn(view); err != nil {
				return summary, err
			}
		}
		off += int64(len(rec))
	}
}
