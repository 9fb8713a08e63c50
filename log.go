package worklog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	statusSize = 1
	txIDSize   = 4
	fileMode   = 0o644
)

var completeMark = []byte{byte(StatusComplete)}

// RecordSize returns the on-disk width of one record for the given entry size.
func RecordSize(entrySize int) int {
	return statusSize + entrySize + txIDSize
}

// Stats is a snapshot of a WorkLog's cursors.
type Stats struct {
	Path         string
	Started      bool
	Recovered    bool
	Records      int64
	ReadOffset   int64
	AppendOffset int64
	Outstanding  int
}

// Drained reports whether every record was read and completed.
func (s Stats) Drained() bool {
	return s.Started && s.ReadOffset >= s.AppendOffset && s.Outstanding == 0
}

// WorkLog is an append-only file of fixed-size records.
// All methods are safe for concurrent use.
type WorkLog[T any] struct {
	path       string
	hook       Hook[T]
	codec      Codec[T]
	cfg        LogConfig
	entrySize  int
	recordSize int64

	mu          sync.Mutex
	file        *os.File
	session     uint64
	appendOff   int64
	readOff     int64
	outstanding int
	recovered   bool
	broken      error
	scratch     []byte
}

// NewWorkLog binds a log to path. The file is opened by Start.
func NewWorkLog[T any](path string, hook Hook[T], opts ...LogOption) *WorkLog[T] {
	if path == "" {
		panic("worklog: empty path")
	}
	if hook == nil {
		panic("worklog: nil Hook")
	}
	size := hook.EntrySize()
	if size <= 0 {
		panic("worklog: hook entry size must be positive")
	}

	var cfg LogConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults(path)

	return &WorkLog[T]{
		path:       path,
		hook:       hook,
		codec:      hook.NewCodec(),
		cfg:        cfg,
		entrySize:  size,
		recordSize: int64(RecordSize(size)),
		scratch:    make([]byte, RecordSize(size)),
	}
}

// Path returns the file path.
func (l *WorkLog[T]) Path() string { return l.path }

// Name returns the configured log name.
func (l *WorkLog[T]) Name() string { return l.cfg.Name }

// Hook returns the hook the log was created with.
func (l *WorkLog[T]) Hook() Hook[T] { return l.hook }

// Recovered reports whether the last Start truncated a torn record.
func (l *WorkLog[T]) Recovered() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recovered
}

// Start opens or creates the file and repairs a torn trailing record.
func (l *WorkLog[T]) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return ErrAlreadyStarted
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("worklog: create directory: %w", err)
	}

	file, err := l.open()
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("worklog: stat %s: %w", l.path, err)
	}

	size := info.Size()
	recovered := false
	if torn := size % l.recordSize; torn != 0 {
		size -= torn
		if err := file.Truncate(size); err != nil {
			_ = file.Close()
			return fmt.Errorf("worklog: truncate torn record: %w", err)
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return fmt.Errorf("worklog: sync after truncate: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("worklog: close after truncate: %w", err)
		}
		if file, err = l.open(); err != nil {
			return err
		}
		recovered = true
		l.cfg.Logger.Warn("worklog truncated torn record", "log", l.cfg.Name, "path", l.path, "torn_bytes", torn, "size", size)
	}

	l.file = file
	l.session++
	l.appendOff = size
	l.readOff = 0
	l.outstanding = 0
	l.recovered = recovered
	l.broken = nil
	l.cfg.Logger.Debug("worklog started", "log", l.cfg.Name, "path", l.path, "records", size/l.recordSize)
	return nil
}

func (l *WorkLog[T]) open() (*os.File, error) {
	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return nil, fmt.Errorf("worklog: open %s: %w", l.path, err)
	}
	return file, nil
}

// Add appends one INCOMPLETE record per item and syncs once.
// Nothing is written when any item fails to encode.
func (l *WorkLog[T]) Add(txID TxID, items ...T) error {
	if len(items) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.usable(); err != nil {
		return err
	}

	rs := int(l.recordSize)
	buf := make([]byte, len(items)*rs)
	for i, item := range items {
		rec := buf[i*rs : (i+1)*rs]
		rec[0] = byte(StatusIncomplete)
		if err := l.codec.Encode(rec[statusSize:statusSize+l.entrySize], item); err != nil {
			return fmt.Errorf("worklog: encode item %d: %w", i, err)
		}
		binary.BigEndian.PutUint32(rec[statusSize+l.entrySize:], uint32(txID))
	}

	if _, err := l.file.WriteAt(buf, l.appendOff); err != nil {
		return l.fail(fmt.Errorf("worklog: append: %w", err))
	}
	if err := l.file.Sync(); err != nil {
		return l.fail(fmt.Errorf("worklog: sync append: %w", err))
	}
	l.appendOff += int64(len(buf))
	return nil
}

// Next returns the next unread INCOMPLETE record, or ErrNoEntries.
// Records that cannot be decoded are skipped with a warning.
func (l *WorkLog[T]) Next() (*Entry[T], error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.usable(); err != nil {
		return nil, err
	}

	rec := l.scratch
	for l.readOff < l.appendOff {
		off := l.readOff
		n, err := l.file.ReadAt(rec, off)
		if n < len(rec) {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, l.fail(fmt.Errorf("worklog: read at %d: %w", off, err))
			}
			l.cfg.Logger.Warn("worklog skipped short record", "log", l.cfg.Name, "offset", off, "read", n)
			l.readOff = l.appendOff
			break
		}
		l.readOff += l.recordSize

		status := Status(rec[0])
		if status == StatusComplete {
			continue
		}
		if !status.valid() {
			l.cfg.Logger.Warn("worklog skipped record with unknown status", "log", l.cfg.Name, "offset", off, "status", rec[0])
			continue
		}

		item := l.hook.NewItem()
		if err := l.codec.Decode(rec[statusSize:statusSize+l.entrySize], &item); err != nil {
			l.cfg.Logger.Warn("worklog skipped undecodable record", "log", l.cfg.Name, "offset", off, "err", err)
			continue
		}
		l.outstanding++
		return &Entry[T]{
			item:    item,
			txID:    TxID(binary.BigEndian.Uint32(rec[statusSize+l.entrySize:])),
			offset:  off,
			log:     l,
			session: l.session,
		}, nil
	}
	return nil, ErrNoEntries
}

// WriteCompleted marks the entry's record COMPLETE and syncs.
func (l *WorkLog[T]) WriteCompleted(entry *Entry[T]) error {
	if entry == nil {
		return ErrNilEntry
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.log != l {
		return ErrForeignEntry
	}
	if err := l.usable(); err != nil {
		return err
	}
	if entry.session != l.session {
		return ErrStaleEntry
	}
	if entry.completed {
		return fmt.Errorf("%w: offset %d", ErrAlreadyCompleted, entry.offset)
	}

	if _, err := l.file.WriteAt(completeMark, entry.offset); err != nil {
		return l.fail(fmt.Errorf("worklog: mark complete at %d: %w", entry.offset, err))
	}
	if err := l.file.Sync(); err != nil {
		return l.fail(fmt.Errorf("worklog: sync completion: %w", err))
	}
	entry.completed = true
	l.outstanding--
	return nil
}

// Flush syncs the file to stable storage.
func (l *WorkLog[T]) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.usable(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return l.fail(fmt.Errorf("worklog: flush: %w", err))
	}
	return nil
}

// Stats returns a snapshot of the log cursors.
func (l *WorkLog[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Path:         l.path,
		Started:      l.file != nil,
		Recovered:    l.recovered,
		Records:      l.appendOff / l.recordSize,
		ReadOffset:   l.readOff,
		AppendOffset: l.appendOff,
		Outstanding:  l.outstanding,
	}
}

// Close syncs and closes the file. A fully drained file is then disposed of
// according to the configured Disposal; otherwise it is kept for recovery.
// Close on a log that is not started is a no-op.
func (l *WorkLog[T]) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	drained := l.broken == nil && l.readOff >= l.appendOff && l.outstanding == 0
	var syncErr error
	if l.broken == nil {
		syncErr = l.file.Sync()
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := errors.Join(syncErr, closeErr); err != nil {
		return fmt.Errorf("worklog: close %s: %w", l.path, err)
	}

	if !drained {
		l.cfg.Logger.Info("worklog kept for recovery", "log", l.cfg.Name, "path", l.path,
			"outstanding", l.outstanding, "unread_bytes", l.appendOff-l.readOff)
		return nil
	}
	return l.dispose()
}

func (l *WorkLog[T]) dispose() error {
	switch l.cfg.Disposal {
	case DisposalNone:
		return nil
	case DisposalArchive:
		target := fmt.Sprintf("%s.%d", l.path, l.cfg.Clock.Now().UnixMilli())
		if err := os.Rename(l.path, target); err != nil {
			return fmt.Errorf("worklog: archive %s: %w", l.path, err)
		}
		l.cfg.Logger.Info("worklog archived", "log", l.cfg.Name, "path", l.path, "archive", target)
		return nil
	default:
		err := os.Remove(l.path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			l.cfg.Logger.Debug("worklog deleted", "log", l.cfg.Name, "path", l.path)
			return nil
		}
		if l.cfg.Cleanup != nil {
			l.cfg.Cleanup.Add(l.path)
			l.cfg.Logger.Warn("worklog delete deferred to exit", "log", l.cfg.Name, "path", l.path, "err", err)
			return nil
		}
		return fmt.Errorf("worklog: delete %s: %w", l.path, err)
	}
}

func (l *WorkLog[T]) usable() error {
	if l.file == nil {
		return ErrNotStarted
	}
	if l.broken != nil {
		return fmt.Errorf("%w: %v", ErrLogBroken, l.broken)
	}
	return nil
}

func (l *WorkLog[T]) fail(err error) error {
	l.broken = err
	l.cfg.Logger.Error("worklog i/o fault", "log", l.cfg.Name, "path", l.path, "err", err)
	return err
}
