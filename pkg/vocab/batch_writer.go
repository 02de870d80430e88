package vocab

import (
	"database/sql"
	"fmt"
)

// WriteFunc performs database writes inside a batch transaction.
type WriteFunc func(tx *sql.Tx) error

// ErrBatchWriterClosed is returned by Submit after Close.
var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

// BatchWriterError is a typed error for batch writer operations.
type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }

// BatchWriter buffers write operations and commits them in batches, one
// transaction per batch. Bulk vocabulary import goes through it so a
// thousand-term file does not open a thousand transactions.
type BatchWriter struct {
	db     *sql.DB
	cap    int
	buf    []WriteFunc
	closed bool
}

// NewBatchWriter creates a writer that flushes every bufferSize submissions.
func NewBatchWriter(db *sql.DB, bufferSize int) *BatchWriter {
	if bufferSize <= 0 {
		bufferSize = 50
	}
	return &BatchWriter{
		db:  db,
		cap: bufferSize,
		buf: make([]WriteFunc, 0, bufferSize),
	}
}

// Submit enqueues a write. A full buffer flushes before returning, so the
// caller sees batch errors at the submission that triggered them.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.cap {
		return bw.Flush()
	}
	return nil
}

// Flush commits buffered writes in a single transaction.
func (bw *BatchWriter) Flush() error {
	if len(bw.buf) == 0 {
		return nil
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.cap)

	tx, err := bw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d writes: %w", len(batch), err)
	}
	return nil
}

// Close flushes remaining writes and rejects further submissions.
func (bw *BatchWriter) Close() error {
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.closed = true
	return bw.Flush()
}
