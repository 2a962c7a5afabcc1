package mvcc

import "errors"

// Engine errors.
var (
	// ErrUnknownTransaction is returned when a transaction id is not
	// registered or the transaction has already committed or aborted.
	ErrUnknownTransaction = errors.New("mvcc: unknown or finished transaction")

	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("mvcc: engine is closed")
)
