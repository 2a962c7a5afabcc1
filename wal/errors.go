package wal

import "errors"

// WAL-specific errors.
var (
	ErrNotFound         = errors.New("wal: no record for transaction")
	ErrInvalidTxID      = errors.New("wal: invalid transaction id")
	ErrInvalidRecord    = errors.New("wal: invalid record format")
	ErrChecksumMismatch = errors.New("wal: record checksum mismatch")
	ErrUnknownCodec     = errors.New("wal: unknown compression codec")
	ErrClosed           = errors.New("wal: manager is closed")
)
