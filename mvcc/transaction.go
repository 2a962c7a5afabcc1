package mvcc

import (
	"sync"
	"time"
)

// Status represents the lifecycle state of a transaction.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCommitted:
		return "COMMITTED"
	case StatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// transaction is the engine-side record of a logical transaction: its
// snapshot, its private write buffer, and its status. The write buffer is
// owned exclusively by this transaction and is never read by any other.
type transaction struct {
	id        string
	startTS   uint64
	startTime time.Time

	// mu guards writes and status. The caller may drive one transaction
	// from several goroutines; the engine lock does not cover the buffer.
	mu     sync.Mutex
	writes map[string][]byte
	status Status
}

func newTransaction(id string, startTS uint64, startTime time.Time) *transaction {
	return &transaction{
		id:        id,
		startTS:   startTS,
		startTime: startTime,
		writes:    make(map[string][]byte),
		status:    StatusActive,
	}
}

// buffered returns the buffered value for key, if any. Caller holds tx.mu.
func (t *transaction) buffered(key string) ([]byte, bool) {
	v, ok := t.writes[key]
	return v, ok
}
