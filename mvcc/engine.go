// Package mvcc implements the transactional multi-version store at the core
// of corvusdb. Many concurrent logical transactions read a consistent
// snapshot of keyed data and atomically commit or discard buffered writes;
// every committed write becomes a new immutable version appended to the
// key's history rather than overwriting it.
//
// Commit timestamps are a monotonically increasing sequence assigned under
// the engine lock, so every commit is a single linearizable point and no two
// commits share a timestamp. A transaction reads at the timestamp captured
// when it began (snapshot isolation) and always sees its own buffered
// writes. Concurrent writers to the same key are not conflict-checked: the
// last transaction to commit wins.
package mvcc

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"corvusdb/wal"
)

// Options configures an Engine.
type Options struct {
	// Log is the durability intent log. Nil means volatile: committed
	// state lives only in process memory.
	Log *wal.Manager

	// Clock supplies wall-clock commit times. Nil means the real clock.
	Clock clock.Clock

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics defaults to a fresh, unregistered set of counters.
	Metrics *Metrics
}

// Engine is the transactional multi-version store. All methods are safe for
// concurrent use. The zero value is not usable; construct with NewEngine.
type Engine struct {
	// mu guards store, transactions, commitTS and closed. Chains are
	// append-only and mutated only under the write lock, so readers
	// holding the read lock never observe a partial commit.
	mu           sync.RWMutex
	store        map[string]*chain
	transactions map[string]*transaction
	commitTS     uint64
	closed       bool

	log     *wal.Manager
	clock   clock.Clock
	logger  *zap.Logger
	metrics *Metrics

	hookMu sync.RWMutex
	hooks  []CommitHook
}

// CommitEvent describes one key made visible by a commit. Collaborators
// such as a search indexer consume these to maintain derived views filtered
// by the same snapshot predicate the engine uses.
type CommitEvent struct {
	Key           string
	Value         []byte
	VersionNumber uint64
	CommitTS      uint64
	CommitTime    time.Time
	TxID          string
}

// CommitHook receives commit events. Hooks run synchronously after the
// commit is visible; the events of one commit are always delivered together
// and in key order.
type CommitHook func(CommitEvent)

// NewEngine creates an engine with empty state.
func NewEngine(opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Engine{
		store:        make(map[string]*chain),
		transactions: make(map[string]*transaction),
		log:          opts.Log,
		clock:        clk,
		logger:       logger,
		metrics:      metrics,
	}
}

// Begin starts a new transaction and returns its id. The transaction reads
// at a snapshot of everything committed before this call.
func (e *Engine) Begin() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", ErrClosed
	}

	tx := newTransaction(uuid.NewString(), e.commitTS, e.clock.Now())
	e.transactions[tx.id] = tx
	e.metrics.Begins.Inc()

	return tx.id, nil
}

// Get returns the latest committed value for key, or false if no version
// has ever been committed.
func (e *Engine) Get(key string) ([]byte, bool) {
	e.metrics.Reads.Inc()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolveLocked(key, e.commitTS)
}

// GetAt returns the value visible at the given commit timestamp, or false
// if no version existed as of that snapshot.
func (e *Engine) GetAt(key string, ts uint64) ([]byte, bool) {
	e.metrics.Reads.Inc()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolveLocked(key, ts)
}

// GetTx reads key inside a transaction: the transaction's own buffered
// write if present, otherwise the version visible at its snapshot.
// Returns ErrUnknownTransaction if the id is invalid or terminal.
func (e *Engine) GetTx(key, txID string) ([]byte, bool, error) {
	tx, err := e.lookupActive(txID)
	if err != nil {
		return nil, false, err
	}

	tx.mu.Lock()
	if tx.status != StatusActive {
		tx.mu.Unlock()
		return nil, false, ErrUnknownTransaction
	}
	if v, ok := tx.buffered(key); ok {
		out := copyBytes(v)
		tx.mu.Unlock()
		e.metrics.Reads.Inc()
		return out, true, nil
	}
	snapshot := tx.startTS
	tx.mu.Unlock()

	e.metrics.Reads.Inc()

	e.mu.RLock()
	defer e.mu.RUnlock()
	value, ok := e.resolveLocked(key, snapshot)
	return value, ok, nil
}

// Put buffers a write in the transaction. The value is invisible to every
// other reader until commit; a later Put for the same key in the same
// transaction replaces the buffered value.
func (e *Engine) Put(key string, value []byte, txID string) error {
	tx, err := e.lookupActive(txID)
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != StatusActive {
		return ErrUnknownTransaction
	}

	tx.writes[key] = copyBytes(value)
	e.metrics.Writes.Inc()
	return nil
}

// Commit atomically applies the transaction's buffered writes. The buffer
// is first persisted to the durability log; only then is one new commit
// timestamp assigned and a version appended per key, all sharing that
// timestamp. A failed durability write aborts the transaction and no
// version is created. The log record is cleared once the versions are
// applied.
func (e *Engine) Commit(txID string) error {
	tx, err := e.lookupActive(txID)
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != StatusActive {
		return ErrUnknownTransaction
	}

	keys := make([]string, 0, len(tx.writes))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	logged := len(keys) > 0 && e.log != nil
	if logged {
		records := make([]wal.Record, 0, len(keys))
		for _, k := range keys {
			records = append(records, wal.Record{Key: k, Value: tx.writes[k]})
		}
		if err := e.log.Write(tx.id, records); err != nil {
			e.deregister(tx)
			tx.status = StatusAborted
			tx.writes = nil
			e.metrics.WALFailures.Inc()
			e.logger.Error("durability write failed, transaction aborted",
				zap.String("tx", txID), zap.Error(err))
			return fmt.Errorf("mvcc: durability write for transaction %s: %w", txID, err)
		}
	}

	events := make([]CommitEvent, 0, len(keys))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		tx.status = StatusAborted
		tx.writes = nil
		if logged {
			if err := e.log.Delete(txID); err != nil {
				e.logger.Warn("could not clear durability record",
					zap.String("tx", txID), zap.Error(err))
			}
		}
		return ErrClosed
	}

	e.commitTS++
	ts := e.commitTS
	now := e.clock.Now()

	for _, k := range keys {
		c := e.store[k]
		if c == nil {
			c = &chain{}
			e.store[k] = c
		}
		v := Version{
			Value:      tx.writes[k],
			Number:     c.nextNumber(),
			CommitTS:   ts,
			CommitTime: now,
			TxID:       tx.id,
		}
		c.append(v)
		events = append(events, CommitEvent{
			Key:           k,
			Value:         copyBytes(v.Value),
			VersionNumber: v.Number,
			CommitTS:      ts,
			CommitTime:    now,
			TxID:          tx.id,
		})
	}

	tx.status = StatusCommitted
	delete(e.transactions, tx.id)
	e.mu.Unlock()

	// The versions are applied; the intent record has done its job. A
	// failed delete is only noise: recovery re-applies idempotently.
	if logged {
		if err := e.log.Delete(txID); err != nil {
			e.logger.Warn("could not clear durability record, recovery will re-check it",
				zap.String("tx", txID), zap.Error(err))
		}
	}

	e.metrics.Commits.Inc()
	e.logger.Debug("transaction committed",
		zap.String("tx", txID), zap.Uint64("commit_ts", ts), zap.Int("keys", len(keys)))

	e.notify(events)
	return nil
}

// Rollback discards the transaction's buffered writes. No version is
// created and every touched chain is exactly as it was before the
// transaction began. Rolling back an unknown or already-finished
// transaction returns ErrUnknownTransaction.
func (e *Engine) Rollback(txID string) error {
	tx, err := e.lookupActive(txID)
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != StatusActive {
		return ErrUnknownTransaction
	}

	e.deregister(tx)
	tx.status = StatusAborted
	tx.writes = nil

	// Clear any pending intent record; a no-op in the usual case where
	// the transaction never reached the durability hand-off.
	if e.log != nil {
		if err := e.log.Delete(txID); err != nil {
			e.logger.Warn("could not clear durability record on rollback",
				zap.String("tx", txID), zap.Error(err))
		}
	}

	e.metrics.Rollbacks.Inc()
	e.logger.Debug("transaction rolled back", zap.String("tx", txID))
	return nil
}

// ChainLength returns the number of committed versions for key. Callers
// use this as a monotonic per-key change counter.
func (e *Engine) ChainLength(key string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c := e.store[key]
	if c == nil {
		return 0
	}
	return c.length()
}

// History returns a copy of the committed version chain for key, oldest
// first. Returns nil if the key has never been committed.
func (e *Engine) History(key string) []Version {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c := e.store[key]
	if c == nil {
		return nil
	}
	return c.history()
}

// ActiveTransactions returns the number of transactions that have begun
// but not yet committed or rolled back.
func (e *Engine) ActiveTransactions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.transactions)
}

// OnCommit registers a hook invoked with one event per key after each
// commit becomes visible.
func (e *Engine) OnCommit(hook CommitHook) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hooks = append(e.hooks, hook)
}

// Close aborts all active transactions and rejects further operations.
// Committed chains are left in memory for the owner to inspect or discard.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	active := make([]*transaction, 0, len(e.transactions))
	for _, tx := range e.transactions {
		active = append(active, tx)
	}
	e.transactions = make(map[string]*transaction)
	e.mu.Unlock()

	for _, tx := range active {
		tx.mu.Lock()
		if tx.status == StatusActive {
			tx.status = StatusAborted
			tx.writes = nil
		}
		tx.mu.Unlock()
	}

	e.logger.Debug("engine closed", zap.Int("aborted", len(active)))
	return nil
}

// resolveLocked returns the value visible at ts. Caller holds e.mu.
func (e *Engine) resolveLocked(key string, ts uint64) ([]byte, bool) {
	c := e.store[key]
	if c == nil {
		return nil, false
	}
	v, ok := c.latestAtOrBefore(ts)
	if !ok {
		return nil, false
	}
	return copyBytes(v.Value), true
}

// lookupActive resolves a transaction id to its active transaction.
func (e *Engine) lookupActive(txID string) (*transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	tx, ok := e.transactions[txID]
	if !ok {
		return nil, ErrUnknownTransaction
	}
	return tx, nil
}

// deregister removes the transaction from the table. Caller holds tx.mu.
func (e *Engine) deregister(tx *transaction) {
	e.mu.Lock()
	delete(e.transactions, tx.id)
	e.mu.Unlock()
}

// notify delivers commit events to all registered hooks.
func (e *Engine) notify(events []CommitEvent) {
	if len(events) == 0 {
		return
	}

	e.hookMu.RLock()
	hooks := e.hooks
	e.hookMu.RUnlock()

	for _, hook := range hooks {
		for _, event := range events {
			hook(event)
		}
	}
}
