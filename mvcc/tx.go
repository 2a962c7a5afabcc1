package mvcc

import "go.uber.org/zap"

// Tx is a handle binding an engine to one transaction id, used by the
// scoped helpers Update and View.
type Tx struct {
	engine *Engine
	id     string
}

// ID returns the transaction id.
func (t *Tx) ID() string {
	return t.id
}

// Get reads a key at the transaction's snapshot, seeing the transaction's
// own buffered writes.
func (t *Tx) Get(key string) ([]byte, bool, error) {
	return t.engine.GetTx(key, t.id)
}

// Put buffers a write in the transaction.
func (t *Tx) Put(key string, value []byte) error {
	return t.engine.Put(key, value, t.id)
}

// ChainLength returns the committed version count for key. Buffered writes
// of this transaction do not count until commit.
func (t *Tx) ChainLength(key string) int {
	return t.engine.ChainLength(key)
}

// Update runs fn inside a transaction and commits if fn returns nil. On a
// non-nil error or a panic the transaction is rolled back, so no exit path
// leaves buffered writes behind. The error from fn is returned unchanged.
func (e *Engine) Update(fn func(tx *Tx) error) error {
	id, err := e.Begin()
	if err != nil {
		return err
	}
	tx := &Tx{engine: e, id: id}

	defer func() {
		if p := recover(); p != nil {
			e.rollbackQuietly(id)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		e.rollbackQuietly(id)
		return err
	}
	return e.Commit(id)
}

// View runs fn inside a read-only transaction that is always rolled back,
// giving fn a stable snapshot across multiple reads. Writes made through
// the handle are discarded.
func (e *Engine) View(fn func(tx *Tx) error) error {
	id, err := e.Begin()
	if err != nil {
		return err
	}
	defer e.rollbackQuietly(id)

	return fn(&Tx{engine: e, id: id})
}

// rollbackQuietly rolls back if the transaction is still known; it is not
// an error for it to have finished already (e.g. a failed commit aborted it).
func (e *Engine) rollbackQuietly(id string) {
	if err := e.Rollback(id); err != nil && err != ErrUnknownTransaction {
		e.logger.Warn("rollback failed", zap.String("tx", id), zap.Error(err))
	}
}
