package mvcc

import (
	"fmt"

	"go.uber.org/zap"

	"corvusdb/wal"
)

// Recover replays durability intent records left behind by commits that
// crashed after the log write but before the versions were applied. It
// returns the number of transactions whose writes were re-applied.
//
// Replay is idempotent, not blind: a record whose keys already carry a
// version from the same transaction id was applied before the crash (the
// record just wasn't cleared), so those keys are skipped. All re-applied
// writes of one record share a single fresh commit timestamp, then the
// record is deleted.
//
// Call Recover after constructing the engine and before serving traffic.
func (e *Engine) Recover() (int, error) {
	if e.log == nil {
		return 0, nil
	}

	pending, err := e.log.Pending()
	if err != nil {
		return 0, fmt.Errorf("mvcc: scan durability log: %w", err)
	}

	recovered := 0
	for _, txID := range pending {
		records, err := e.log.Read(txID)
		if err != nil {
			return recovered, fmt.Errorf("mvcc: read durability record %s: %w", txID, err)
		}

		applied, err := e.replay(txID, records)
		if err != nil {
			return recovered, err
		}
		if applied > 0 {
			recovered++
		}

		if err := e.log.Delete(txID); err != nil {
			return recovered, fmt.Errorf("mvcc: clear durability record %s: %w", txID, err)
		}

		e.logger.Info("recovered transaction",
			zap.String("tx", txID),
			zap.Int("keys", len(records)),
			zap.Int("reapplied", applied))
	}

	return recovered, nil
}

// replay appends versions for the record's keys that are not already
// reflected in their chains. Returns how many keys were re-applied.
func (e *Engine) replay(txID string, records []wal.Record) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}

	// Filter out keys the crashed commit already applied.
	pending := records[:0:0]
	for _, rec := range records {
		if c := e.store[rec.Key]; c != nil && c.hasTx(txID) {
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	e.commitTS++
	ts := e.commitTS
	now := e.clock.Now()

	for _, rec := range pending {
		c := e.store[rec.Key]
		if c == nil {
			c = &chain{}
			e.store[rec.Key] = c
		}
		c.append(Version{
			Value:      copyBytes(rec.Value),
			Number:     c.nextNumber(),
			CommitTS:   ts,
			CommitTime: now,
			TxID:       txID,
		})
	}

	return len(pending), nil
}
