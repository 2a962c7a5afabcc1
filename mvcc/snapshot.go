package mvcc

// Snapshot is a visibility horizon: it captures a commit timestamp and
// decides which committed versions a reader at that point may observe.
// Collaborators maintaining derived views (such as a search index filtering
// documents by commit time) apply the same predicate the engine uses.
type Snapshot struct {
	ts uint64
}

// SnapshotAt returns a snapshot fixed at the given commit timestamp.
func SnapshotAt(ts uint64) Snapshot {
	return Snapshot{ts: ts}
}

// TS returns the snapshot's commit timestamp.
func (s Snapshot) TS() uint64 {
	return s.ts
}

// Visible reports whether a version committed at commitTS is observable
// from this snapshot.
func (s Snapshot) Visible(commitTS uint64) bool {
	return commitTS <= s.ts
}

// CurrentSnapshot returns a snapshot of everything committed so far.
func (e *Engine) CurrentSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{ts: e.commitTS}
}

// TxSnapshot returns the snapshot an active transaction reads at.
func (e *Engine) TxSnapshot(txID string) (Snapshot, error) {
	tx, err := e.lookupActive(txID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ts: tx.startTS}, nil
}
