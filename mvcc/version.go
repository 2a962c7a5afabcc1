package mvcc

import (
	"sort"
	"time"
)

// Version is one immutable committed value for a key. Versions are created
// only by commit and are never mutated or removed.
type Version struct {
	// Value is the committed payload.
	Value []byte

	// Number is the per-key version number, strictly increasing from 1
	// in commit order with no gaps.
	Number uint64

	// CommitTS is the engine-wide commit timestamp. All versions created
	// by one commit share the same CommitTS, and no two commits share one.
	CommitTS uint64

	// CommitTime is the wall-clock time of the commit. Informational:
	// visibility is decided by CommitTS.
	CommitTime time.Time

	// TxID is the id of the committing transaction.
	TxID string
}

// chain is the per-key append-only version history, ordered by Number
// (equivalently by CommitTS, both are monotone for a single key).
type chain struct {
	versions []Version
}

// append adds a committed version. Caller holds the engine write lock.
func (c *chain) append(v Version) {
	c.versions = append(c.versions, v)
}

// nextNumber returns the version number the next append will get.
func (c *chain) nextNumber() uint64 {
	return uint64(len(c.versions)) + 1
}

// latestAtOrBefore returns the newest version with CommitTS <= ts,
// or false if no version is visible at that snapshot.
func (c *chain) latestAtOrBefore(ts uint64) (Version, bool) {
	// First version newer than ts; the one before it is the answer.
	i := sort.Search(len(c.versions), func(i int) bool {
		return c.versions[i].CommitTS > ts
	})
	if i == 0 {
		return Version{}, false
	}
	return c.versions[i-1], true
}

// length returns the number of committed versions.
func (c *chain) length() int {
	return len(c.versions)
}

// hasTx reports whether any version was committed by the given transaction.
// Used by recovery to make replay idempotent.
func (c *chain) hasTx(txID string) bool {
	for i := range c.versions {
		if c.versions[i].TxID == txID {
			return true
		}
	}
	return false
}

// history returns a copy of the chain. Values are copied so callers cannot
// mutate committed state.
func (c *chain) history() []Version {
	out := make([]Version, len(c.versions))
	copy(out, c.versions)
	for i := range out {
		out[i].Value = copyBytes(out[i].Value)
	}
	return out
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
