package mvcc

import (
	"bytes"
	"testing"
)

func testChain(commitTSs ...uint64) *chain {
	c := &chain{}
	for _, ts := range commitTSs {
		c.append(Version{
			Value:    []byte{byte(ts)},
			Number:   c.nextNumber(),
			CommitTS: ts,
		})
	}
	return c
}

func TestChain_LatestAtOrBefore(t *testing.T) {
	c := testChain(2, 5, 9)

	cases := []struct {
		ts   uint64
		want uint64
		ok   bool
	}{
		{0, 0, false},
		{1, 0, false},
		{2, 2, true},
		{3, 2, true},
		{5, 5, true},
		{8, 5, true},
		{9, 9, true},
		{100, 9, true},
	}
	for _, tc := range cases {
		v, ok := c.latestAtOrBefore(tc.ts)
		if ok != tc.ok {
			t.Errorf("ts=%d: expected ok=%v, got %v", tc.ts, tc.ok, ok)
			continue
		}
		if ok && v.CommitTS != tc.want {
			t.Errorf("ts=%d: expected version at %d, got %d", tc.ts, tc.want, v.CommitTS)
		}
	}
}

func TestChain_LatestAtOrBeforeEmpty(t *testing.T) {
	c := &chain{}
	if _, ok := c.latestAtOrBefore(1 << 40); ok {
		t.Error("Empty chain has no visible version")
	}
}

func TestChain_NextNumberIsDense(t *testing.T) {
	c := &chain{}
	for want := uint64(1); want <= 4; want++ {
		if got := c.nextNumber(); got != want {
			t.Fatalf("Expected next number %d, got %d", want, got)
		}
		c.append(Version{Number: want, CommitTS: want})
	}
}

func TestChain_HasTx(t *testing.T) {
	c := &chain{}
	c.append(Version{Number: 1, CommitTS: 1, TxID: "tx-a"})
	c.append(Version{Number: 2, CommitTS: 2, TxID: "tx-b"})

	if !c.hasTx("tx-a") || !c.hasTx("tx-b") {
		t.Error("Expected both committers to be found")
	}
	if c.hasTx("tx-c") {
		t.Error("Unknown committer should not be found")
	}
}

func TestChain_HistoryIsACopy(t *testing.T) {
	c := testChain(1, 2)

	h := c.history()
	h[0].Value[0] = 0xFF
	h[1] = Version{}

	if !bytes.Equal(c.versions[0].Value, []byte{1}) {
		t.Error("Mutating a history value must not touch the chain")
	}
	if c.versions[1].CommitTS != 2 {
		t.Error("Mutating a history entry must not touch the chain")
	}
}
