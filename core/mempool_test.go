package core

import (
	"errors"
	"fmt"
	"testing"
)

func pendingTx(from string, fee uint64, ts int64) *Transaction {
	tx := &Transaction{Type: TxTransfer, From: from, To: "sink", Amount: 1, Fee: fee, Nonce: 1, TimestampMS: ts}
	if _, err := tx.ComputeID(); err != nil {
		panic(err)
	}
	return tx
}

//-------------------------------------------------------------
// Priority ordering
//-------------------------------------------------------------

func TestMempoolTopOrdersByFeeThenTimestamp(t *testing.T) {
	mp := NewMempool(testLogger(), NewBus(), 0)
	low := pendingTx("a", 100, 5)
	highLate := pendingTx("b", 900, 50)
	highEarly := pendingTx("c", 900, 10)
	for _, tx := range []*Transaction{low, highLate, highEarly} {
		if err := mp.Add(tx); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	top := mp.Top(3)
	if len(top) != 3 {
		t.Fatalf("top len %d", len(top))
	}
	if top[0].ID != highEarly.ID || top[1].ID != highLate.ID || top[2].ID != low.ID {
		t.Fatalf("wrong priority order: %s %s %s", top[0].ID, top[1].ID, top[2].ID)
	}
}

func TestMempoolRejectsDuplicates(t *testing.T) {
	mp := NewMempool(testLogger(), NewBus(), 0)
	tx := pendingTx("a", 100, 1)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mp.Add(tx); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate accepted: %v", err)
	}
}

//-------------------------------------------------------------
// Bounded size with lowest-priority eviction
//-------------------------------------------------------------

func TestMempoolEvictsLowestPriorityAtCapacity(t *testing.T) {
	mp := NewMempool(testLogger(), NewBus(), 2)
	floor := pendingTx("a", 10, 1)
	mid := pendingTx("b", 20, 1)
	if err := mp.Add(floor); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mp.Add(mid); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Below the floor: refused outright.
	if err := mp.Add(pendingTx("c", 5, 1)); err == nil {
		t.Fatalf("sub-floor transaction accepted at capacity")
	}

	// Above the floor: lowest resident yields.
	best := pendingTx("d", 100, 1)
	if err := mp.Add(best); err != nil {
		t.Fatalf("eviction add: %v", err)
	}
	if mp.Contains(floor.ID) {
		t.Fatalf("lowest-priority transaction not evicted")
	}
	if !mp.Contains(best.ID) || !mp.Contains(mid.ID) {
		t.Fatalf("wrong eviction victim")
	}
}

//-------------------------------------------------------------
// TTL expiry
//-------------------------------------------------------------

func TestMempoolClearExpired(t *testing.T) {
	mp := NewMempool(testLogger(), NewBus(), 0)
	forever := pendingTx("a", 10, 1)
	mortal := pendingTx("b", 10, 1)
	mortal.ValidUntilMS = 100
	if _, err := mortal.ComputeID(); err != nil {
		t.Fatalf("id: %v", err)
	}
	if err := mp.Add(forever); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := mp.Add(mortal); err != nil {
		t.Fatalf("add: %v", err)
	}

	if n := mp.ClearExpired(99); n != 0 {
		t.Fatalf("premature expiry of %d txs", n)
	}
	if n := mp.ClearExpired(101); n != 1 {
		t.Fatalf("expired %d txs want 1", n)
	}
	if !mp.Contains(forever.ID) {
		t.Fatalf("transaction without TTL expired")
	}
}

//-------------------------------------------------------------
// Event emission
//-------------------------------------------------------------

func TestMempoolEmitsTransactionAdded(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(EventTransactionAdded, func(ev Event) { got = append(got, ev.Tx.ID) })

	mp := NewMempool(testLogger(), bus, 0)
	for i := 0; i < 3; i++ {
		if err := mp.Add(pendingTx(fmt.Sprintf("s%d", i), 10, int64(i))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if len(got) != 3 {
		t.Fatalf("transaction_added fired %d times want 3", len(got))
	}
}
