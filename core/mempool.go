package core

// mempool.go – the bounded pool of ready-to-include transactions. Priority
// is fee-descending with timestamp-ascending tie-break; at capacity the
// lowest-priority resident is evicted in favour of a better newcomer.

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// DefaultMempoolSize bounds the pool when the node config does not.
const DefaultMempoolSize = 10_000

// NewMempool returns an empty pool. Size <= 0 falls back to the default.
func NewMempool(lg *log.Logger, bus *Bus, maxSize int) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMempoolSize
	}
	return &Mempool{
		logger:  lg,
		bus:     bus,
		maxSize: maxSize,
		items:   make(map[string]*Transaction),
	}
}

// higherPriority reports whether a outranks b for inclusion.
func higherPriority(a, b *Transaction) bool {
	if a.Fee != b.Fee {
		return a.Fee > b.Fee
	}
	return a.TimestampMS < b.TimestampMS
}

// Add inserts a signed transaction. Duplicates are rejected; at capacity
// the lowest-priority transaction yields if the newcomer outranks it. A
// successful insertion emits EventTransactionAdded.
func (mp *Mempool) Add(tx *Transaction) error {
	if err := tx.WellFormed(); err != nil {
		return err
	}
	if tx.ID == "" {
		if _, err := tx.ComputeID(); err != nil {
			return err
		}
	}

	mp.mu.Lock()
	if _, exists := mp.items[tx.ID]; exists {
		mp.mu.Unlock()
		return fmt.Errorf("%w: %s already pending", ErrDuplicate, tx.ID)
	}
	if len(mp.items) >= mp.maxSize {
		victim := mp.lowestLocked()
		if victim == nil || !higherPriority(tx, victim) {
			mp.mu.Unlock()
			return fmt.Errorf("mempool full (%d), tx %s below eviction floor", mp.maxSize, tx.ID)
		}
		delete(mp.items, victim.ID)
		if mp.logger != nil {
			mp.logger.WithFields(log.Fields{"evicted": victim.ID, "fee": victim.Fee}).Debug("mempool eviction")
		}
	}
	mp.items[tx.ID] = tx
	mp.mu.Unlock()

	// Publish outside the lock: subscribers may re-enter the pool.
	mp.bus.Publish(Event{Kind: EventTransactionAdded, Tx: tx})
	return nil
}

// lowestLocked returns the current eviction candidate. Caller holds mu.
func (mp *Mempool) lowestLocked() *Transaction {
	var victim *Transaction
	for _, tx := range mp.items {
		if victim == nil || higherPriority(victim, tx) {
			victim = tx
		}
	}
	return victim
}

// Top returns up to n transactions, highest priority first.
func (mp *Mempool) Top(n int) []*Transaction {
	mp.mu.Lock()
	all := make([]*Transaction, 0, len(mp.items))
	for _, tx := range mp.items {
		all = append(all, tx)
	}
	mp.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return higherPriority(all[i], all[j]) })
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Remove drops a transaction by id, typically after commit.
func (mp *Mempool) Remove(id string) {
	mp.mu.Lock()
	delete(mp.items, id)
	mp.mu.Unlock()
}

// Contains reports whether id is pending.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.Lock()
	_, ok := mp.items[id]
	mp.mu.Unlock()
	return ok
}

// Len returns the number of pending transactions.
func (mp *Mempool) Len() int {
	mp.mu.Lock()
	n := len(mp.items)
	mp.mu.Unlock()
	return n
}

// ClearExpired evicts transactions whose valid_until_ms has passed.
// Transactions without an explicit TTL never expire. Returns the eviction
// count.
func (mp *Mempool) ClearExpired(nowMS int64) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	removed := 0
	for id, tx := range mp.items {
		if tx.Expired(nowMS) {
			delete(mp.items, id)
			removed++
		}
	}
	if removed > 0 && mp.logger != nil {
		mp.logger.WithField("count", removed).Info("expired transactions evicted")
	}
	return removed
}
