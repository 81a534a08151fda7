package core

// message_pool.go – time-batched inclusion for sub-FAST inner transactions.
// Cheap social chatter and messaging traffic waits in a tier×category
// window; when the window's deadline passes the pending set is wrapped in a
// synthetic BATCH (or CONVERSATION_BATCH for messaging) transaction for a
// relayer to sign and a block to carry.

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// BatchCategory groups inner transactions so unrelated traffic never shares
// a wrapper.
type BatchCategory string

const (
	CategorySocial  BatchCategory = "SOCIAL"
	CategoryMessage BatchCategory = "MESSAGE"
	CategoryNone    BatchCategory = "NONE"
)

// CategoryForType maps a transaction type to its batch category.
func CategoryForType(t TxType) BatchCategory {
	switch t {
	case TxLike, TxComment, TxShare, TxFollow, TxUnfollow, TxPostContent, TxPostAction:
		return CategorySocial
	case TxPrivateMessage, TxMessagePayment:
		return CategoryMessage
	}
	return CategoryNone
}

// NewMessagePool returns an empty batching pool.
func NewMessagePool(lg *log.Logger) *MessagePool {
	return &MessagePool{logger: lg, windows: make(map[string]*batchWindow)}
}

func batchKey(tier FeeTier, cat BatchCategory) string {
	return tier.String() + "/" + string(cat)
}

func windowLength(tier FeeTier) int64 {
	if tier == TierNormal {
		return BatchWindowNormalMS
	}
	return BatchWindowLowMS
}

// Add queues a sub-FAST transaction into its tier×category window, opening
// the window on first insertion. FAST transactions do not belong here — the
// caller routes those straight to the mempool.
func (p *MessagePool) Add(tx *Transaction, nowMS int64) error {
	if err := tx.WellFormed(); err != nil {
		return err
	}
	tier := TierForFee(tx.Fee)
	if tier == TierFast {
		return fmt.Errorf("%w: fast-tier transaction bypasses the message pool", ErrInvalidStructure)
	}
	if tx.ID == "" {
		if _, err := tx.ComputeID(); err != nil {
			return err
		}
	}

	key := batchKey(tier, CategoryForType(tx.Type))
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[key]
	if !ok {
		w = &batchWindow{openedMS: nowMS, deadlineMS: nowMS + windowLength(tier)}
		p.windows[key] = w
		if p.logger != nil {
			p.logger.WithFields(log.Fields{"key": key, "deadline_ms": w.deadlineMS}).Debug("batch window opened")
		}
	}
	for _, pending := range w.pending {
		if pending.ID == tx.ID {
			return fmt.Errorf("%w: %s already batched", ErrDuplicate, tx.ID)
		}
	}
	w.pending = append(w.pending, tx)
	return nil
}

// Collect closes every window whose deadline has passed and returns one
// synthetic wrapper per closed window. Wrappers are unsigned: the relayer
// (normally the block producer) assigns sender, nonce and signature before
// inclusion. Windows with nothing pending simply close.
func (p *MessagePool) Collect(nowMS int64) []*Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Transaction
	for key, w := range p.windows {
		if nowMS < w.deadlineMS {
			continue
		}
		delete(p.windows, key)
		if len(w.pending) == 0 {
			continue
		}
		wrapType := TxBatch
		if CategoryForType(w.pending[0].Type) == CategoryMessage {
			wrapType = TxConversationBatch
		}
		wrapper := &Transaction{
			Type:        wrapType,
			TimestampMS: nowMS,
			Payload:     &TxPayload{Inner: append([]*Transaction(nil), w.pending...)},
		}
		out = append(out, wrapper)
		if p.logger != nil {
			p.logger.WithFields(log.Fields{
				"key":   key,
				"inner": len(w.pending),
				"type":  string(wrapType),
			}).Info("batch window closed")
		}
	}
	return out
}

// PendingCount reports queued inner transactions across open windows.
func (p *MessagePool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.windows {
		n += len(w.pending)
	}
	return n
}
