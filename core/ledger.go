package core

// ledger.go – the canonical chain and its append path. The ledger owns the
// committed account state, the hash-linked block list and the dedup cache
// of recently committed transaction ids. Every mutation happens under the
// ledger lock and commits atomically: a failed append leaves state, chain
// and caches exactly as they were.

import (
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// NewLedger anchors a fresh ledger at the embedded genesis block.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: ledger requires an account store", ErrInvalidStructure)
	}
	cache, err := lru.New(TxDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedup cache: %w", err)
	}
	l := &Ledger{
		logger:     cfg.Logger,
		bus:        cfg.Bus,
		store:      cfg.Store,
		validators: cfg.Validators,
		slasher:    cfg.Slasher,
		mining:     cfg.Mining,
		now:        cfg.Now,
		blockIndex: make(map[string]*Block),
		seenTxs:    cache,
		signedAt:   make(map[uint64]map[string]string),
	}
	if l.now == nil {
		l.now = nowMS
	}
	genesis := GenesisBlock()
	l.blocks = []*Block{genesis}
	l.blockIndex[genesis.Hash] = genesis
	// The ledger owns state: committed accounts always start at the
	// genesis allocation the pinned state root covers.
	l.store.ReplaceFrom(genesisState())
	return l, nil
}

// Tip returns the head of the canonical chain.
func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// Height returns the tip index.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Index
}

// BlockAt returns the canonical block at the given height.
func (l *Ledger) BlockAt(height uint64) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if height >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("block %d not found", height)
	}
	return l.blocks[height], nil
}

// BlockByHash fetches a canonical block by hash.
func (l *Ledger) BlockByHash(hash string) (*Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.blockIndex[hash]
	return b, ok
}

// Export clones the canonical chain for backup or peer sync.
func (l *Ledger) Export() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = b.Clone()
	}
	return out
}

// StateRoot returns the committed state root.
func (l *Ledger) StateRoot() string {
	return l.store.StateRoot()
}

// SeenTx reports whether a transaction id was committed recently.
func (l *Ledger) SeenTx(id string) bool {
	return l.seenTxs.Contains(id)
}

// Store exposes the committed account store for read-side collaborators
// (reward building, CLI inspection).
func (l *Ledger) Store() *AccountStore {
	return l.store
}

// AccountNonce returns the committed nonce for addr, zero for unknowns.
func (l *Ledger) AccountNonce(addr string) uint64 {
	acct, ok := l.store.Get(addr)
	if !ok {
		return 0
	}
	return acct.Nonce
}

// -----------------------------------------------------------------------------
// Build & commit
// -----------------------------------------------------------------------------

// BuildBlock assembles the unsigned block extending the current tip: the
// state root is computed against a snapshot of committed state with the
// candidate transactions applied, never against live state.
func (l *Ledger) BuildBlock(txs []*Transaction, proposerID string, tsMS int64) (*Block, error) {
	l.mu.RLock()
	tip := l.blocks[len(l.blocks)-1]
	l.mu.RUnlock()

	b := &Block{
		Index:        tip.Index + 1,
		PreviousHash: tip.Hash,
		TimestampMS:  tsMS,
		ValidatorID:  proposerID,
		Transactions: txs,
	}
	snap := l.store.Snapshot()
	ctx := l.blockContext(b, snap)
	for _, tx := range txs {
		if err := ApplyTransaction(snap, tx, ctx); err != nil {
			logWarn(l.logger, log.Fields{"tx": tx.ID, "err": err.Error()}, "transaction skipped while building proposal")
		}
	}
	b.StateRoot = snap.StateRoot()
	if _, err := b.ComputeHash(); err != nil {
		return nil, err
	}
	return b, nil
}

// CommitBlock validates a fully signed block against the tip and applies it
// atomically: state commit, chain append, dedup-cache update, mining-window
// accrual (with the terminal payout landing in the same commit) and the
// block_added event. The event fires after the lock is released so
// subscribers may read the ledger.
func (l *Ledger) CommitBlock(b *Block) error {
	l.mu.Lock()
	err := l.commitBlockLocked(b)
	l.mu.Unlock()
	if err == nil {
		l.bus.Publish(Event{Kind: EventBlockAdded, Block: b})
	}
	return err
}

func (l *Ledger) commitBlockLocked(b *Block) error {
	prev := l.blocks[len(l.blocks)-1]

	// Equivocation first: a proposer with a different hash on record at
	// this height is slashed and the newcomer rejected.
	if err := l.checkEquivocationLocked(b); err != nil {
		return err
	}
	if err := l.validateBlockLocked(b, prev); err != nil {
		return err
	}

	snap := l.store.Snapshot()
	var (
		applied   []string
		totalFees uint64
	)
	ctx := l.blockContext(b, snap)
	ctx.Record = func(id string) { applied = append(applied, id) }
	ctx.AccrueFee = func(fee uint64) { totalFees += fee }

	for _, tx := range b.Transactions {
		if err := ApplyTransaction(snap, tx, ctx); err != nil {
			logWarn(l.logger, log.Fields{
				"block": b.Index,
				"tx":    tx.ID,
				"err":   err.Error(),
			}, "transaction skipped during block application")
		}
	}
	if root := snap.StateRoot(); root != b.StateRoot {
		return fmt.Errorf("%w: state root mismatch at %d: computed %s, block %s",
			ErrChainLink, b.Index, root, b.StateRoot)
	}

	// Window accrual and, on the terminal block, the payout — inside the
	// same snapshot so the credits commit with the block.
	if l.mining != nil {
		l.mining.Accrue(b.Index, totalFees, snap)
	}

	l.store.Commit(snap)
	l.blocks = append(l.blocks, b)
	l.blockIndex[b.Hash] = b
	l.recordSignedLocked(b)
	for _, id := range applied {
		l.seenTxs.Add(id, struct{}{})
	}

	if l.logger != nil {
		l.logger.WithFields(log.Fields{
			"height":   b.Index,
			"proposer": b.ValidatorID,
			"txs":      len(b.Transactions),
		}).Info("block committed")
	}
	return nil
}

// blockContext wires the per-block application environment.
func (l *Ledger) blockContext(b *Block, snap *StateSnapshot) *BlockContext {
	wallet := ""
	if l.validators != nil {
		wallet = l.validators.WalletOf(b.ValidatorID)
	}
	return &BlockContext{
		Height:      b.Index,
		TimestampMS: b.TimestampMS,
		NodeWallet:  wallet,
		Logger:      l.logger,
		Seen:        func(id string) bool { return l.seenTxs.Contains(id) },
	}
}

// checkEquivocationLocked looks for a different signed hash from the same
// proposer at the block's height, slashing on proof.
func (l *Ledger) checkEquivocationLocked(b *Block) error {
	if byProposer, ok := l.signedAt[b.Index]; ok {
		if first, seen := byProposer[b.ValidatorID]; seen && first != b.Hash {
			ev := SlashEvidence{
				ValidatorID: b.ValidatorID,
				Height:      b.Index,
				FirstHash:   first,
				SecondHash:  b.Hash,
				Reason:      "two distinct blocks signed at the same height",
			}
			if l.slasher != nil {
				l.slasher.Slash(ev)
			}
			return fmt.Errorf("%w: %s at height %d", ErrDoubleSign, b.ValidatorID, b.Index)
		}
	}
	return nil
}

func (l *Ledger) recordSignedLocked(b *Block) {
	if l.signedAt[b.Index] == nil {
		l.signedAt[b.Index] = make(map[string]string)
	}
	l.signedAt[b.Index][b.ValidatorID] = b.Hash
}

// validateBlockLocked enforces the structural and chain-link rules against
// the given predecessor.
func (l *Ledger) validateBlockLocked(b, prev *Block) error {
	if err := b.WellFormed(); err != nil {
		return err
	}
	data, err := b.SigningBytes()
	if err != nil {
		return err
	}
	if HashBytes(data) != b.Hash {
		return fmt.Errorf("%w: block %d hash does not cover its contents", ErrInvalidStructure, b.Index)
	}
	if raw, err := json.Marshal(b); err != nil || len(raw) > MaxBlockSize {
		return fmt.Errorf("%w: block %d exceeds %d bytes", ErrInvalidStructure, b.Index, MaxBlockSize)
	}
	if b.Index != prev.Index+1 {
		return fmt.Errorf("%w: index %d after %d", ErrChainLink, b.Index, prev.Index)
	}
	if b.PreviousHash != prev.Hash {
		return fmt.Errorf("%w: previous hash mismatch at %d", ErrChainLink, b.Index)
	}
	if b.TimestampMS <= prev.TimestampMS {
		return fmt.Errorf("%w: timestamp not after predecessor at %d", ErrChainLink, b.Index)
	}
	if b.TimestampMS > l.now()+MaxClockSkewMS {
		return fmt.Errorf("%w: timestamp too far in the future at %d", ErrChainLink, b.Index)
	}

	// Proposer signature against the registered key. Genesis is pinned
	// and carries none.
	if b.Index > 0 {
		if l.validators == nil {
			return fmt.Errorf("%w: no validator directory", ErrInvalidSignature)
		}
		pub, ok := l.validators.PublicKeyOf(b.ValidatorID)
		if !ok || pub == "" {
			return fmt.Errorf("%w: unknown proposer %s", ErrInvalidSignature, b.ValidatorID)
		}
		if err := b.VerifyProposerSignature(pub); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Receive (fork-less gossip append)
// -----------------------------------------------------------------------------

// ReceiveBlock handles a single gossiped block: a clean tip extension is
// validated and applied; a competing block at an occupied height from the
// same proposer is treated as double-signing proof; anything else is
// ignored.
func (l *Ledger) ReceiveBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidStructure)
	}
	err, committed := l.receiveLocked(b)
	if committed {
		l.bus.Publish(Event{Kind: EventBlockAdded, Block: b})
	}
	return err
}

func (l *Ledger) receiveLocked(b *Block) (error, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.blocks[len(l.blocks)-1]
	if b.Index == tip.Index+1 && b.PreviousHash == tip.Hash {
		err := l.commitBlockLocked(b)
		return err, err == nil
	}

	if b.Index <= tip.Index {
		local := l.blocks[b.Index]
		if local.Hash != b.Hash && local.ValidatorID == b.ValidatorID {
			ev := SlashEvidence{
				ValidatorID: b.ValidatorID,
				Height:      b.Index,
				FirstHash:   local.Hash,
				SecondHash:  b.Hash,
				Reason:      "competing block at committed height",
			}
			if l.slasher != nil {
				l.slasher.Slash(ev)
			}
			return fmt.Errorf("%w: %s at height %d", ErrDoubleSign, b.ValidatorID, b.Index), false
		}
	}

	logWarn(l.logger, log.Fields{"height": b.Index, "tip": tip.Index}, "gossiped block ignored")
	return nil, false
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
