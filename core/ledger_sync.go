package core

// ledger_sync.go – segment processing, fork reorganization and full chain
// restore. Rebuilds always run against throwaway state first; the live
// chain is swapped only once the replacement replayed cleanly, so a failed
// reorg leaves the original chain and state untouched.

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// ProcessSegment ingests a hash-linked run of blocks from peer sync.
// Clean tip extensions apply sequentially; a divergence below the tip
// triggers a bounded longest-chain reorganization with full replay from
// genesis.
func (l *Ledger) ProcessSegment(segment []*Block) error {
	if len(segment) == 0 {
		return nil
	}
	if err := verifySegmentLinkage(segment); err != nil {
		return err
	}

	committed, err := l.processSegmentLocked(segment)
	for _, b := range committed {
		l.bus.Publish(Event{Kind: EventBlockAdded, Block: b})
	}
	return err
}

// processSegmentLocked returns the blocks committed through the append
// path so the caller can publish their events lock-free.
func (l *Ledger) processSegmentLocked(segment []*Block) ([]*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.blocks[len(l.blocks)-1]
	if segment[0].Index > tip.Index+1 {
		return nil, fmt.Errorf("%w: segment starts at %d, tip is %d", ErrChainLink, segment[0].Index, tip.Index)
	}

	// Locate the divergence point: the first segment block that differs
	// from the local chain or extends past it.
	divPos := -1
	for i, b := range segment {
		if b.Index <= tip.Index {
			if l.blocks[b.Index].Hash != b.Hash {
				divPos = i
				break
			}
			continue
		}
		divPos = i
		break
	}
	if divPos == -1 {
		return nil, nil // segment already known
	}

	div := segment[divPos]
	if div.Index == tip.Index+1 {
		var committed []*Block
		for _, b := range segment[divPos:] {
			if err := l.commitBlockLocked(b); err != nil {
				return committed, err
			}
			committed = append(committed, b)
		}
		return committed, nil
	}

	// Fork below the tip.
	if div.Index == 0 {
		return nil, ErrGenesisMismatch
	}
	newTotal := segment[len(segment)-1].Index + 1
	if newTotal <= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("%w: replacement chain height %d does not exceed %d", ErrReorgInvalid, newTotal, len(l.blocks))
	}
	depth := tip.Index - div.Index + 1
	if depth > MaxReorgDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d", ErrReorgTooDeep, depth, MaxReorgDepth)
	}
	parent := l.blocks[div.Index-1]
	if div.PreviousHash != parent.Hash {
		return nil, fmt.Errorf("%w: fork block %d does not attach", ErrChainLink, div.Index)
	}

	newChain := make([]*Block, 0, int(div.Index)+len(segment)-divPos)
	newChain = append(newChain, l.blocks[:div.Index]...)
	newChain = append(newChain, segment[divPos:]...)

	replayed, err := l.replay(newChain)
	if err != nil {
		logWarn(l.logger, log.Fields{"err": err.Error()}, "reorganization replay failed, keeping original chain")
		return nil, fmt.Errorf("%w: %v", ErrReorgInvalid, err)
	}
	l.adoptLocked(newChain, replayed)

	if l.logger != nil {
		l.logger.WithFields(log.Fields{
			"fork_height": div.Index,
			"old_height":  tip.Index,
			"new_height":  newChain[len(newChain)-1].Index,
		}).Info("chain reorganized to longer fork")
	}
	return nil, nil
}

// RestoreChain replaces the ledger wholesale with the supplied chain, e.g.
// from a backup. The replacement is replayed against throwaway state first;
// on any failure the ledger is left untouched.
func (l *Ledger) RestoreChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidStructure)
	}
	if err := VerifyGenesis(blocks[0]); err != nil {
		return err
	}
	if err := verifySegmentLinkage(blocks); err != nil {
		return err
	}

	l.mu.Lock()
	replayed, err := l.replay(blocks)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.adoptLocked(blocks, replayed)
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.WithField("height", blocks[len(blocks)-1].Index).Info("chain restored")
	}
	l.bus.Publish(Event{Kind: EventBackupRestored, Block: blocks[len(blocks)-1]})
	return nil
}

// DryRun validates candidate transactions against a snapshot of committed
// state, classifying each as includable, time-locked (retain in mempool) or
// rejected. The snapshot is discarded.
func (l *Ledger) DryRun(txs []*Transaction, proposerID string, tsMS int64) (valid, timeLocked []*Transaction, rejected map[string]error) {
	rejected = make(map[string]error)
	snap := l.store.Snapshot()
	ctx := &BlockContext{
		Height:      l.Height() + 1,
		TimestampMS: tsMS,
		NodeWallet:  l.walletOf(proposerID),
		Logger:      l.logger,
		Seen:        func(id string) bool { return l.seenTxs.Contains(id) },
	}
	for _, tx := range txs {
		err := ApplyTransaction(snap, tx, ctx)
		switch {
		case err == nil:
			valid = append(valid, tx)
		case isTimeLocked(err):
			timeLocked = append(timeLocked, tx)
		default:
			rejected[tx.ID] = err
		}
	}
	return valid, timeLocked, rejected
}

func (l *Ledger) walletOf(id string) string {
	if l.validators == nil {
		return ""
	}
	return l.validators.WalletOf(id)
}

// -----------------------------------------------------------------------------
// Replay machinery
// -----------------------------------------------------------------------------

// replayResult is the throwaway state a candidate chain rebuilt into.
type replayResult struct {
	store    *AccountStore
	seenTxs  *lru.Cache
	signedAt map[uint64]map[string]string
	mining   *MiningRegistry
}

// replay rebuilds state by applying every block from genesis into fresh
// structures. The live ledger is not touched.
func (l *Ledger) replay(chain []*Block) (*replayResult, error) {
	if err := VerifyGenesis(chain[0]); err != nil {
		return nil, err
	}
	cache, err := lru.New(TxDedupCacheSize)
	if err != nil {
		return nil, err
	}
	res := &replayResult{
		store:    genesisState(),
		seenTxs:  cache,
		signedAt: make(map[uint64]map[string]string),
	}
	if l.mining != nil {
		res.mining = l.mining.cloneForReplay()
	}

	for i := 1; i < len(chain); i++ {
		b, prev := chain[i], chain[i-1]
		if err := l.validateReplayBlock(b, prev); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Index, err)
		}

		snap := res.store.Snapshot()
		var (
			applied   []string
			totalFees uint64
		)
		ctx := &BlockContext{
			Height:      b.Index,
			TimestampMS: b.TimestampMS,
			NodeWallet:  l.walletOf(b.ValidatorID),
			Logger:      l.logger,
			Seen:        func(id string) bool { return res.seenTxs.Contains(id) },
			Record:      func(id string) { applied = append(applied, id) },
			AccrueFee:   func(fee uint64) { totalFees += fee },
		}
		for _, tx := range b.Transactions {
			if err := ApplyTransaction(snap, tx, ctx); err != nil {
				logWarn(l.logger, log.Fields{"block": b.Index, "tx": tx.ID, "err": err.Error()},
					"transaction skipped during replay")
			}
		}
		if root := snap.StateRoot(); root != b.StateRoot {
			return nil, fmt.Errorf("%w: state root mismatch at %d during replay", ErrChainLink, b.Index)
		}
		if res.mining != nil {
			res.mining.Accrue(b.Index, totalFees, snap)
		}
		res.store.Commit(snap)
		for _, id := range applied {
			res.seenTxs.Add(id, struct{}{})
		}
		if res.signedAt[b.Index] == nil {
			res.signedAt[b.Index] = make(map[string]string)
		}
		res.signedAt[b.Index][b.ValidatorID] = b.Hash
	}
	return res, nil
}

// validateReplayBlock checks a historical block's structure, hash and
// linkage to its predecessor. The proposer signature is verified only when
// the proposer has a registered key; the block-size and future-timestamp
// checks of the live path are not applied.
func (l *Ledger) validateReplayBlock(b, prev *Block) error {
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
	if b.Index != prev.Index+1 {
		return fmt.Errorf("%w: index %d after %d", ErrChainLink, b.Index, prev.Index)
	}
	if b.PreviousHash != prev.Hash {
		return fmt.Errorf("%w: previous hash mismatch at %d", ErrChainLink, b.Index)
	}
	if b.TimestampMS <= prev.TimestampMS {
		return fmt.Errorf("%w: timestamp not after predecessor at %d", ErrChainLink, b.Index)
	}
	if b.Index > 0 && l.validators != nil {
		if pub, ok := l.validators.PublicKeyOf(b.ValidatorID); ok && pub != "" {
			if err := b.VerifyProposerSignature(pub); err != nil {
				return err
			}
		}
	}
	return nil
}

// adoptLocked swaps the replayed chain and state in. Old equivocation
// evidence is retained alongside the rebuilt records.
func (l *Ledger) adoptLocked(chain []*Block, res *replayResult) {
	l.blocks = chain
	l.blockIndex = make(map[string]*Block, len(chain))
	for _, b := range chain {
		l.blockIndex[b.Hash] = b
	}
	l.store.ReplaceFrom(res.store)
	l.seenTxs = res.seenTxs
	for h, byProposer := range res.signedAt {
		if l.signedAt[h] == nil {
			l.signedAt[h] = make(map[string]string)
		}
		for id, hash := range byProposer {
			l.signedAt[h][id] = hash
		}
	}
	if l.mining != nil && res.mining != nil {
		l.mining.CopyFrom(res.mining)
	}
}

// verifySegmentLinkage checks that every block's hash covers its contents
// and each block links to its predecessor within the run.
func verifySegmentLinkage(segment []*Block) error {
	for i, b := range segment {
		if b == nil {
			return fmt.Errorf("%w: nil block in segment", ErrInvalidStructure)
		}
		data, err := b.SigningBytes()
		if err != nil {
			return err
		}
		if HashBytes(data) != b.Hash {
			return fmt.Errorf("%w: segment block %d hash mismatch", ErrInvalidStructure, b.Index)
		}
		if i > 0 {
			if b.Index != segment[i-1].Index+1 {
				return fmt.Errorf("%w: segment indices not contiguous at %d", ErrChainLink, b.Index)
			}
			if b.PreviousHash != segment[i-1].Hash {
				return fmt.Errorf("%w: segment link broken at %d", ErrChainLink, b.Index)
			}
		}
	}
	return nil
}

// isTimeLocked distinguishes the retain-in-mempool rejection.
func isTimeLocked(err error) bool {
	return errors.Is(err, ErrFeeTimeLocked)
}
