package core

// producer.go – two-phase block finalization. A round proposes a block,
// collects witness signatures until floor(online/2)+1 endorse it, and
// commits; a silent quorum commits anyway on timeout as a weak block. With
// a single online validator the proposal phase is skipped entirely.

import (
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// ProducerConfig wires a producer's collaborators and identity.
type ProducerConfig struct {
	Logger      *log.Logger
	Bus         *Bus
	Ledger      *Ledger
	Mempool     *Mempool
	MessagePool *MessagePool
	Validators  *ValidatorPool
	Mining      *MiningRegistry

	ValidatorID string
	Wallet      string
	NodeID      string
	NodeIP      string
	PrivateKey  string

	Now func() int64
}

// NewProducer returns an idle producer.
func NewProducer(cfg ProducerConfig) *Producer {
	p := &Producer{
		logger:     cfg.Logger,
		bus:        cfg.Bus,
		ledger:     cfg.Ledger,
		mempool:    cfg.Mempool,
		msgPool:    cfg.MessagePool,
		validators: cfg.Validators,
		mining:     cfg.Mining,
		id:         cfg.ValidatorID,
		wallet:     cfg.Wallet,
		nodeID:     cfg.NodeID,
		nodeIP:     cfg.NodeIP,
		privKey:    cfg.PrivateKey,
		now:        cfg.Now,
	}
	if p.now == nil {
		p.now = nowMS
	}
	return p
}

// State returns the current round position.
func (p *Producer) State() ProducerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a copy of the production counters.
func (p *Producer) Stats() ProducerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// TryProduce attempts a round and swallows the benign refusals. Wired to
// the heartbeat ticker and the transaction_added event.
func (p *Producer) TryProduce() {
	if _, err := p.Produce(); err != nil &&
		err != ErrNothingToProduce && err != ErrProposalInFlight {
		logWarn(p.logger, log.Fields{"err": err.Error()}, "production round failed")
	}
}

// Produce runs one round: select work, dry-run, build, sign and either
// commit directly (single validator) or open the signature-collection
// phase. A round that collects no work (no pending transactions and no
// matured batch wrappers) never produces a block.
func (p *Producer) Produce() (*Block, error) {
	p.mu.Lock()

	if p.state == StateProposing {
		p.mu.Unlock()
		return nil, ErrProposalInFlight
	}
	now := p.now()

	candidates := p.collectWork(now)
	if len(candidates) == 0 {
		p.mu.Unlock()
		return nil, ErrNothingToProduce
	}

	// Deterministic ordering: sender ascending, nonce ascending within.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].From != candidates[j].From {
			return candidates[i].From < candidates[j].From
		}
		return candidates[i].Nonce < candidates[j].Nonce
	})

	valid, _, rejected := p.ledger.DryRun(candidates, p.id, now)
	for id, err := range rejected {
		p.mempool.Remove(id)
		logWarn(p.logger, log.Fields{"tx": id, "err": err.Error()}, "transaction dropped after dry-run")
	}
	// Time-locked transactions stay pending for a later round.

	nextIndex := p.ledger.Height() + 1
	if EpochBoundary(nextIndex) {
		rewards := BuildEpochRewards(p.ledger.Store(), p.validators.All(), p.validators.WalletOf, nextIndex, now)
		valid = append(valid, rewards...)
	}
	if len(valid) == 0 {
		p.mu.Unlock()
		return nil, ErrNothingToProduce
	}
	if len(valid) > MaxTxPerBlock {
		valid = valid[:MaxTxPerBlock]
	}

	block, err := p.ledger.BuildBlock(valid, p.id, now)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if err := block.SignAsProposer(p.id, p.privKey); err != nil {
		p.mu.Unlock()
		return nil, err
	}

	// Single-validator fast path: no one to collect from.
	if p.validators.OnlineCount() <= 1 {
		committed, err := p.commitLocked(block, map[string]string{p.id: block.Signature}, false)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		p.announce(committed)
		return committed, nil
	}

	online := p.validators.OnlineCount()
	p.proposal = &pendingProposal{
		block:  block,
		sigs:   map[string]string{p.id: block.Signature},
		quorum: online/2 + 1,
	}
	p.proposal.timer = time.AfterFunc(ProposalTimeout, func() { p.onProposalTimeout(block.Hash) })
	p.state = StateProposing
	p.mu.Unlock()

	p.bus.Publish(Event{Kind: EventBlockProposed, Block: block})
	if p.logger != nil {
		p.logger.WithFields(log.Fields{
			"height": block.Index,
			"quorum": online/2 + 1,
			"txs":    len(block.Transactions),
		}).Info("block proposed")
	}
	return block, nil
}

// collectWork pulls matured batch wrappers and the best pending
// transactions. Caller holds p.mu.
func (p *Producer) collectWork(now int64) []*Transaction {
	var out []*Transaction
	if p.msgPool != nil {
		nonce := p.ledger.AccountNonce(p.wallet)
		pub, err := PublicKeyFromPrivate(p.privKey)
		if err == nil {
			for _, wrapper := range p.msgPool.Collect(now) {
				nonce++
				wrapper.From = p.wallet
				wrapper.Nonce = nonce
				if err := wrapper.Sign(pub, p.privKey); err != nil {
					logWarn(p.logger, log.Fields{"err": err.Error()}, "batch wrapper signing failed")
					continue
				}
				out = append(out, wrapper)
			}
		}
	}
	if len(out) >= MaxTxPerBlock {
		return out[:MaxTxPerBlock]
	}
	out = append(out, p.mempool.Top(MaxTxPerBlock-len(out))...)
	return out
}

// AddSignature ingests a witness signature for the in-flight proposal.
// Reaching quorum cancels the timeout and commits.
func (p *Producer) AddSignature(validatorID, signature string) error {
	p.mu.Lock()

	if p.state != StateProposing || p.proposal == nil {
		p.mu.Unlock()
		return fmt.Errorf("no proposal awaiting signatures")
	}
	block := p.proposal.block

	pub, ok := p.validators.PublicKeyOf(validatorID)
	if !ok || pub == "" {
		p.mu.Unlock()
		return fmt.Errorf("%w: unknown validator %s", ErrInvalidSignature, validatorID)
	}
	data, err := block.SigningBytes()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if !VerifyBytes(pub, data, signature) {
		p.mu.Unlock()
		return fmt.Errorf("%w: witness %s", ErrInvalidSignature, validatorID)
	}
	if _, dup := p.proposal.sigs[validatorID]; dup {
		p.mu.Unlock()
		return nil
	}
	p.proposal.sigs[validatorID] = signature

	if len(p.proposal.sigs) < p.proposal.quorum {
		p.mu.Unlock()
		return nil
	}
	if p.proposal.timer != nil {
		p.proposal.timer.Stop()
	}
	committed, err := p.commitLocked(block, p.proposal.sigs, false)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.announce(committed)
	return nil
}

// onProposalTimeout commits with whatever was collected (weak-block
// policy). The hash guards against a stale timer firing into a newer round.
func (p *Producer) onProposalTimeout(blockHash string) {
	p.mu.Lock()
	if p.state != StateProposing || p.proposal == nil || p.proposal.block.Hash != blockHash {
		p.mu.Unlock()
		return
	}
	block, sigs, quorum := p.proposal.block, p.proposal.sigs, p.proposal.quorum
	logWarn(p.logger, log.Fields{
		"height":    block.Index,
		"collected": len(sigs),
		"quorum":    quorum,
	}, "proposal timeout: committing weak block below quorum")
	committed, err := p.commitLocked(block, sigs, true)
	p.mu.Unlock()
	if err != nil {
		logWarn(p.logger, log.Fields{"height": block.Index, "err": err.Error()}, "weak block commit failed")
		return
	}
	p.announce(committed)
}

// commitLocked finalizes the block: witness set, ledger append, mempool
// cleanup, statistics and mining registration. Caller holds p.mu.
func (p *Producer) commitLocked(block *Block, sigs map[string]string, weak bool) (*Block, error) {
	witnesses := make([]WitnessSignature, 0, len(sigs))
	for id, sig := range sigs {
		witnesses = append(witnesses, WitnessSignature{ValidatorID: id, Signature: sig})
	}
	// Proposer first, the rest id-sorted, so the committed block is
	// byte-stable regardless of arrival order.
	sort.Slice(witnesses, func(i, j int) bool {
		if witnesses[i].ValidatorID == p.id {
			return witnesses[j].ValidatorID != p.id
		}
		if witnesses[j].ValidatorID == p.id {
			return false
		}
		return witnesses[i].ValidatorID < witnesses[j].ValidatorID
	})
	block.Signatures = witnesses

	p.state = StateIdle
	p.proposal = nil

	if err := p.ledger.CommitBlock(block); err != nil {
		return nil, err
	}
	for _, tx := range block.Transactions {
		p.mempool.Remove(tx.ID)
	}
	p.stats.BlocksProduced++
	p.stats.TxCommitted += uint64(len(block.Transactions))
	if weak {
		p.stats.WeakBlocks++
	}
	p.validators.RecordProduction(p.id, len(witnesses))
	p.validators.Heartbeat(p.id, block.Index)
	if p.mining != nil {
		p.mining.AddActiveNode(p.nodeID, p.nodeIP, p.wallet, block.Index)
	}
	return block, nil
}

// announce publishes new_block outside the producer lock.
func (p *Producer) announce(block *Block) {
	p.bus.Publish(Event{Kind: EventNewBlock, NewBlock: &NewBlockPayload{
		Block:    block,
		Producer: p.id,
		TxCount:  len(block.Transactions),
	}})
}

// Stop cancels any pending timeout and drops the in-flight proposal.
func (p *Producer) Stop() {
	p.mu.Lock()
	if p.proposal != nil && p.proposal.timer != nil {
		p.proposal.timer.Stop()
	}
	p.proposal = nil
	p.state = StateIdle
	p.mu.Unlock()
}
