package core

// mining_window.go – rolling 100-block fee windows. Each window accumulates
// the fees of its blocks; at the terminal block 25% of the total is divided
// equally across the node identities registered during the window and
// credited inside the same commit scope. Sub-share remainders stay in the
// pool as dust.

import (
	log "github.com/sirupsen/logrus"
)

// WindowPayout summarizes one closed mining window.
type WindowPayout struct {
	StartIndex uint64            `json:"start_index"`
	EndIndex   uint64            `json:"end_index"`
	TotalFees  uint64            `json:"total_fees"`
	NodeShare  uint64            `json:"node_share"`
	PerNode    uint64            `json:"per_node"`
	Recipients map[string]uint64 `json:"recipients"` // wallet → credited
}

// NewMiningRegistry starts tracking at the first post-genesis window.
func NewMiningRegistry(lg *log.Logger) *MiningRegistry {
	return &MiningRegistry{
		logger:      lg,
		windowStart: 1,
		nodes:       make(map[string]ActiveNode),
	}
}

// AddActiveNode registers a node identity for the current window, one per
// IP. Returns false when the IP already registered.
func (r *MiningRegistry) AddActiveNode(nodeID, ip, wallet string, height uint64) bool {
	if nodeID == "" || ip == "" || wallet == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.nodes[ip]; dup {
		return false
	}
	r.nodes[ip] = ActiveNode{NodeID: nodeID, IP: ip, Wallet: wallet, RegisteredAtBlock: height}
	if r.logger != nil {
		r.logger.WithFields(log.Fields{"node": nodeID, "ip": ip, "height": height}).Info("mining node registered")
	}
	return true
}

// windowEndLocked returns the terminal height of the current window.
func (r *MiningRegistry) windowEndLocked() uint64 {
	return r.windowStart + MiningWindowSize - 1
}

// Accrue adds a block's fees to its window and, when the block is the
// window's terminal one, materializes the payout through credit. The caller
// invokes this inside the ledger's commit scope so the balance additions
// land in the same atomic commit as the terminal block.
func (r *MiningRegistry) Accrue(height, fees uint64, credit BalanceCrediting) *WindowPayout {
	if height == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Roll forward over any windows the chain skipped past (restores).
	for height > r.windowEndLocked() {
		r.rollLocked()
	}
	r.totalFees += fees

	if height != r.windowEndLocked() {
		return nil
	}

	payout := &WindowPayout{
		StartIndex: r.windowStart,
		EndIndex:   r.windowEndLocked(),
		TotalFees:  r.totalFees,
		NodeShare:  r.totalFees * MiningNodeSharePct / 100,
		Recipients: make(map[string]uint64),
	}
	if n := uint64(len(r.nodes)); n > 0 && payout.NodeShare > 0 {
		payout.PerNode = payout.NodeShare / n
		for _, node := range r.nodes {
			if payout.PerNode > 0 && credit != nil {
				credit.Credit(node.Wallet, payout.PerNode)
			}
			payout.Recipients[node.Wallet] += payout.PerNode
		}
		r.dust += payout.NodeShare - payout.PerNode*n
	} else {
		r.dust += payout.NodeShare
	}

	if r.logger != nil {
		r.logger.WithFields(log.Fields{
			"window_end": payout.EndIndex,
			"total_fees": payout.TotalFees,
			"node_share": payout.NodeShare,
			"nodes":      len(r.nodes),
		}).Info("mining window closed")
	}
	r.rollLocked()
	return payout
}

// rollLocked advances to the next window, clearing fees and registrations.
func (r *MiningRegistry) rollLocked() {
	r.windowStart += MiningWindowSize
	r.totalFees = 0
	r.nodes = make(map[string]ActiveNode)
}

// cloneForReplay returns a registry rewound to the first window, carrying
// the current registrations forward. Replays accrue into the clone so a
// failed rebuild leaves the live accumulator untouched.
func (r *MiningRegistry) cloneForReplay() *MiningRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := &MiningRegistry{
		logger:      r.logger,
		windowStart: 1,
		nodes:       make(map[string]ActiveNode, len(r.nodes)),
	}
	for ip, n := range r.nodes {
		cp.nodes[ip] = n
	}
	return cp
}

// CopyFrom adopts another registry's accumulator state, typically after a
// successful replay.
func (r *MiningRegistry) CopyFrom(o *MiningRegistry) {
	o.mu.Lock()
	start, fees, dust := o.windowStart, o.totalFees, o.dust
	nodes := make(map[string]ActiveNode, len(o.nodes))
	for ip, n := range o.nodes {
		nodes[ip] = n
	}
	o.mu.Unlock()

	r.mu.Lock()
	r.windowStart = start
	r.totalFees = fees
	r.dust = dust
	r.nodes = nodes
	r.mu.Unlock()
}

// Dust returns the undistributed remainder retained by the pool.
func (r *MiningRegistry) Dust() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dust
}

// ActiveNodes returns the current window's registrations.
func (r *MiningRegistry) ActiveNodes() []ActiveNode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}
