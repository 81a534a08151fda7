package core

// validator_pool.go – validator registry, liveness tracking, deterministic
// proposer selection and slashing. An offline validator is never selected;
// slashing drops reputation by a fixed penalty and jails the validator
// offline immediately.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// NewValidatorPool returns an empty pool. offlineTimeout <= 0 falls back to
// the protocol default.
func NewValidatorPool(lg *log.Logger, bus *Bus, offlineTimeout time.Duration) *ValidatorPool {
	if offlineTimeout <= 0 {
		offlineTimeout = OfflineTimeout
	}
	return &ValidatorPool{
		logger:         lg,
		bus:            bus,
		validators:     make(map[string]*Validator),
		wallets:        make(map[string]string),
		offlineTimeout: offlineTimeout,
	}
}

// Register adds a validator identity with its payout wallet. Registration
// starts offline with full reputation; re-registering updates the key and
// wallet but keeps the record.
func (vp *ValidatorPool) Register(id, wallet, publicKey string) error {
	if id == "" || publicKey == "" {
		return fmt.Errorf("%w: validator id and public key required", ErrInvalidStructure)
	}
	vp.mu.Lock()
	defer vp.mu.Unlock()
	v, ok := vp.validators[id]
	if !ok {
		v = &Validator{ID: id, Reputation: MaxReputation}
		vp.validators[id] = v
	}
	v.PublicKey = publicKey
	if wallet != "" {
		vp.wallets[id] = wallet
	}
	if vp.logger != nil {
		vp.logger.WithFields(log.Fields{"validator": id, "wallet": wallet}).Info("validator registered")
	}
	return nil
}

// SetOnline marks the validator available for selection.
func (vp *ValidatorPool) SetOnline(id string) {
	vp.mu.Lock()
	if v, ok := vp.validators[id]; ok {
		v.IsOnline = true
		v.LastActiveMS = time.Now().UnixMilli()
	}
	vp.mu.Unlock()
}

// SetOffline removes the validator from the selectable set.
func (vp *ValidatorPool) SetOffline(id string) {
	vp.mu.Lock()
	if v, ok := vp.validators[id]; ok {
		v.IsOnline = false
	}
	vp.mu.Unlock()
}

// Heartbeat refreshes liveness and advances the last-seen height
// monotonically.
func (vp *ValidatorPool) Heartbeat(id string, currentHeight uint64) {
	vp.mu.Lock()
	if v, ok := vp.validators[id]; ok {
		v.IsOnline = true
		v.LastActiveMS = time.Now().UnixMilli()
		if currentHeight > v.LastSeenBlockHeight {
			v.LastSeenBlockHeight = currentHeight
		}
	}
	vp.mu.Unlock()
}

// Get returns a copy of the validator record.
func (vp *ValidatorPool) Get(id string) (*Validator, bool) {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	v, ok := vp.validators[id]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// All returns copies of every registered validator, id-sorted.
func (vp *ValidatorPool) All() []*Validator {
	vp.mu.RLock()
	out := make([]*Validator, 0, len(vp.validators))
	for _, v := range vp.validators {
		cp := *v
		out = append(out, &cp)
	}
	vp.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnlineValidators returns copies of the online set, id-sorted — the
// selection universe.
func (vp *ValidatorPool) OnlineValidators() []*Validator {
	vp.mu.RLock()
	out := make([]*Validator, 0, len(vp.validators))
	for _, v := range vp.validators {
		if v.IsOnline {
			cp := *v
			out = append(out, &cp)
		}
	}
	vp.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnlineCount returns the size of the online set.
func (vp *ValidatorPool) OnlineCount() int {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	n := 0
	for _, v := range vp.validators {
		if v.IsOnline {
			n++
		}
	}
	return n
}

// SelectProducer picks the proposer for next index deterministically from
// the id-sorted online set:
//
//	selector = (int(last8hex(SHA-256(prevHash || nextIndex))) + round) mod N
//
// The round soft-turn rotates selection to a fallback proposer when the
// primary stays silent past block time.
func (vp *ValidatorPool) SelectProducer(nextIndex uint64, previousHash string, round int) (*Validator, error) {
	online := vp.OnlineValidators()
	if len(online) == 0 {
		return nil, fmt.Errorf("no online validators")
	}
	sum := sha256.Sum256([]byte(previousHash + strconv.FormatUint(nextIndex, 10)))
	digest := hex.EncodeToString(sum[:])
	seed, err := strconv.ParseUint(digest[len(digest)-8:], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("selector parse: %w", err)
	}
	if round < 0 {
		round = 0
	}
	selector := (int(seed%uint64(len(online))) + round) % len(online)
	return online[selector], nil
}

// RoundFor derives the soft-turn round from how long the tip has been
// stale: max(0, floor((now − tipTimestamp) / blockTime)).
func RoundFor(nowMS, tipTimestampMS int64) int {
	if nowMS <= tipTimestampMS {
		return 0
	}
	return int((nowMS - tipTimestampMS) / BlockTimeMS)
}

// Slash applies the double-signing penalty: a fixed reputation drop, a
// forced offline jail and a slashing event for external consumers.
func (vp *ValidatorPool) Slash(ev SlashEvidence) {
	vp.mu.Lock()
	v, ok := vp.validators[ev.ValidatorID]
	if ok {
		v.Reputation -= SlashReputationPenalty
		if v.Reputation < 0 {
			v.Reputation = 0
		}
		if v.Reputation > MaxReputation {
			v.Reputation = MaxReputation
		}
		v.IsOnline = false
	}
	vp.mu.Unlock()

	if vp.logger != nil {
		vp.logger.WithFields(log.Fields{
			"validator": ev.ValidatorID,
			"height":    ev.Height,
			"reason":    ev.Reason,
		}).Warn("validator slashed")
	}
	vp.bus.Publish(Event{Kind: EventSlashed, Slash: &ev})
}

// RecordProduction bumps production statistics after a commit.
func (vp *ValidatorPool) RecordProduction(id string, signatures int) {
	vp.mu.Lock()
	if v, ok := vp.validators[id]; ok {
		v.TotalBlocksProduced++
		v.TotalSignatures += uint64(signatures)
	}
	vp.mu.Unlock()
}

// Sweep marks validators offline once their last heartbeat ages past the
// offline timeout. Intended to run on the housekeeping ticker.
func (vp *ValidatorPool) Sweep(nowMS int64) int {
	cutoff := nowMS - vp.offlineTimeout.Milliseconds()
	swept := 0
	vp.mu.Lock()
	for _, v := range vp.validators {
		if v.IsOnline && v.LastActiveMS < cutoff {
			v.IsOnline = false
			swept++
		}
	}
	vp.mu.Unlock()
	if swept > 0 && vp.logger != nil {
		vp.logger.WithField("count", swept).Info("validators marked offline")
	}
	return swept
}

// PublicKeyOf implements ValidatorDirectory.
func (vp *ValidatorPool) PublicKeyOf(id string) (string, bool) {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	v, ok := vp.validators[id]
	if !ok {
		return "", false
	}
	return v.PublicKey, true
}

// WalletOf implements ValidatorDirectory. Empty when no wallet is mapped.
func (vp *ValidatorPool) WalletOf(id string) string {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.wallets[id]
}
