package core

// params.go – immutable consensus rules for the weavenet chain. These values
// are part of the protocol: changing any of them forks the network. Node
// local knobs (paths, log level, pool caps) live in pkg/config instead.

import "time"

// Network identity. Peers presenting a different ChainID are incompatible.
const (
	ChainID        = "weavenet-main"
	NetworkVersion = "2.5"
	ProofType      = "DPoA"
)

// Block production limits.
const (
	BlockTimeMS   int64 = 5_000
	MaxBlockSize        = 1_000_000 // serialized bytes
	MaxTxPerBlock       = 1_000

	// MinValidatorThreshold is the declared finalization target. The
	// producer enforces floor(online/2)+1 and commits weak blocks on
	// timeout; this figure is reported, not enforced.
	MinValidatorThreshold = 0.66

	MaxReorgDepth = 100

	// MaxClockSkewMS bounds how far a block timestamp may run ahead of
	// local time.
	MaxClockSkewMS int64 = 15_000

	// MaxSignatureLen caps raw signature bytes accepted anywhere.
	MaxSignatureLen = 128
)

// Reward cadence.
const (
	EpochLength      uint64 = 200 // blocks per validator-pool distribution
	MiningWindowSize uint64 = 100 // blocks per node-share window

	// MiningNodeSharePct of each window's collected fees is divided
	// equally across registered nodes.
	MiningNodeSharePct uint64 = 25
)

// Producer timing.
const (
	ProposalTimeout = 2 * time.Second
	OfflineTimeout  = 60 * time.Second
)

// Fee tiers by magnitude. A transaction at or above FeeFastThreshold skips
// both the message pool and the inclusion time gate.
const (
	FeeFastThreshold     uint64 = 10_000
	FeeStandardThreshold uint64 = 2_000
	FeeLowThreshold      uint64 = 500
)

// Inclusion time gates for sub-FAST fees (spec wait tiers).
const (
	WaitStandardMS int64 = 10 * 60 * 1000      // 10 min
	WaitLowMS      int64 = 60 * 60 * 1000      // 1 h
	YearMS         int64 = 365 * 24 * 3600 * 1000
)

// Message-pool batching windows.
const (
	BatchWindowNormalMS int64 = 10 * 60 * 1000 // NORMAL tier
	BatchWindowLowMS    int64 = 60 * 60 * 1000 // LOW tier
)

// Per-type minimum fees in smallest units.
const (
	MinFeeLike    uint64 = 1_000
	MinFeeFollow  uint64 = 1_000
	MinFeeComment uint64 = 2_000
)

// Fee split percentages, remainder-to-primary. The four shares always sum
// to the fee exactly.
const (
	FeeSplitPrimaryPct uint64 = 45
	FeeSplitPoolPct    uint64 = 30
	FeeSplitRecyclePct uint64 = 20
	FeeSplitDevPct     uint64 = 5
)

// Treasury addresses are ordinary accounts inside the state map.
const (
	TreasuryMain         = "weave_treasury_main"
	ValidatorPoolAccount = "weave_validator_pool"
	TreasuryRecycle      = "weave_treasury_recycle"
	TreasuryDev          = "weave_treasury_dev"
)

// Dynamic transfer-fee tiering. Rates are parts-per-million of the amount so
// all fee math stays in integers. Tier selection walks the recipient's
// incoming_transfer_count against transferTierThresholds (largest threshold
// not exceeding the count wins).
var (
	transferTierThresholds = [4]uint64{0, 50, 100, 200}
	transferBaseRatePPM    = [4]uint64{100, 250, 500, 1_000} // 0.01% 0.025% 0.05% 0.10%
)

// Priority surcharges, parts-per-million of the amount.
var transferPriorityPPM = map[string]uint64{
	"STANDARD": 0,
	"LOW":      2_000,  // 0.20%
	"MEDIUM":   6_000,  // 0.60%
	"HIGH":     10_000, // 1.00%
}

// Slashing.
const (
	SlashReputationPenalty = 50
	MaxReputation          = 100
)

// Dedup cache for recently committed transaction ids.
const TxDedupCacheSize = 1000

// Genesis constants. The genesis block is embedded and its hash pinned; a
// persisted chain whose block 0 differs is wiped before startup. The full
// supply is allocated to the main treasury at genesis and enters
// circulation through rewards and payouts.
const (
	GenesisTimestampMS int64  = 1_700_000_000_000
	GenesisValidatorID        = "weavenet-genesis"
	GenesisPrevHash           = "0000000000000000000000000000000000000000000000000000000000000000"
	GenesisSupply      uint64 = 1_000_000_000_000_000
)
