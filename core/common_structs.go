package core

// common_structs.go – centralised struct definitions referenced across the
// consensus-and-state engine. This file declares data structures only (no
// behaviour) so the remaining files can stay free of cyclic references.

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

//---------------------------------------------------------------------
// Accounts
//---------------------------------------------------------------------

// Account is the unit of replicated state. Balances are integer smallest
// units and never go negative; the nonce increases by exactly one per
// accepted outbound transaction.
type Account struct {
	Address             string `json:"address"`
	Balance             uint64 `json:"balance"`
	Nonce               uint64 `json:"nonce"`
	PublicKey           string `json:"public_key,omitempty"`
	EncryptionPublicKey string `json:"encryption_public_key,omitempty"`
	Nickname            string `json:"nickname,omitempty"`

	// Activity counters feeding the dynamic transfer-fee tiering.
	IncomingTransferCount uint64 `json:"incoming_transfer_count,omitempty"`
	LastYearResetMS       int64  `json:"last_year_reset_ms,omitempty"`

	// LikedContentIDs enforces one like per content per account. The set
	// only grows while the account exists.
	LikedContentIDs map[string]bool `json:"liked_content_ids,omitempty"`
}

//---------------------------------------------------------------------
// Transactions
//---------------------------------------------------------------------

// TxPayload carries the type-specific portion of a transaction. Fields not
// relevant to a given type are left empty and omitted from serialization.
type TxPayload struct {
	ContentID string `json:"content_id,omitempty"`
	TargetID  string `json:"target_id,omitempty"`
	Body      string `json:"body,omitempty"`
	Nickname  string `json:"nickname,omitempty"`

	// Profile updates may rotate keys.
	PublicKey           string `json:"public_key,omitempty"`
	EncryptionPublicKey string `json:"encryption_public_key,omitempty"`

	// Transfer priority surcharge selector (STANDARD/LOW/MEDIUM/HIGH).
	Priority string `json:"priority,omitempty"`

	// Inner transactions of a BATCH / CONVERSATION_BATCH wrapper, each
	// independently signed by its own sender.
	Inner []*Transaction `json:"inner,omitempty"`
}

// Transaction is the signed account-mutating envelope. ID is the SHA-256 of
// the canonical signable form and is therefore derivable from the remaining
// fields.
type Transaction struct {
	ID              string     `json:"tx_id,omitempty"`
	Type            TxType     `json:"type"`
	From            string     `json:"from"`
	To              string     `json:"to,omitempty"`
	Amount          uint64     `json:"amount"`
	Fee             uint64     `json:"fee"`
	Nonce           uint64     `json:"nonce"`
	TimestampMS     int64      `json:"timestamp_ms"`
	ValidUntilMS    int64      `json:"valid_until_ms,omitempty"`
	Payload         *TxPayload `json:"payload,omitempty"`
	SenderPublicKey string     `json:"sender_public_key,omitempty"`
	SenderSignature string     `json:"sender_signature,omitempty"`
}

//---------------------------------------------------------------------
// Blocks
//---------------------------------------------------------------------

// WitnessSignature is one validator's endorsement of a proposed block hash.
type WitnessSignature struct {
	ValidatorID string `json:"validator_id"`
	Signature   string `json:"signature"`
}

// Block is a hash-linked ledger entry. Hash covers the canonical form of all
// fields except Hash, Signature and Signatures.
type Block struct {
	Index        uint64             `json:"index"`
	PreviousHash string             `json:"previous_hash"`
	TimestampMS  int64              `json:"timestamp_ms"`
	ValidatorID  string             `json:"validator_id"`
	StateRoot    string             `json:"state_root"`
	Transactions []*Transaction     `json:"transactions"`
	Hash         string             `json:"hash,omitempty"`
	Signature    string             `json:"signature,omitempty"`
	Signatures   []WitnessSignature `json:"signatures,omitempty"`
}

//---------------------------------------------------------------------
// Validators
//---------------------------------------------------------------------

// Validator is a registry entry for a block-producing identity.
type Validator struct {
	ID                  string `json:"validator_id"`
	PublicKey           string `json:"public_key"`
	IsOnline            bool   `json:"is_online"`
	LastActiveMS        int64  `json:"last_active_ms"`
	LastSeenBlockHeight uint64 `json:"last_seen_block_height"`
	Reputation          int    `json:"reputation"`
	TotalBlocksProduced uint64 `json:"total_blocks_produced"`
	TotalSignatures     uint64 `json:"total_signatures"`
}

// SlashEvidence documents a double-signing proof.
type SlashEvidence struct {
	ValidatorID string `json:"validator_id"`
	Height      uint64 `json:"height"`
	FirstHash   string `json:"first_hash"`
	SecondHash  string `json:"second_hash"`
	Reason      string `json:"reason"`
}

// ValidatorPool owns the validator registry, the online set, deterministic
// proposer selection and slashing.
type ValidatorPool struct {
	mu             sync.RWMutex
	logger         *log.Logger
	bus            *Bus
	validators     map[string]*Validator
	wallets        map[string]string
	offlineTimeout time.Duration
}

//---------------------------------------------------------------------
// Narrow capabilities (composition-root decoupling)
//---------------------------------------------------------------------

// SlashingSink receives equivocation evidence. The ledger depends on the
// validator pool only through this capability.
type SlashingSink interface {
	Slash(ev SlashEvidence)
}

// ValidatorDirectory resolves validator identities to keys and payout
// wallets without exposing the full pool.
type ValidatorDirectory interface {
	PublicKeyOf(id string) (string, bool)
	WalletOf(id string) string
}

// BalanceCrediting is the reward router's view of mutable state: direct
// balance additions inside a committing snapshot.
type BalanceCrediting interface {
	Credit(addr string, amount uint64)
}

//---------------------------------------------------------------------
// Account state store
//---------------------------------------------------------------------

// AccountStore is the exclusively-owned account map. All reads and writes
// are serialized through its lock; block application mutates it only via
// Commit, while Put, Reset and ReplaceFrom overwrite it directly.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// StateSnapshot is a copy-on-write view over an AccountStore. Accounts are
// deep-cloned on first touch; Commit publishes the touched set atomically.
type StateSnapshot struct {
	base    *AccountStore
	touched map[string]*Account
}

//---------------------------------------------------------------------
// Mempool & message pool
//---------------------------------------------------------------------

// Mempool holds ready-to-include transactions keyed by id, ordered by fee
// (descending) with timestamp (ascending) tie-break.
type Mempool struct {
	mu      sync.Mutex
	logger  *log.Logger
	bus     *Bus
	maxSize int
	items   map[string]*Transaction
}

// batchWindow is one open tier×category batching window.
type batchWindow struct {
	openedMS   int64
	deadlineMS int64
	pending    []*Transaction
}

// MessagePool time-batches sub-FAST inner transactions into synthetic
// BATCH / CONVERSATION_BATCH wrappers.
type MessagePool struct {
	mu      sync.Mutex
	logger  *log.Logger
	windows map[string]*batchWindow
}

//---------------------------------------------------------------------
// Mining windows
//---------------------------------------------------------------------

// ActiveNode is a node identity registered for the current mining window.
type ActiveNode struct {
	NodeID            string `json:"node_id"`
	IP                string `json:"ip"`
	Wallet            string `json:"wallet"`
	RegisteredAtBlock uint64 `json:"registered_at_block"`
}

// MiningRegistry accumulates block fees into rolling 100-block windows and
// pays the node share out when a window closes.
type MiningRegistry struct {
	mu          sync.Mutex
	logger      *log.Logger
	windowStart uint64
	totalFees   uint64
	nodes       map[string]ActiveNode
	dust        uint64
}

//---------------------------------------------------------------------
// Ledger
//---------------------------------------------------------------------

// LedgerConfig wires the ledger's collaborators in at construction time.
type LedgerConfig struct {
	Logger     *log.Logger
	Bus        *Bus
	Store      *AccountStore
	Validators ValidatorDirectory
	Slasher    SlashingSink
	Mining     *MiningRegistry
	Now        func() int64
}

// Ledger owns the canonical chain, the committed account state and the
// recently-committed transaction dedup cache.
type Ledger struct {
	mu         sync.RWMutex
	logger     *log.Logger
	bus        *Bus
	store      *AccountStore
	validators ValidatorDirectory
	slasher    SlashingSink
	mining     *MiningRegistry
	now        func() int64

	blocks     []*Block
	blockIndex map[string]*Block
	seenTxs    *lru.Cache

	// signedAt records the (height, proposer) → hash of every committed
	// block; records of blocks displaced by a reorg are kept, so a later
	// competing block from the same proposer is detectable too.
	signedAt map[uint64]map[string]string
}

//---------------------------------------------------------------------
// Producer
//---------------------------------------------------------------------

// ProducerState is the two-phase finalization state machine position.
type ProducerState uint8

const (
	StateIdle ProducerState = iota
	StateProposing
)

// ProducerStats counts committed work for operator tooling.
type ProducerStats struct {
	BlocksProduced uint64 `json:"blocks_produced"`
	TxCommitted    uint64 `json:"tx_committed"`
	WeakBlocks     uint64 `json:"weak_blocks"`
}

// pendingProposal is the in-flight proposal between Produce and commit.
type pendingProposal struct {
	block  *Block
	sigs   map[string]string
	quorum int
	timer  *time.Timer
}

// Producer drives propose → collect-signatures → commit rounds.
type Producer struct {
	mu         sync.Mutex
	logger     *log.Logger
	bus        *Bus
	ledger     *Ledger
	mempool    *Mempool
	msgPool    *MessagePool
	validators *ValidatorPool
	mining     *MiningRegistry

	id      string
	wallet  string
	nodeID  string
	nodeIP  string
	privKey string

	state    ProducerState
	proposal *pendingProposal
	stats    ProducerStats
	now      func() int64
}
