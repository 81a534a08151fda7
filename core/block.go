package core

// block.go – block hashing, proposer/witness signing and the embedded
// genesis block.

import (
	"fmt"
	"sync"
)

// SigningBytes renders the canonical form covered by the block hash and
// every signature: all fields except hash, signature and signatures.
func (b *Block) SigningBytes() ([]byte, error) {
	return canonicalWithout(b, "hash", "signature", "signatures")
}

// ComputeHash derives and stores the block hash.
func (b *Block) ComputeHash() (string, error) {
	data, err := b.SigningBytes()
	if err != nil {
		return "", err
	}
	b.Hash = HashBytes(data)
	return b.Hash, nil
}

// SignAsProposer hashes the block, signs it with the proposer key and
// records the proposer's endorsement as the first witness signature.
func (b *Block) SignAsProposer(validatorID, privHex string) error {
	data, err := b.SigningBytes()
	if err != nil {
		return err
	}
	sig, err := SignBytes(privHex, data)
	if err != nil {
		return err
	}
	b.Hash = HashBytes(data)
	b.Signature = sig
	b.Signatures = []WitnessSignature{{ValidatorID: validatorID, Signature: sig}}
	return nil
}

// VerifyProposerSignature checks the proposer signature against pubHex.
func (b *Block) VerifyProposerSignature(pubHex string) error {
	if b.Signature == "" {
		return fmt.Errorf("%w: missing proposer signature", ErrInvalidSignature)
	}
	if signatureOversized(b.Signature) {
		return fmt.Errorf("%w: proposer signature exceeds %d bytes", ErrInvalidStructure, MaxSignatureLen)
	}
	data, err := b.SigningBytes()
	if err != nil {
		return err
	}
	if !VerifyBytes(pubHex, data, b.Signature) {
		return fmt.Errorf("%w: proposer %s", ErrInvalidSignature, b.ValidatorID)
	}
	return nil
}

// WellFormed checks structural requirements that need no chain context.
func (b *Block) WellFormed() error {
	if b == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidStructure)
	}
	if b.Hash == "" || b.PreviousHash == "" || b.ValidatorID == "" || b.StateRoot == "" {
		return fmt.Errorf("%w: block %d missing required fields", ErrInvalidStructure, b.Index)
	}
	if b.Signature != "" && signatureOversized(b.Signature) {
		return fmt.Errorf("%w: proposer signature exceeds %d bytes", ErrInvalidStructure, MaxSignatureLen)
	}
	for _, ws := range b.Signatures {
		if signatureOversized(ws.Signature) {
			return fmt.Errorf("%w: witness signature exceeds %d bytes", ErrInvalidStructure, MaxSignatureLen)
		}
	}
	return nil
}

// Clone copies the block header and the transaction slice. Transactions
// themselves are immutable once committed and are shared. Nil and empty
// slices are preserved as-is: the distinction is hash-relevant in the
// canonical form.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	cp := *b
	if b.Transactions != nil {
		cp.Transactions = append([]*Transaction{}, b.Transactions...)
	}
	if b.Signatures != nil {
		cp.Signatures = append([]WitnessSignature{}, b.Signatures...)
	}
	return &cp
}

// -----------------------------------------------------------------------------
// Genesis
// -----------------------------------------------------------------------------

var (
	genesisOnce  sync.Once
	genesisBlock *Block
)

// genesisState returns a fresh store holding the genesis allocation.
func genesisState() *AccountStore {
	s := NewAccountStore()
	s.Put(&Account{Address: TreasuryMain, Balance: GenesisSupply})
	return s
}

// GenesisBlock returns the embedded, fully hashed genesis block. The result
// is cloned so callers can never corrupt the pinned instance.
func GenesisBlock() *Block {
	genesisOnce.Do(func() {
		b := &Block{
			Index:        0,
			PreviousHash: GenesisPrevHash,
			TimestampMS:  GenesisTimestampMS,
			ValidatorID:  GenesisValidatorID,
			StateRoot:    genesisState().StateRoot(),
			Transactions: []*Transaction{},
		}
		if _, err := b.ComputeHash(); err != nil {
			panic(fmt.Sprintf("genesis hash: %v", err))
		}
		genesisBlock = b
	})
	return genesisBlock.Clone()
}

// PinnedGenesisHash is the invariant every persisted chain must anchor to.
func PinnedGenesisHash() string {
	return GenesisBlock().Hash
}

// VerifyGenesis rejects any block 0 that does not match the embedded
// genesis. Callers wipe their persisted chain on mismatch.
func VerifyGenesis(b *Block) error {
	if b == nil || b.Index != 0 || b.Hash != PinnedGenesisHash() {
		return ErrGenesisMismatch
	}
	return nil
}
