package core

// transactions.go – signable-form derivation, hashing, signing and fee
// computation for the transaction envelope.

import (
	"fmt"
)

// -----------------------------------------------------------------------------
// Hashing / signing / verification
// -----------------------------------------------------------------------------

// SignableBytes renders the canonical signable form: the full envelope minus
// tx_id, sender_signature and sender_public_key. Inner transactions of a
// batch wrapper are included whole, so the wrapper signature commits to the
// inner senders' signatures as well.
func (tx *Transaction) SignableBytes() ([]byte, error) {
	return canonicalWithout(tx, "tx_id", "sender_signature", "sender_public_key")
}

// ComputeID derives the transaction id from the signable form and stores it.
func (tx *Transaction) ComputeID() (string, error) {
	data, err := tx.SignableBytes()
	if err != nil {
		return "", err
	}
	tx.ID = HashBytes(data)
	return tx.ID, nil
}

// Sign populates SenderPublicKey, SenderSignature and ID using the given
// hex-encoded Ed25519 keypair.
func (tx *Transaction) Sign(pubHex, privHex string) error {
	data, err := tx.SignableBytes()
	if err != nil {
		return err
	}
	sig, err := SignBytes(privHex, data)
	if err != nil {
		return err
	}
	tx.SenderPublicKey = pubHex
	tx.SenderSignature = sig
	tx.ID = HashBytes(data)
	return nil
}

// VerifySignature checks the sender signature against the embedded public
// key, or accountKey when the envelope carries none. A missing key on both
// sides is an InvalidSignature.
func (tx *Transaction) VerifySignature(accountKey string) error {
	if tx.SenderSignature == "" {
		return fmt.Errorf("%w: missing sender signature", ErrInvalidSignature)
	}
	if signatureOversized(tx.SenderSignature) {
		return fmt.Errorf("%w: sender signature exceeds %d bytes", ErrInvalidStructure, MaxSignatureLen)
	}
	key := tx.SenderPublicKey
	if key == "" {
		key = accountKey
	}
	if key == "" {
		return fmt.Errorf("%w: no public key for sender %s", ErrInvalidSignature, tx.From)
	}
	data, err := tx.SignableBytes()
	if err != nil {
		return err
	}
	if !VerifyBytes(key, data, tx.SenderSignature) {
		return fmt.Errorf("%w: sender %s", ErrInvalidSignature, tx.From)
	}
	return nil
}

// WellFormed performs structural validation independent of state: known
// type, sender present, signature size.
func (tx *Transaction) WellFormed() error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidStructure)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidStructure, string(tx.Type))
	}
	if tx.From == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidStructure)
	}
	if tx.SenderSignature != "" && signatureOversized(tx.SenderSignature) {
		return fmt.Errorf("%w: sender signature exceeds %d bytes", ErrInvalidStructure, MaxSignatureLen)
	}
	if tx.Type.IsBatch() {
		if tx.Payload == nil || len(tx.Payload.Inner) == 0 {
			return fmt.Errorf("%w: batch wrapper without inner transactions", ErrInvalidStructure)
		}
	}
	return nil
}

// Expired reports whether the transaction's optional TTL has passed. A zero
// ValidUntilMS means no expiry.
func (tx *Transaction) Expired(nowMS int64) bool {
	return tx.ValidUntilMS > 0 && nowMS > tx.ValidUntilMS
}

// -----------------------------------------------------------------------------
// Fee tiers & dynamic transfer fee
// -----------------------------------------------------------------------------

// FeeTier buckets a fee magnitude for pool routing and time gating.
type FeeTier uint8

const (
	TierFast FeeTier = iota
	TierNormal
	TierLow
)

func (ft FeeTier) String() string {
	switch ft {
	case TierFast:
		return "FAST"
	case TierNormal:
		return "NORMAL"
	}
	return "LOW"
}

// TierForFee maps a fee to its tier. FAST bypasses batching entirely;
// NORMAL and LOW batch on 10-minute and 60-minute windows respectively.
func TierForFee(fee uint64) FeeTier {
	switch {
	case fee >= FeeFastThreshold:
		return TierFast
	case fee >= FeeStandardThreshold:
		return TierNormal
	default:
		return TierLow
	}
}

// transferFeeTier selects the recipient-activity tier index for the dynamic
// transfer fee.
func transferFeeTier(incomingCount uint64) int {
	tier := 0
	for i, threshold := range transferTierThresholds {
		if incomingCount >= threshold {
			tier = i
		}
	}
	return tier
}

// RequiredTransferFee computes the dynamic minimum fee for a TRANSFER:
// amount × (base_rate[tier] + priority_rate[priority]), floor-rounded, all
// in parts-per-million integer math.
func RequiredTransferFee(amount uint64, recipient *Account, priority string, nowMS int64) (uint64, error) {
	if priority == "" {
		priority = "STANDARD"
	}
	surcharge, ok := transferPriorityPPM[priority]
	if !ok {
		return 0, fmt.Errorf("%w: unknown transfer priority %q", ErrInvalidStructure, priority)
	}
	var count uint64
	if recipient != nil {
		count = recipient.IncomingTransferCount
		// Counters reset yearly so long-dormant accounts return to the
		// cheapest tier.
		if recipient.LastYearResetMS > 0 && nowMS-recipient.LastYearResetMS >= YearMS {
			count = 0
		}
	}
	rate := transferBaseRatePPM[transferFeeTier(count)] + surcharge
	return mulDivFloor(amount, rate), nil
}

// mulDivFloor computes floor(amount × ratePPM / 1e6) without overflowing
// for realistic amounts.
func mulDivFloor(amount, ratePPM uint64) uint64 {
	hi := amount / 1_000_000
	lo := amount % 1_000_000
	return hi*ratePPM + lo*ratePPM/1_000_000
}
