package core

// errors.go – sentinel error values shared across the engine. Callers match
// with errors.Is; wrapping adds context without losing the kind.

import "errors"

var (
	// ErrInvalidStructure covers missing fields, unknown enum values and
	// oversized signatures.
	ErrInvalidStructure = errors.New("invalid structure")

	// ErrInvalidSignature covers failed cryptographic verification and a
	// missing sender key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidNonce is returned when tx.nonce != sender.nonce+1.
	ErrInvalidNonce = errors.New("invalid nonce")

	// ErrInsufficientBalance is returned when any deduction would take a
	// balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidFee is returned for fees below the per-type minimum.
	ErrInvalidFee = errors.New("invalid fee")

	// ErrFeeTimeLocked is an InvalidFee subkind: the fee is below the FAST
	// threshold and the mandatory wait has not elapsed yet. The producer
	// retains these in the mempool instead of dropping them.
	ErrFeeTimeLocked = errors.New("fee time gate not met")

	// ErrDuplicate is returned when a tx id was committed recently.
	ErrDuplicate = errors.New("duplicate transaction")

	// ErrExpired is returned when now > valid_until_ms.
	ErrExpired = errors.New("transaction expired")

	// ErrChainLink covers index, previous-hash and timestamp monotonicity
	// violations.
	ErrChainLink = errors.New("chain link violation")

	// ErrDoubleSign marks an equivocation proof. The offending block is
	// rejected and the proposer slashed.
	ErrDoubleSign = errors.New("double signing detected")

	// ErrReorgInvalid means a rebuilt chain failed replay; the original
	// chain was restored.
	ErrReorgInvalid = errors.New("reorganization invalid")

	// ErrReorgTooDeep rejects reorganizations past MaxReorgDepth.
	ErrReorgTooDeep = errors.New("reorganization too deep")

	// ErrGenesisMismatch means persisted block 0 differs from the embedded
	// genesis; the data store is wiped before continuing.
	ErrGenesisMismatch = errors.New("genesis mismatch")

	// ErrProposalInFlight is returned when Produce is called while a
	// proposal is already collecting signatures.
	ErrProposalInFlight = errors.New("proposal already in flight")

	// ErrNothingToProduce is returned when a production round has no
	// includable work.
	ErrNothingToProduce = errors.New("nothing to produce")
)
