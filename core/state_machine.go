package core

// state_machine.go – deterministic transaction application. Every mutation
// happens inside the supplied snapshot; the caller commits or discards it
// atomically. Validation runs to completion before the first mutation so a
// rejected transaction leaves the snapshot untouched.
//
// Time-dependent checks (expiry, fee time gates) use the enclosing block's
// timestamp, never the wall clock, so replay from genesis reproduces the
// exact same acceptance decisions.

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// BlockContext carries the per-block environment a transaction applies in.
type BlockContext struct {
	Height      uint64
	TimestampMS int64

	// NodeWallet is the proposer's payout address for non-social primary
	// fee shares.
	NodeWallet string

	Logger *log.Logger

	// Seen reports whether a tx id was committed recently (dedup cache).
	Seen func(id string) bool

	// Record is invoked for every successfully applied transaction id.
	Record func(id string)

	// AccrueFee is invoked with every successfully charged fee, feeding
	// the mining-window accumulator.
	AccrueFee func(fee uint64)
}

func (ctx *BlockContext) seen(id string) bool {
	return ctx.Seen != nil && ctx.Seen(id)
}

func (ctx *BlockContext) record(id string) {
	if ctx.Record != nil {
		ctx.Record(id)
	}
}

func (ctx *BlockContext) accrueFee(fee uint64) {
	if ctx.AccrueFee != nil && fee > 0 {
		ctx.AccrueFee(fee)
	}
}

// ApplyTransaction validates tx against the snapshot and, if acceptable,
// applies its mutations. The error reports why the transaction was refused;
// the snapshot is unchanged in that case.
func ApplyTransaction(sn *StateSnapshot, tx *Transaction, ctx *BlockContext) error {
	// 1. Structure, signature size, expiry.
	if err := tx.WellFormed(); err != nil {
		return err
	}
	if tx.Expired(ctx.TimestampMS) {
		return fmt.Errorf("%w: tx %s", ErrExpired, tx.ID)
	}

	// 2. Replay protection.
	if tx.ID == "" {
		if _, err := tx.ComputeID(); err != nil {
			return err
		}
	}
	if ctx.seen(tx.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}

	// 3–4. Sender account and signature. System rewards carry no sender
	// signature; everything else must verify against the embedded key or
	// the key on record.
	from := sn.GetOrCreate(tx.From)
	if tx.Type != TxReward {
		if err := tx.VerifySignature(from.PublicKey); err != nil {
			return err
		}
	}

	// 5. Recipient, aliased to the sender for self-sends.
	to := from
	if tx.To != "" && tx.To != tx.From {
		to = sn.GetOrCreate(tx.To)
	}

	// 6. Replay ordering.
	if tx.Nonce != from.Nonce+1 {
		return fmt.Errorf("%w: got %d want %d for %s", ErrInvalidNonce, tx.Nonce, from.Nonce+1, tx.From)
	}

	// 7. Fee floors and time gates.
	if err := checkFeePolicy(tx, to, ctx.TimestampMS); err != nil {
		return err
	}

	// Spendability: amount plus fee must be covered before any mutation.
	if tx.Type != TxReward {
		if from.Balance < tx.Amount || from.Balance-tx.Amount < tx.Fee {
			return fmt.Errorf("%w: %s needs %d+%d", ErrInsufficientBalance, tx.From, tx.Amount, tx.Fee)
		}
	}

	// 8. Type dispatch.
	var err error
	switch tx.Type {
	case TxTransfer:
		err = applyTransfer(sn, tx, from, to, ctx)
	case TxMessagePayment, TxPrivateMessage, TxPostContent, TxPostAction,
		TxComment, TxShare, TxFollow, TxUnfollow:
		err = applyValueMove(tx, from, to)
	case TxLike:
		err = applyLike(tx, from, to)
	case TxProfileUpdate:
		err = applyProfileUpdate(tx, from)
	case TxReward:
		err = applyReward(tx, from, to)
	case TxBatch, TxConversationBatch:
		err = applyBatch(sn, tx, from, to, ctx)
	default:
		err = fmt.Errorf("%w: unhandled type %q", ErrInvalidStructure, string(tx.Type))
	}
	if err != nil {
		return err
	}

	// 9. Fee split, nonce advance, bookkeeping.
	if tx.Type != TxReward {
		if err := routeFee(sn, tx, ctx.NodeWallet); err != nil {
			return err
		}
	}
	from.Nonce++
	sn.Put(from)
	sn.Put(to)
	ctx.record(tx.ID)
	ctx.accrueFee(tx.Fee)
	return nil
}

// checkFeePolicy enforces the static per-type minimum and the sub-FAST
// inclusion waits. The dynamic transfer minimum is enforced in
// applyTransfer where the recipient tier is at hand.
func checkFeePolicy(tx *Transaction, to *Account, tsMS int64) error {
	if min := tx.Type.MinFee(); tx.Fee < min {
		return fmt.Errorf("%w: %s requires at least %d", ErrInvalidFee, tx.Type, min)
	}
	if tx.Fee >= FeeFastThreshold || tx.Type.TimeGateExempt() {
		return nil
	}
	age := tsMS - tx.TimestampMS
	switch {
	case tx.Fee >= FeeStandardThreshold:
		if age < WaitStandardMS {
			return fmt.Errorf("%w: standard tier needs %dms, aged %dms", ErrFeeTimeLocked, WaitStandardMS, age)
		}
	case tx.Fee >= FeeLowThreshold:
		if age < WaitLowMS {
			return fmt.Errorf("%w: low tier needs %dms, aged %dms", ErrFeeTimeLocked, WaitLowMS, age)
		}
	default:
		return fmt.Errorf("%w: fee %d below the low tier floor", ErrInvalidFee, tx.Fee)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Type-specific application
// -----------------------------------------------------------------------------

func applyTransfer(sn *StateSnapshot, tx *Transaction, from, to *Account, ctx *BlockContext) error {
	priority := ""
	if tx.Payload != nil {
		priority = tx.Payload.Priority
	}
	required, err := RequiredTransferFee(tx.Amount, to, priority, ctx.TimestampMS)
	if err != nil {
		return err
	}
	if tx.Fee < required {
		return fmt.Errorf("%w: transfer of %d requires fee %d, got %d", ErrInvalidFee, tx.Amount, required, tx.Fee)
	}

	from.Balance -= tx.Amount
	to.Balance += tx.Amount

	// Recipient activity counter with a yearly reset, feeding the fee
	// tiering of future transfers.
	if to.LastYearResetMS == 0 || ctx.TimestampMS-to.LastYearResetMS >= YearMS {
		to.IncomingTransferCount = 0
		to.LastYearResetMS = ctx.TimestampMS
	}
	to.IncomingTransferCount++
	return nil
}

// applyValueMove handles every type whose state effect is an optional value
// transfer; the payload stays opaque to the core.
func applyValueMove(tx *Transaction, from, to *Account) error {
	from.Balance -= tx.Amount
	to.Balance += tx.Amount
	return nil
}

func applyLike(tx *Transaction, from, to *Account) error {
	if tx.Payload == nil || tx.Payload.ContentID == "" {
		return fmt.Errorf("%w: like without content id", ErrInvalidStructure)
	}
	if from.LikedContentIDs[tx.Payload.ContentID] {
		return fmt.Errorf("%w: %s already liked %s", ErrDuplicate, tx.From, tx.Payload.ContentID)
	}
	if from.LikedContentIDs == nil {
		from.LikedContentIDs = make(map[string]bool)
	}
	from.LikedContentIDs[tx.Payload.ContentID] = true
	from.Balance -= tx.Amount
	to.Balance += tx.Amount
	return nil
}

func applyProfileUpdate(tx *Transaction, from *Account) error {
	if tx.Payload == nil {
		return fmt.Errorf("%w: profile update without payload", ErrInvalidStructure)
	}
	if tx.Payload.Nickname != "" {
		from.Nickname = tx.Payload.Nickname
	}
	if tx.Payload.PublicKey != "" {
		from.PublicKey = tx.Payload.PublicKey
	}
	if tx.Payload.EncryptionPublicKey != "" {
		from.EncryptionPublicKey = tx.Payload.EncryptionPublicKey
	}
	return nil
}

// applyReward moves a system payout from a treasury account to the
// recipient. Rewards carry no signature and pay no fee.
func applyReward(tx *Transaction, from, to *Account) error {
	if from.Balance < tx.Amount {
		return fmt.Errorf("%w: reward source %s", ErrInsufficientBalance, tx.From)
	}
	from.Balance -= tx.Amount
	to.Balance += tx.Amount
	return nil
}

// applyBatch applies the independently signed inner transactions. A failing
// inner transaction is skipped with a warning and never fails the wrapper.
func applyBatch(sn *StateSnapshot, tx *Transaction, from, to *Account, ctx *BlockContext) error {
	for _, inner := range tx.Payload.Inner {
		if inner.Type.IsBatch() {
			logWarn(ctx.Logger, log.Fields{"batch": tx.ID}, "nested batch skipped")
			continue
		}
		if err := ApplyTransaction(sn, inner, ctx); err != nil {
			logWarn(ctx.Logger, log.Fields{
				"batch": tx.ID,
				"inner": inner.ID,
				"err":   err.Error(),
			}, "batch inner transaction skipped")
		}
	}
	return nil
}

func logWarn(lg *log.Logger, fields log.Fields, msg string) {
	if lg != nil {
		lg.WithFields(fields).Warn(msg)
	}
}
