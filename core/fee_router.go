package core

// fee_router.go – per-transaction fee splits. The fee partitions into four
// integer shares (primary, validator pool, recycle, dev) with the primary
// share absorbing the floor-division remainder, so the shares always sum
// exactly to the fee.

// FeeSplit is the result of partitioning one transaction fee.
type FeeSplit struct {
	Primary uint64
	Pool    uint64
	Recycle uint64
	Dev     uint64
}

// SplitFee partitions fee by the protocol percentages, remainder to primary.
func SplitFee(fee uint64) FeeSplit {
	pool := fee * FeeSplitPoolPct / 100
	recycle := fee * FeeSplitRecyclePct / 100
	dev := fee * FeeSplitDevPct / 100
	return FeeSplit{
		Primary: fee - pool - recycle - dev,
		Pool:    pool,
		Recycle: recycle,
		Dev:     dev,
	}
}

// Total returns the sum of all shares; by construction it equals the fee.
func (fs FeeSplit) Total() uint64 {
	return fs.Primary + fs.Pool + fs.Recycle + fs.Dev
}

// routeFee debits the fee from the sender and credits the four
// destinations inside the committing snapshot. The primary share goes to
// the target account for social actions and to the proposer's node wallet
// otherwise, falling back to the main treasury when no wallet is known.
func routeFee(sn *StateSnapshot, tx *Transaction, nodeWallet string) error {
	if tx.Fee == 0 {
		return nil
	}
	if err := sn.Debit(tx.From, tx.Fee); err != nil {
		return err
	}
	split := SplitFee(tx.Fee)

	primaryDest := nodeWallet
	if tx.Type.IsSocial() && tx.To != "" {
		primaryDest = tx.To
	}
	if primaryDest == "" {
		primaryDest = TreasuryMain
	}

	sn.Credit(primaryDest, split.Primary)
	sn.Credit(ValidatorPoolAccount, split.Pool)
	sn.Credit(TreasuryRecycle, split.Recycle)
	sn.Credit(TreasuryDev, split.Dev)
	return nil
}
