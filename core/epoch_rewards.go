package core

// epoch_rewards.go – validator-pool distribution. Every EpochLength blocks
// the pool balance is divided equally among validators seen within the
// closing epoch; one REWARD transaction is emitted per recipient and the
// dust remainder stays in the pool account.

// EpochBoundary reports whether producing nextIndex closes an epoch.
func EpochBoundary(nextIndex uint64) bool {
	return nextIndex > 0 && nextIndex%EpochLength == 0
}

// BuildEpochRewards assembles the REWARD transactions paying the validator
// pool out to every validator whose last seen height falls inside the
// closing epoch. Returned transactions are ready for inclusion; they spend
// from the pool account with sequential nonces.
func BuildEpochRewards(store *AccountStore, validators []*Validator, walletOf func(string) string, nextIndex uint64, tsMS int64) []*Transaction {
	if !EpochBoundary(nextIndex) {
		return nil
	}

	var cutoff uint64
	if nextIndex > EpochLength {
		cutoff = nextIndex - EpochLength
	}

	var recipients []string
	for _, v := range validators {
		if v.LastSeenBlockHeight < cutoff {
			continue
		}
		wallet := walletOf(v.ID)
		if wallet == "" {
			continue
		}
		recipients = append(recipients, wallet)
	}
	if len(recipients) == 0 {
		return nil
	}

	pool, ok := store.Get(ValidatorPoolAccount)
	if !ok || pool.Balance == 0 {
		return nil
	}
	share := pool.Balance / uint64(len(recipients))
	if share == 0 {
		return nil
	}

	out := make([]*Transaction, 0, len(recipients))
	nonce := pool.Nonce
	for _, wallet := range recipients {
		nonce++
		tx := &Transaction{
			Type:        TxReward,
			From:        ValidatorPoolAccount,
			To:          wallet,
			Amount:      share,
			Nonce:       nonce,
			TimestampMS: tsMS,
		}
		// Ids are fixed up front so dedup and mempool bookkeeping treat
		// rewards like any other transaction.
		if _, err := tx.ComputeID(); err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}
