package core

import "testing"

//-------------------------------------------------------------
// Epoch boundaries
//-------------------------------------------------------------

func TestEpochBoundary(t *testing.T) {
	tests := []struct {
		index uint64
		want  bool
	}{
		{0, false}, {1, false}, {199, false}, {200, true}, {201, false}, {400, true},
	}
	for _, tc := range tests {
		if got := EpochBoundary(tc.index); got != tc.want {
			t.Fatalf("boundary(%d)=%v want %v", tc.index, got, tc.want)
		}
	}
}

//-------------------------------------------------------------
// Distribution
//-------------------------------------------------------------

func TestBuildEpochRewardsEqualSplitWithDust(t *testing.T) {
	store := NewAccountStore()
	store.Put(&Account{Address: ValidatorPoolAccount, Balance: 1_001})

	validators := []*Validator{
		{ID: "v1", LastSeenBlockHeight: 350},
		{ID: "v2", LastSeenBlockHeight: 399},
		{ID: "v3", LastSeenBlockHeight: 10}, // dropped out before the epoch
	}
	wallets := map[string]string{"v1": "w1", "v2": "w2", "v3": "w3"}
	walletOf := func(id string) string { return wallets[id] }

	rewards := BuildEpochRewards(store, validators, walletOf, 400, 1_700_000_600_000)
	if len(rewards) != 2 {
		t.Fatalf("rewards %d want 2", len(rewards))
	}
	for i, r := range rewards {
		if r.Type != TxReward || r.From != ValidatorPoolAccount {
			t.Fatalf("reward %d malformed: %+v", i, r)
		}
		if r.Amount != 500 {
			t.Fatalf("reward amount %d want 500", r.Amount)
		}
		if r.Nonce != uint64(i+1) {
			t.Fatalf("reward nonce %d want %d", r.Nonce, i+1)
		}
		if r.ID == "" {
			t.Fatalf("reward %d missing id", i)
		}
	}
	// The 1-unit dust stays in the pool (never scheduled for payout).
	total := rewards[0].Amount + rewards[1].Amount
	if total != 1_000 {
		t.Fatalf("scheduled %d want 1000", total)
	}
}

func TestBuildEpochRewardsOffBoundaryAndEmptyPool(t *testing.T) {
	store := NewAccountStore()
	validators := []*Validator{{ID: "v1", LastSeenBlockHeight: 100}}
	walletOf := func(string) string { return "w1" }

	if got := BuildEpochRewards(store, validators, walletOf, 150, 0); got != nil {
		t.Fatalf("rewards emitted off the epoch boundary")
	}
	if got := BuildEpochRewards(store, validators, walletOf, 200, 0); got != nil {
		t.Fatalf("rewards emitted from an empty pool")
	}
}
