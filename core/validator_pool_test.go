package core

import (
	"testing"
	"time"
)

func poolWith(t *testing.T, ids ...string) *ValidatorPool {
	t.Helper()
	vp := NewValidatorPool(testLogger(), NewBus(), time.Minute)
	for _, id := range ids {
		if err := vp.Register(id, "wallet-"+id, "pub-"+id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		vp.SetOnline(id)
	}
	return vp
}

//-------------------------------------------------------------
// Registration & liveness
//-------------------------------------------------------------

func TestRegisterStartsOfflineWithFullReputation(t *testing.T) {
	vp := NewValidatorPool(testLogger(), NewBus(), time.Minute)
	if err := vp.Register("v1", "w1", "pk1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	v, ok := vp.Get("v1")
	if !ok {
		t.Fatalf("validator missing")
	}
	if v.IsOnline || v.Reputation != MaxReputation {
		t.Fatalf("fresh validator online=%v rep=%d", v.IsOnline, v.Reputation)
	}
	if vp.WalletOf("v1") != "w1" {
		t.Fatalf("wallet mapping lost")
	}
}

func TestHeartbeatHeightIsMonotone(t *testing.T) {
	vp := poolWith(t, "v1")
	vp.Heartbeat("v1", 10)
	vp.Heartbeat("v1", 4)
	v, _ := vp.Get("v1")
	if v.LastSeenBlockHeight != 10 {
		t.Fatalf("height regressed to %d", v.LastSeenBlockHeight)
	}
}

func TestSweepMarksStaleValidatorsOffline(t *testing.T) {
	vp := poolWith(t, "v1", "v2")
	vp.Heartbeat("v1", 1)
	// Sweeping at a horizon two minutes ahead makes both validators stale,
	// v1's fresh heartbeat included: everything older than now+timeout
	// goes offline.
	future := time.Now().Add(2 * time.Minute).UnixMilli()
	if swept := vp.Sweep(future); swept != 2 {
		t.Fatalf("swept %d want 2", swept)
	}
	if vp.OnlineCount() != 0 {
		t.Fatalf("stale validators still online")
	}
}

//-------------------------------------------------------------
// Deterministic selection
//-------------------------------------------------------------

func TestSelectProducerDeterministic(t *testing.T) {
	vp := poolWith(t, "v1", "v2", "v3")
	first, err := vp.SelectProducer(7, "prevhash", 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	second, err := vp.SelectProducer(7, "prevhash", 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("selection not deterministic: %s vs %s", first.ID, second.ID)
	}
}

func TestSelectProducerRoundRotates(t *testing.T) {
	vp := poolWith(t, "v1", "v2")
	base, err := vp.SelectProducer(7, "prevhash", 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	next, err := vp.SelectProducer(7, "prevhash", 1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if base.ID == next.ID {
		t.Fatalf("round increment did not rotate the proposer")
	}
	wrapped, err := vp.SelectProducer(7, "prevhash", 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if wrapped.ID != base.ID {
		t.Fatalf("round wrap selected %s want %s", wrapped.ID, base.ID)
	}
}

func TestSelectProducerSkipsOffline(t *testing.T) {
	vp := poolWith(t, "v1", "v2")
	vp.SetOffline("v1")
	for round := 0; round < 5; round++ {
		v, err := vp.SelectProducer(uint64(round), "h", round)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if v.ID == "v1" {
			t.Fatalf("offline validator selected")
		}
	}
	vp.SetOffline("v2")
	if _, err := vp.SelectProducer(1, "h", 0); err == nil {
		t.Fatalf("selection succeeded with empty online set")
	}
}

func TestRoundFor(t *testing.T) {
	if got := RoundFor(100, 200); got != 0 {
		t.Fatalf("future tip round %d", got)
	}
	if got := RoundFor(200+2*BlockTimeMS, 200); got != 2 {
		t.Fatalf("round %d want 2", got)
	}
}

//-------------------------------------------------------------
// Slashing
//-------------------------------------------------------------

func TestSlashDropsReputationAndJails(t *testing.T) {
	bus := NewBus()
	var events []SlashEvidence
	bus.Subscribe(EventSlashed, func(ev Event) { events = append(events, *ev.Slash) })

	vp := NewValidatorPool(testLogger(), bus, time.Minute)
	if err := vp.Register("v1", "w1", "pk1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	vp.SetOnline("v1")

	ev := SlashEvidence{ValidatorID: "v1", Height: 9, Reason: "double sign"}
	vp.Slash(ev)
	v, _ := vp.Get("v1")
	if v.Reputation != MaxReputation-SlashReputationPenalty {
		t.Fatalf("reputation %d want %d", v.Reputation, MaxReputation-SlashReputationPenalty)
	}
	if v.IsOnline {
		t.Fatalf("slashed validator still online")
	}

	// Second slash clamps at zero.
	vp.Slash(ev)
	vp.Slash(ev)
	v, _ = vp.Get("v1")
	if v.Reputation != 0 {
		t.Fatalf("reputation %d want clamp at 0", v.Reputation)
	}
	if len(events) != 3 {
		t.Fatalf("slashed events %d want 3", len(events))
	}
}
