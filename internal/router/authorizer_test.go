package router

import (
	"testing"
)

// CheckAndReserve's amount argument is a reservation's MaxCharge, a
// fee-ceiling upper bound — not the real total_charge a commit settles for.
// A capability whose remaining balance sits below MaxCharge but above the
// eventual total_charge must still pass CheckAndReserve; SafeDebit alone
// enforces sufficiency once the real charge is known.
func TestCheckAndReserveIgnoresAmountAgainstRemaining(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 500)
	c, err := r.MintCap("alice", "slab-a", testMint, 50, 60_000, 0)
	if err != nil {
		t.Fatalf("mint cap: %v", err)
	}

	authz := r.AuthorizerFor("slab-a")
	authz.NowMs = func() int64 { return 0 }
	// amount (200) is well above the cap's remaining (50), but
	// CheckAndReserve should not reject on that basis alone.
	if _, err := authz.CheckAndReserve(string(c.Ref), "alice", testMint, 200); err != nil {
		t.Fatalf("check and reserve: %v", err)
	}

	// The real sufficiency gate is SafeDebit, using the eventual, possibly
	// much smaller, total_charge.
	if err := authz.SafeDebit(string(c.Ref), "alice", testMint, 30); err != nil {
		t.Fatalf("safe debit: %v", err)
	}
	got, _ := r.Cap(c.Ref)
	if got.Remaining != 20 {
		t.Errorf("cap remaining = %v, want 20", got.Remaining)
	}
}

func TestCheckAndReserveStillRejectsScopeExpiryBurn(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 500)
	c, err := r.MintCap("alice", "slab-a", testMint, 200, 1_000, 0)
	if err != nil {
		t.Fatalf("mint cap: %v", err)
	}

	authz := r.AuthorizerFor("slab-a")
	authz.NowMs = func() int64 { return 0 }

	if _, err := authz.CheckAndReserve(string(c.Ref), "bob", testMint, 1); err == nil {
		t.Error("wrong owner should fail scope check")
	}
	if _, err := authz.CheckAndReserve("unknown-ref", "alice", testMint, 1); err == nil {
		t.Error("unknown capability ref should fail")
	}

	authz.NowMs = func() int64 { return 10_000 }
	if _, err := authz.CheckAndReserve(string(c.Ref), "alice", testMint, 1); err == nil {
		t.Error("expired capability should fail")
	}

	authz.NowMs = func() int64 { return 0 }
	r.BurnCap(c.Ref)
	if _, err := authz.CheckAndReserve(string(c.Ref), "alice", testMint, 1); err == nil {
		t.Error("burned capability should fail")
	}
}
