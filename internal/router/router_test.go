package router

import (
	"testing"

	"percolator/pkg/types"
)

const testMint = types.Mint("USDC")

func newTestRouter(t *testing.T) *Router {
	r, err := New(Config{IMRGlobal: 0.1})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func TestDepositWithdraw(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	if err := r.Deposit(testMint, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := r.Withdraw(testMint, 400); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := r.Withdraw(testMint, 1000); err == nil {
		t.Error("withdraw beyond balance should fail")
	}
}

func TestPledgeUnpledgeMovesBetweenVaultAndEscrow(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)

	if err := r.Pledge("alice", "slab-a", testMint, 300); err != nil {
		t.Fatalf("pledge: %v", err)
	}
	if got := r.EscrowBalance("alice", "slab-a", testMint); got != 300 {
		t.Errorf("escrow balance = %v, want 300", got)
	}
	if err := r.Pledge("alice", "slab-a", testMint, 800); err == nil {
		t.Error("pledge beyond vault balance should fail")
	}

	if err := r.Unpledge("alice", "slab-a", testMint, 100); err != nil {
		t.Fatalf("unpledge: %v", err)
	}
	if got := r.EscrowBalance("alice", "slab-a", testMint); got != 200 {
		t.Errorf("escrow balance after unpledge = %v, want 200", got)
	}
}

func TestMintCapClampsTTL(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	c, err := r.MintCap("alice", "slab-a", testMint, 100, 999_999_999, 0)
	if err != nil {
		t.Fatalf("mint cap: %v", err)
	}
	if c.ExpiryMs != capTTLMaxMs {
		t.Errorf("expiry = %d, want clamped to %d", c.ExpiryMs, capTTLMaxMs)
	}
}

func TestSafeDebitAtomicFiveSteps(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 500)

	c, err := r.MintCap("alice", "slab-a", testMint, 200, 60_000, 0)
	if err != nil {
		t.Fatalf("mint cap: %v", err)
	}

	if err := r.SafeDebit("alice", "slab-a", testMint, 150, c.Ref, 1_000); err != nil {
		t.Fatalf("safe debit: %v", err)
	}
	if got := r.EscrowBalance("alice", "slab-a", testMint); got != 350 {
		t.Errorf("escrow after debit = %v, want 350", got)
	}
	got, _ := r.Cap(c.Ref)
	if got.Remaining != 50 {
		t.Errorf("cap remaining = %v, want 50", got.Remaining)
	}
	if got.Burned {
		t.Error("cap should not be burned while remaining > 0")
	}

	// Draining the remainder burns the capability (spec §4.7 step 5).
	if err := r.SafeDebit("alice", "slab-a", testMint, 50, c.Ref, 1_000); err != nil {
		t.Fatalf("safe debit to exhaustion: %v", err)
	}
	got, _ = r.Cap(c.Ref)
	if !got.Burned {
		t.Error("cap should be burned once remaining hits 0")
	}

	// A burned capability can never debit again.
	if err := r.SafeDebit("alice", "slab-a", testMint, 1, c.Ref, 1_000); err == nil {
		t.Error("safe debit on burned capability should fail")
	}
}

func TestSafeDebitRejectsScopeMismatch(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 500)
	c, _ := r.MintCap("alice", "slab-a", testMint, 200, 60_000, 0)

	if err := r.SafeDebit("bob", "slab-a", testMint, 10, c.Ref, 1_000); err == nil {
		t.Error("safe debit for a different user should fail scope check")
	}
	if err := r.SafeDebit("alice", "slab-b", testMint, 10, c.Ref, 1_000); err == nil {
		t.Error("safe debit for a different slab should fail scope check")
	}
}

func TestSafeDebitRejectsExpiredCapability(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 500)
	c, _ := r.MintCap("alice", "slab-a", testMint, 200, 1_000, 0)

	if err := r.SafeDebit("alice", "slab-a", testMint, 10, c.Ref, 10_000); err == nil {
		t.Error("safe debit past capability expiry should fail")
	}
}

func TestSafeDebitRejectsAmountExceedingEscrow(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 1000)
	r.Pledge("alice", "slab-a", testMint, 100)
	c, _ := r.MintCap("alice", "slab-a", testMint, 500, 60_000, 0)

	if err := r.SafeDebit("alice", "slab-a", testMint, 200, c.Ref, 1_000); err == nil {
		t.Error("safe debit beyond escrow balance should fail even though within cap.remaining")
	}
}

func TestPortfolioNetsAcrossSlabsBySymbol(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.MapInstrumentSymbol("slab-a", 0, "BTC")
	r.MapInstrumentSymbol("slab-b", 0, "BTC")

	r.UpdatePortfolioOnTrade("slab-a", 0, 10, -100, "alice")
	r.UpdatePortfolioOnTrade("slab-b", 0, -4, 40, "alice")

	marks := fakeMarks{"BTC": 100}
	im, err := r.IMRouter(marks)
	if err != nil {
		t.Fatalf("im router: %v", err)
	}
	// Net exposure is 10-4=6 contracts, not 14: netting across slabs must
	// not double-count opposite-signed exposure to the same underlying.
	want := 6.0 * 100 * 0.1
	if im != want {
		t.Errorf("im = %v, want %v", im, want)
	}
}

type fakeMarks map[string]float64

func (f fakeMarks) Mark(symbol string) (float64, error) { return f[symbol], nil }
