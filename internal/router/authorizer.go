package router

import "percolator/pkg/types"

// SlabAuthorizer adapts one (Router, SlabID) pair to slab.CommitAuthorizer,
// letting a slab.Engine call back into the Router's capability store
// without importing internal/router directly (spec §4.7: "the slab never
// holds capability state itself, only calls out to check it"). One
// SlabAuthorizer is handed to every slab.Commit call made on behalf of that
// slab; NowMs is read fresh per call since a long-lived authorizer must not
// cache a stale clock.
type SlabAuthorizer struct {
	router *Router
	slab   SlabID
	NowMs  func() int64
}

// AuthorizerFor returns the CommitAuthorizer a slab executor should pass
// to slab.Commit for every commit it processes.
func (r *Router) AuthorizerFor(slab SlabID) *SlabAuthorizer {
	return &SlabAuthorizer{router: r, slab: slab, NowMs: nowMs}
}

// CheckAndReserve validates the capability's scope/expiry/burn state,
// without mutating anything — the read-only half of safe_debit's five
// steps (spec §4.7 step 1; the step-3 sufficiency check and the mutation
// in steps 4–5 are left to SafeDebit).
// amount is the reservation's MaxCharge, a fee-ceiling upper bound that
// can be materially above the real total_charge the walk eventually
// computes (maker rebates, JIT penalty interaction) — spec §4.4 only
// requires total_charge <= capability.remaining to hold after the walk,
// so that sufficiency check belongs solely to the post-walk SafeDebit
// call, not here.
func (a *SlabAuthorizer) CheckAndReserve(capRef string, owner string, mint types.Mint, amount float64) (int64, error) {
	a.router.mu.RLock()
	defer a.router.mu.RUnlock()

	c, ok := a.router.caps[CapRef(capRef)]
	if !ok {
		return 0, newErr("check_and_reserve", types.ErrCapScopeMismatch, "unknown capability")
	}
	if c.ScopeUser != owner || c.ScopeSlab != a.slab || c.Mint != mint {
		return 0, newErr("check_and_reserve", types.ErrCapScopeMismatch, "capability scope does not match caller")
	}
	now := a.NowMs()
	if now > c.ExpiryMs {
		return 0, newErr("check_and_reserve", types.ErrCapExpired, "capability past expiry")
	}
	if c.Burned {
		return 0, newErr("check_and_reserve", types.ErrCapBurned, "capability already burned")
	}
	return c.ExpiryMs, nil
}

// SafeDebit performs the Router's atomic five-step debit (spec §4.7).
func (a *SlabAuthorizer) SafeDebit(capRef string, owner string, mint types.Mint, amount float64) error {
	return a.router.SafeDebit(owner, a.slab, mint, amount, CapRef(capRef), a.NowMs())
}
