package router

import (
	"fmt"

	"percolator/pkg/types"
)

// MintCap issues a new capability scoped to (user, slab, mint) with a
// debit ceiling of amountMax, clamped to the Router-enforced TTL ceiling
// (spec §4.7 "Mint-time TTL is clamped to TTL_MAX = 120s").
func (r *Router) MintCap(user string, slab SlabID, mint types.Mint, amountMax float64, ttlMs int64, nowMs int64) (*Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amountMax <= 0 {
		return nil, newErr("mint_cap", types.ErrMisalignedQty, "amount_max must be positive")
	}
	if ttlMs > capTTLMaxMs {
		ttlMs = capTTLMaxMs
	}

	r.capNonce++
	c := &Capability{
		Ref:       CapRef(fmt.Sprintf("cap-%d", r.capNonce)),
		ScopeUser: user,
		ScopeSlab: slab,
		Mint:      mint,
		AmountMax: amountMax,
		Remaining: amountMax,
		ExpiryMs:  nowMs + ttlMs,
		Nonce:     r.capNonce,
	}
	if err := r.signerKey.sign(c); err != nil {
		return nil, newErr("mint_cap", types.ErrInvariantViolation, err.Error())
	}
	r.caps[c.Ref] = c
	return c, nil
}

// BurnCap marks a capability permanently spent. Burning an already-burned
// or unknown capability is a no-op, matching the idempotent-cancellation
// discipline used throughout the slab engine.
func (r *Router) BurnCap(ref CapRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caps[ref]; ok {
		c.Burned = true
	}
}

// Cap looks up a minted capability by reference, for slabs (via
// slab.CommitAuthorizer) to read scope/expiry/remaining without mutating
// state — only SafeDebit performs the state transition (spec §5 "Shared
// resources").
func (r *Router) Cap(ref CapRef) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[ref]
	return c, ok
}

// SafeDebit implements spec §4.7's atomic five-step sequence: all five
// assertions and mutations happen under one lock, so a partial debit is
// never observable.
func (r *Router) SafeDebit(user string, slab SlabID, mint types.Mint, amount float64, ref CapRef, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caps[ref]
	if !ok {
		return newErr("safe_debit", types.ErrCapScopeMismatch, "unknown capability")
	}

	// Step 1: scope, expiry, burned.
	if c.ScopeUser != user || c.ScopeSlab != slab || c.Mint != mint {
		return newErr("safe_debit", types.ErrCapScopeMismatch, "capability scope does not match caller")
	}
	if nowMs > c.ExpiryMs {
		return newErr("safe_debit", types.ErrCapExpired, "capability past expiry")
	}
	if c.Burned {
		return newErr("safe_debit", types.ErrCapBurned, "capability already burned")
	}
	if !r.signerKey.verify(c) {
		return newErr("safe_debit", types.ErrCapScopeMismatch, "capability signature invalid")
	}

	// Step 2: read escrow balance.
	esc := r.escrow.get(EscrowKey{User: user, Slab: slab, Mint: mint})

	// Step 3: sufficiency.
	if amount > c.Remaining {
		return newErr("safe_debit", types.ErrChargeExceedsMax, "amount exceeds capability remaining")
	}
	if amount > esc.Balance {
		return newErr("safe_debit", types.ErrEscrowInsufficient, "amount exceeds escrow balance")
	}

	// Step 4: atomic mutation.
	c.Remaining -= amount
	esc.Balance -= amount
	esc.Nonce++

	// Step 5: burn on exhaustion.
	if c.Remaining == 0 {
		c.Burned = true
	}
	return nil
}
