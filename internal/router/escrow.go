package router

import "percolator/pkg/types"

// escrowBook is the per-(user, slab, mint) ledger the Router debits through
// safe_debit and credits through pledge (spec §4.7).
type escrowBook struct {
	entries map[EscrowKey]*Escrow
}

func newEscrowBook() *escrowBook {
	return &escrowBook{entries: make(map[EscrowKey]*Escrow)}
}

func (b *escrowBook) get(key EscrowKey) *Escrow {
	e, ok := b.entries[key]
	if !ok {
		e = &Escrow{}
		b.entries[key] = e
	}
	return e
}

// Pledge moves amount from the vault into escrow(u,s,m) ahead of a reserve
// route (spec §4.8/§4.9 step 3: "credit escrow(u,slab_i,m) by max_charge_i").
func (r *Router) Pledge(user string, slab SlabID, mint types.Mint, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount <= 0 {
		return newErr("pledge", types.ErrMisalignedQty, "amount must be positive")
	}
	if r.vault.Balance(mint) < amount {
		return newErr("pledge", types.ErrEscrowInsufficient, "insufficient vault balance to pledge")
	}
	if err := r.vault.Withdraw(mint, amount); err != nil {
		return err
	}
	esc := r.escrow.get(EscrowKey{User: user, Slab: slab, Mint: mint})
	esc.Balance += amount
	esc.Nonce++
	return nil
}

// Unpledge reverses a pledge that was never consumed by a commit — the
// orchestrator calls this on the uncommitted slabs of a partially-failed
// cross-slab route (spec §4.9 step 5: "refund escrow (un-pledge)").
func (r *Router) Unpledge(user string, slab SlabID, mint types.Mint, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount <= 0 {
		return newErr("unpledge", types.ErrMisalignedQty, "amount must be positive")
	}
	esc := r.escrow.get(EscrowKey{User: user, Slab: slab, Mint: mint})
	if esc.Balance < amount {
		return newErr("unpledge", types.ErrEscrowInsufficient, "unpledge exceeds escrow balance")
	}
	esc.Balance -= amount
	esc.Nonce++
	return r.vault.Deposit(mint, amount)
}

// EscrowBalance reports the current pledged balance for (user, slab, mint).
func (r *Router) EscrowBalance(user string, slab SlabID, mint types.Mint) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.escrow.get(EscrowKey{User: user, Slab: slab, Mint: mint}).Balance
}
