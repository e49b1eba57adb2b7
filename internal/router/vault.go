package router

import "percolator/pkg/types"

// vault holds aggregate custodied balances per mint. Only the Router may
// credit (deposit) or debit (withdraw) it; it is never touched directly by
// escrow or capability operations, which move balance between escrow
// entries instead (spec §4.7).
type vault struct {
	balances map[types.Mint]float64
}

func newVault() *vault {
	return &vault{balances: make(map[types.Mint]float64)}
}

// Deposit credits the vault on a user's behalf. The Router's own ledger
// does not track per-user vault balances beyond what unpledged escrow
// implies — a full user balance ledger is out of scope (spec §1 names
// wallet custody/on-chain settlement out of scope); this tracks only the
// aggregate the vault must be able to pay out against.
func (v *vault) Deposit(mint types.Mint, amount float64) error {
	if amount <= 0 {
		return newErr("deposit", types.ErrMisalignedQty, "amount must be positive")
	}
	v.balances[mint] += amount
	return nil
}

// Withdraw debits the vault. Fails if the vault does not hold enough of the
// requested mint — a user cannot withdraw more than sits unpledged in the
// vault.
func (v *vault) Withdraw(mint types.Mint, amount float64) error {
	if amount <= 0 {
		return newErr("withdraw", types.ErrMisalignedQty, "amount must be positive")
	}
	if v.balances[mint] < amount {
		return newErr("withdraw", types.ErrEscrowInsufficient, "vault balance too low")
	}
	v.balances[mint] -= amount
	return nil
}

// Balance returns the vault's current custodied balance for mint.
func (v *vault) Balance(mint types.Mint) float64 {
	return v.balances[mint]
}
