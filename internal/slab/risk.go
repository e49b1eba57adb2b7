// Risk enforces the local, single-slab margin model (spec §4.6). Unlike
// the teacher's risk.Manager — a standalone goroutine aggregating
// PositionReports across every market with a channel-based kill switch —
// this is a pure, synchronous computation over one account's positions in
// one slab: there is no cross-market aggregation here (that moves to the
// Router's portfolio module) and no goroutine, matching slab.Engine's
// single-threaded-cooperative model (spec §5).
package slab

import "percolator/internal/pool"

// EquityLocal returns cash plus unrealized PnL at mark across every
// position the account holds in this slab (spec §4.6).
func (e *Engine) EquityLocal(accountIdx pool.Idx) float64 {
	acc := e.accounts.Get(accountIdx)
	equity := acc.Cash
	cur := acc.PositionHead
	for cur != pool.NoIdx {
		p := e.positions.Get(cur)
		inst := &e.instruments[p.InstrumentIdx]
		equity += float64(p.Qty) * float64(inst.ContractSize) * (inst.IndexPrice.PriceF() - p.EntryPx.PriceF())
		cur = p.NextInAccount
	}
	return equity
}

// IMSlab returns the account's local initial margin requirement: the sum
// over positions of |q|·contract_size·mark·imr (spec §4.6). Zero position
// contributes zero, so a flat account has IMSlab == 0 (monotonicity
// property: zero position ⇒ zero IM).
func (e *Engine) IMSlab(accountIdx pool.Idx) float64 {
	return e.marginSum(accountIdx, e.Header.IMR)
}

// MMSlab is IMSlab's maintenance-margin analog, using mmr in place of imr.
func (e *Engine) MMSlab(accountIdx pool.Idx) float64 {
	return e.marginSum(accountIdx, e.Header.MMR)
}

func (e *Engine) marginSum(accountIdx pool.Idx, ratio float64) float64 {
	acc := e.accounts.Get(accountIdx)
	var sum float64
	cur := acc.PositionHead
	for cur != pool.NoIdx {
		p := e.positions.Get(cur)
		inst := &e.instruments[p.InstrumentIdx]
		qty := float64(p.Qty)
		if qty < 0 {
			qty = -qty
		}
		sum += qty * float64(inst.ContractSize) * inst.IndexPrice.PriceF() * ratio
		cur = p.NextInAccount
	}
	return sum
}

// PreTradeMarginOK reports whether the account's equity after applying
// deltaCash (the cash effect of a candidate commit) would stay at or
// above its post-trade IM requirement.
// The caller passes the post-trade IM it has already computed against the
// hypothetical position, since IMSlab alone cannot see a trade that hasn't
// been applied yet (spec §4.6 "a commit reducing equity_local − IM_slab
// below zero is rejected").
func (e *Engine) PreTradeMarginOK(accountIdx pool.Idx, deltaCash float64, postTradeIM float64) bool {
	equity := e.EquityLocal(accountIdx) + deltaCash
	return equity-postTradeIM >= 0
}

// LiquidationEligible reports whether the account's local equity has
// fallen below its maintenance margin requirement (spec §4.6).
func (e *Engine) LiquidationEligible(accountIdx pool.Idx) bool {
	return e.EquityLocal(accountIdx) < e.MMSlab(accountIdx)
}
