package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// findPosition returns the pool index of account a's position in
// instrument i, if any.
func (e *Engine) findPosition(accountIdx pool.Idx, inst InstrumentIdx) (pool.Idx, bool) {
	acc := e.accounts.Get(accountIdx)
	cur := acc.PositionHead
	for cur != pool.NoIdx {
		p := e.positions.Get(cur)
		if p.InstrumentIdx == inst {
			return cur, true
		}
		cur = p.NextInAccount
	}
	return pool.NoIdx, false
}

// getOrCreatePosition returns (allocating if needed) the position slot for
// (accountIdx, inst), linked into the account's position list.
func (e *Engine) getOrCreatePosition(accountIdx pool.Idx, inst InstrumentIdx) (*Position, error) {
	if idx, ok := e.findPosition(accountIdx, inst); ok {
		return e.positions.Get(idx), nil
	}
	idx, ok := e.positions.Alloc()
	if !ok {
		return nil, newErr("apply_fill", types.ErrPoolFull, "position pool exhausted")
	}
	acc := e.accounts.Get(accountIdx)
	p := e.positions.Get(idx)
	*p = Position{
		AccountIdx:    accountIdx,
		InstrumentIdx: inst,
		NextInAccount: acc.PositionHead,
		InUse:         true,
	}
	acc.PositionHead = idx
	return p, nil
}

// applyFill updates a position for one trade leg (side, qty, px) using the
// update rule in spec §4.5: same-sign add re-weights entry_px; opposite-sign
// partial close realizes PnL at the old entry; opposite-sign overflow flips
// into a fresh position at the fill price. side is the direction of THIS
// fill (Bid = bought qty, Ask = sold qty). Returns the realized PnL from
// this fill (0 on pure opens/adds).
func applyFill(p *Position, side types.Side, qty Qty, px Price) float64 {
	signedQty := int64(qty)
	if side == types.Ask {
		signedQty = -signedQty
	}

	switch {
	case p.Qty == 0:
		p.Qty = Qty(signedQty)
		p.EntryPx = px
		return 0

	case sameSign(int64(p.Qty), signedQty):
		absOld := abs64(int64(p.Qty))
		absNew := absOld + abs64(signedQty)
		p.EntryPx = Price((float64(absOld)*p.EntryPx.PriceF() + float64(abs64(signedQty))*px.PriceF()) / float64(absNew) * 1e6)
		p.Qty = Qty(int64(p.Qty) + signedQty)
		return 0

	default:
		absOld := abs64(int64(p.Qty))
		absNew := abs64(signedQty)
		if absNew <= absOld {
			// Partial (or exact) close: realize PnL signed by the OLD side.
			oldSideSign := sign64(int64(p.Qty))
			pnl := float64(absNew) * (px.PriceF() - p.EntryPx.PriceF()) * float64(oldSideSign)
			p.Qty = Qty(int64(p.Qty) + signedQty)
			if p.Qty == 0 {
				p.EntryPx = 0
			}
			return pnl
		}
		// Flip: full close of |q| realizes PnL, residual opens fresh at px.
		oldSideSign := sign64(int64(p.Qty))
		pnl := float64(absOld) * (px.PriceF() - p.EntryPx.PriceF()) * float64(oldSideSign)
		residual := absNew - absOld
		p.Qty = Qty(sign64(signedQty) * residual)
		p.EntryPx = px
		return pnl
	}
}

func sameSign(a, b int64) bool {
	return (a >= 0) == (b >= 0)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign64(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

// accrueFunding applies the funding delta since the position's last
// snapshot to the owning account's cash, then advances the snapshot (spec
// §4.5 "on every touch").
func (e *Engine) accrueFunding(p *Position, inst *Instrument) {
	delta := (inst.CumFunding - p.LastFunding) * float64(p.Qty)
	e.accounts.Get(p.AccountIdx).Cash += delta
	p.LastFunding = inst.CumFunding
}
