// The Aggressor Roundtrip Guard (spec §4.4, §9), adapted from the
// teacher's strategy.FlowTracker: that tracker keeps a rolling time window
// of fills and scores directional imbalance to widen quotes defensively.
// Here the window is the instrument's current epoch rather than a
// sliding duration, and the bookkeeping unit is net buy/sell notional per
// (account, instrument, epoch) rather than a per-fill slice — because the
// slab's batching model makes "this epoch" the natural toxicity boundary,
// not wall-clock time.
package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// upsertAggressor records one taker fill leg against the epoch-keyed
// AggressorEntry for (accountIdx, inst), creating the entry on first touch.
func (e *Engine) upsertAggressor(epoch uint64, accountIdx pool.Idx, inst InstrumentIdx, side types.Side, qty Qty, notional float64) *AggressorEntry {
	key := aggKey{epoch: epoch, accountIdx: accountIdx, instrument: inst}
	idx, ok := e.aggByKey[key]
	if !ok {
		newIdx, allocOK := e.aggressor.Alloc()
		if !allocOK {
			// Pool exhausted: fall back to an unmetered entry rather than
			// failing the commit over bookkeeping capacity — ARG is an
			// optional guard (spec §4.4 "(optional)").
			return &AggressorEntry{Epoch: epoch, AccountIdx: accountIdx, InstrumentIdx: inst}
		}
		idx = newIdx
		e.aggByKey[key] = idx
		entry := e.aggressor.Get(idx)
		*entry = AggressorEntry{Epoch: epoch, AccountIdx: accountIdx, InstrumentIdx: inst, InUse: true}
	}
	entry := e.aggressor.Get(idx)
	if side == types.Bid {
		entry.BuyQty += qty
		entry.BuyNotional += notional
	} else {
		entry.SellQty += qty
		entry.SellNotional += notional
	}
	return entry
}

// argTaxBps returns the extra fee, in basis points of this fill's
// notional, levied by the Aggressor Roundtrip Guard. It fires when the
// account already has an opposite-direction aggressor leg open this epoch
// and the incoming fill's price would realize non-negative PnL against
// that leg's average price — the "sandwich" pattern the guard exists to
// tax (spec §4.4, §9 "sandwich tax... chosen over clipping").
func argTaxBps(header Header, entry *AggressorEntry, side types.Side, px Price) int64 {
	if !header.ARGEnabled || entry == nil {
		return 0
	}
	var oppositeQty Qty
	var oppositeAvgPx float64
	if side == types.Bid {
		oppositeQty = entry.SellQty
		if oppositeQty > 0 {
			oppositeAvgPx = entry.SellNotional / float64(oppositeQty)
		}
	} else {
		oppositeQty = entry.BuyQty
		if oppositeQty > 0 {
			oppositeAvgPx = entry.BuyNotional / float64(oppositeQty)
		}
	}
	if oppositeQty == 0 {
		return 0
	}

	// Non-negative PnL on the opposite leg: sold above where it bought
	// (realizing a buy-then-sell gain), or bought below where it sold.
	var realizesGain bool
	if side == types.Bid {
		// New leg buys; opposite leg sold at oppositeAvgPx. Gain if it can
		// now buy back at or below what it sold for.
		realizesGain = px.PriceF() <= oppositeAvgPx
	} else {
		realizesGain = px.PriceF() >= oppositeAvgPx
	}
	if !realizesGain {
		return 0
	}
	return header.ARGTaxBps
}
