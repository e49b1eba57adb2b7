package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// CommitAuthorizer validates that the capability presented with a commit
// call actually authorizes it, standing in for the Router's real
// capability store and signature check (spec §4.7) — the slab never holds
// capability state itself, only calls out to check it, matching §1's
// "key management... referenced only through the interfaces they present
// to the core."
type CommitAuthorizer interface {
	// CheckAndReserve validates scope/expiry/burn state for the capability
	// named by capRef against (owner, instrumentMint), and returns the
	// capability's expiry so the slab can enforce
	// reservation.expiry_ms <= capability.expiry_ts locally. amount is the
	// reservation's MaxCharge; the Router's implementation does not compare
	// it with the capability's remaining balance. It does not debit — debit
	// and the sufficiency check happen via SafeDebit after the slab finishes
	// walking.
	CheckAndReserve(capRef string, owner string, mint types.Mint, amount float64) (expiryMs int64, err error)
	// SafeDebit performs the Router's five-step safe_debit sequence
	// (spec §4.7) for the final total_charge once the commit's walk has
	// succeeded locally.
	SafeDebit(capRef string, owner string, mint types.Mint, amount float64) error
}

// OracleReader supplies the mark price used for the kill-band check, read
// at the same epoch the Router used for its own pre-check (spec §4.4).
type OracleReader interface {
	Mark(inst InstrumentIdx) (Price, error)
}

// CommitInput carries the arguments to Commit — hold_id, cap_ref, salt16
// per spec §6.1's operation table; everything else needed for the reveal
// check (route_id, iidx, side, qty, limit_px) was already captured on the
// Reservation at reserve time.
type CommitInput struct {
	HoldID         HoldID
	CapRef         string
	SettlementMint types.Mint
	Salt16         uint16
	NowMs          int64
	RevealDelayMs  int64
}

// CommitResult summarizes a successful commit.
type CommitResult struct {
	TradeCount  int
	TotalCharge float64
	RealizedPnL float64
}

// Commit redeems a reservation: walk → check → apply → debit (spec §4.4,
// §9 design notes). All local pool mutation happens only after every
// precondition and the post-walk charge checks pass — a failed check after
// partial local computation rolls back the bounded set of changes staged
// during the walk so pool state is never left half-applied.
func (e *Engine) Commit(in CommitInput, authz CommitAuthorizer, oracle OracleReader, markAtReserve Price) (*CommitResult, error) {
	resvIdx, ok := e.holdIndex[in.HoldID]
	if !ok {
		return nil, newErr("commit", types.ErrUnknownHold, "")
	}
	r := e.reservations.Get(resvIdx)
	if !r.InUse || r.Consumed {
		return nil, newErr("commit", types.ErrUnknownHold, "already consumed or released")
	}
	if in.NowMs > r.ExpiryMs {
		return nil, newErr("commit", types.ErrReservationExpired, "")
	}

	inst, err := e.Instrument(r.InstrumentIdx)
	if err != nil {
		return nil, err
	}

	if err := checkCommitment(r, in); err != nil {
		return nil, err
	}

	markNow, err := oracle.Mark(r.InstrumentIdx)
	if err != nil {
		return nil, err
	}
	if err := checkKillBand(markAtReserve, markNow, e.Header.KillBandBps); err != nil {
		return nil, err
	}

	acc := e.accounts.Get(r.AccountIdx)
	capExpiry, err := authz.CheckAndReserve(in.CapRef, acc.Owner, in.SettlementMint, r.MaxCharge)
	if err != nil {
		return nil, err
	}
	if r.ExpiryMs > capExpiry {
		return nil, newErr("commit", types.ErrCapExpired, "reservation outlives capability")
	}

	type rollbackEntry struct {
		orderIdx      pool.Idx
		qtyDelta      Qty
		reservedDelta Qty
		freedOrder    bool
	}
	var log []rollbackEntry
	rollback := func() {
		for i := len(log) - 1; i >= 0; i-- {
			le := log[i]
			if le.freedOrder {
				// The order slot was freed; nothing to restore into — a
				// freed-and-filled order never existed again, so rollback
				// of an exhausted order only matters if we reach here
				// before any other allocation could reuse the slot, which
				// cannot happen within this synchronous call.
				continue
			}
			o := e.orders.Get(le.orderIdx)
			o.Qty += le.qtyDelta
			o.ReservedQty += le.reservedDelta
		}
	}

	position, err := e.getOrCreatePosition(r.AccountIdx, r.InstrumentIdx)
	if err != nil {
		return nil, err
	}

	var (
		totalCharge float64
		totalNotional float64
		realizedPnL float64
		tradeCount  int
	)

	aggEntry := e.upsertAggressor(inst.Epoch, r.AccountIdx, r.InstrumentIdx, r.Side, 0, 0)

	cur := r.SlicesHead
	for cur != pool.NoIdx {
		s := e.slices.Get(cur)
		o := e.orders.Get(s.OrderIdx)

		fillQty := s.Qty
		fillPx := o.Price
		notional := float64(fillQty) * fillPx.PriceF()

		log = append(log, rollbackEntry{orderIdx: s.OrderIdx, qtyDelta: fillQty, reservedDelta: fillQty})
		o.Qty -= fillQty
		o.ReservedQty -= fillQty

		takerFee := notional * float64(e.Header.TakerFeeBps) / 10_000
		makerRebate := makerRebateFor(e.Header, inst, o, in.NowMs, notional)

		taxBps := argTaxBps(e.Header, aggEntry, r.Side, fillPx)
		takerFee += notional * float64(taxBps) / 10_000

		totalCharge += takerFee - makerRebate
		totalNotional += notional

		realizedPnL += applyFill(position, r.Side, fillQty, fillPx)
		e.accrueFunding(position, inst)

		if o.Qty == 0 {
			head := e.headPtr(inst, o.Side, o.State)
			e.unlink(head, s.OrderIdx)
			e.orders.Free(s.OrderIdx)
			log[len(log)-1].freedOrder = true
		}

		e.trades.Push(TradePrint{
			Ts:            in.NowMs,
			MakerOrderID:  o.OrderID,
			TakerRouteID:  r.RouteID,
			InstrumentIdx: r.InstrumentIdx,
			Price:         fillPx,
			Qty:           fillQty,
			Side:          r.Side,
			RevealMs:      in.NowMs + in.RevealDelayMs,
		})

		tradeCount++
		cur = s.Next
	}

	if totalCharge > r.MaxCharge {
		rollback()
		return nil, newErr("commit", types.ErrChargeExceedsMax, "")
	}

	if err := authz.SafeDebit(in.CapRef, acc.Owner, in.SettlementMint, totalCharge); err != nil {
		rollback()
		return nil, err
	}

	postTradeIM := e.IMSlab(r.AccountIdx)
	if !e.PreTradeMarginOK(r.AccountIdx, -totalCharge, postTradeIM) {
		// Rolling back after a successful debit would require an offsetting
		// Router-side credit; the slab instead returns PreTradeMarginFail
		// for the caller to resolve out of band — by the time we reach
		// here the Router has already moved funds.
		return nil, newErr("commit", types.ErrPreTradeMarginFail, "post-trade equity below IM")
	}

	upsertTakerLeg(aggEntry, r.Side, r.Qty, totalNotional)

	acc.Cash += realizedPnL

	e.releaseSlices(r)
	r.Consumed = true
	r.InUse = false
	delete(e.holdIndex, in.HoldID)
	e.reservations.Free(resvIdx)

	return &CommitResult{TradeCount: tradeCount, TotalCharge: totalCharge, RealizedPnL: realizedPnL}, nil
}

func upsertTakerLeg(entry *AggressorEntry, side types.Side, qty Qty, notional float64) {
	if side == types.Bid {
		entry.BuyQty += qty
		entry.BuyNotional += notional
	} else {
		entry.SellQty += qty
		entry.SellNotional += notional
	}
}

// checkCommitment recomputes the reveal hash and compares it against the
// reservation's stored commitment_hash (spec §4.4).
func checkCommitment(r *Reservation, in CommitInput) error {
	h := commitmentHash(r.RouteID, r.InstrumentIdx, r.Side, r.Qty, r.LimitPx, in.Salt16)
	if h != r.CommitmentHash {
		return newErr("commit", types.ErrCommitmentMismatch, "")
	}
	return nil
}

// checkKillBand rejects a commit if the mark moved more than kill_band_bps
// between reserve and commit (spec §4.4).
func checkKillBand(markAtReserve, markNow Price, killBandBps int64) error {
	if markAtReserve == 0 {
		return nil
	}
	moveBps := absF((markNow.PriceF() - markAtReserve.PriceF()) / markAtReserve.PriceF() * 10_000)
	if moveBps > float64(killBandBps) {
		return newErr("commit", types.ErrKillBandTripped, "")
	}
	return nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// makerRebateFor returns the rebate owed to the maker leg of a fill,
// honoring the JIT penalty: a maker whose order was posted after the
// instrument's current batch_open_ms earns zero rebate this batch (spec
// §4.4, §6.4 jit_penalty_on), and the minimum resting time
// maker_rebate_min_ms must also have elapsed.
func makerRebateFor(h Header, inst *Instrument, o *Order, nowMs int64, notional float64) float64 {
	if h.JITPenaltyOn && o.CreatedMs > inst.BatchOpenMs {
		return 0
	}
	if nowMs-o.CreatedMs < h.MakerRebateMinMs {
		return 0
	}
	return notional * float64(h.MakerRebateBps) / 10_000
}
