package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// ReserveInput carries the arguments to Reserve (spec §4.3, §6.1).
type ReserveInput struct {
	RouteID        RouteID
	AccountIdx     pool.Idx
	InstrumentIdx  InstrumentIdx
	Side           types.Side
	Qty            Qty
	LimitPx        Price
	TTLMs          int64
	CommitmentHash [32]byte
	NowMs          int64
}

// ReserveResult is the outcome of a successful Reserve call.
type ReserveResult struct {
	HoldID        HoldID
	VWAPPx        Price
	WorstPx       Price
	MaxCharge     float64
	ExpiryMs      int64
	BookSeqno     uint64
	FilledQty     Qty // may be < Qty under the partial-fill policy
}

const capTTLMaxMs = 120_000 // spec §4.7 TTL_MAX = 120s, mirrored at the slab boundary

// Reserve walks the contra live book and locks depth into a new
// Reservation without touching order prices (spec §4.3). It never mutates
// book structure — only order.ReservedQty.
func (e *Engine) Reserve(in ReserveInput) (*ReserveResult, error) {
	inst, err := e.Instrument(in.InstrumentIdx)
	if err != nil {
		return nil, err
	}
	if in.NowMs < inst.FreezeUntilMs {
		return nil, newErr("reserve", types.ErrInstrumentFrozen, "batch freeze window open")
	}
	if in.Qty <= 0 || in.Qty%inst.Lot != 0 {
		return nil, newErr("reserve", types.ErrMisalignedQty, "")
	}
	if in.LimitPx <= 0 || in.LimitPx%inst.Tick != 0 {
		return nil, newErr("reserve", types.ErrMisalignedPx, "")
	}
	ttl := in.TTLMs
	if ttl <= 0 {
		return nil, newErr("reserve", types.ErrMisalignedQty, "ttl_ms must be positive")
	}
	if ttl > capTTLMaxMs {
		ttl = capTTLMaxMs // spec §4.3 precondition: ttl_ms ≤ cap TTL_MAX — clamp rather than reject
	}

	contraSide := in.Side.Opposite()
	head := e.headPtr(inst, contraSide, types.OrderLive)

	resvIdx, ok := e.reservations.Alloc()
	if !ok {
		return nil, newErr("reserve", types.ErrOutOfSlices, "reservation pool exhausted")
	}

	var (
		qtyLeft      = in.Qty
		notional     float64
		filled       Qty
		worstPx      Price
		slicesHead   = pool.NoIdx
		slicesTail   = pool.NoIdx
		allocated    []pool.Idx // for rollback on OutOfSlices
	)

	rollback := func() {
		for _, sIdx := range allocated {
			s := e.slices.Get(sIdx)
			e.orders.Get(s.OrderIdx).ReservedQty -= s.Qty
			e.slices.Free(sIdx)
		}
		e.reservations.Free(resvIdx)
	}

	cur := *head
	for cur != pool.NoIdx && qtyLeft > 0 {
		o := e.orders.Get(cur)

		crosses := false
		if in.Side == types.Bid {
			crosses = o.Price > in.LimitPx
		} else {
			crosses = o.Price < in.LimitPx
		}
		if crosses {
			break
		}

		available := o.Qty - o.ReservedQty
		if available <= 0 {
			cur = o.Next
			continue
		}
		take := qtyLeft
		if available < take {
			take = available
		}

		sIdx, ok := e.slices.Alloc()
		if !ok {
			rollback()
			return nil, newErr("reserve", types.ErrOutOfSlices, "slice pool exhausted")
		}
		allocated = append(allocated, sIdx)
		s := e.slices.Get(sIdx)
		s.OrderIdx = cur
		s.Qty = take
		s.Next = pool.NoIdx
		if slicesHead == pool.NoIdx {
			slicesHead = sIdx
		} else {
			e.slices.Get(slicesTail).Next = sIdx
		}
		slicesTail = sIdx

		o.ReservedQty += take
		notional += float64(take) * o.Price.PriceF()
		worstPx = o.Price
		qtyLeft -= take
		filled += take

		cur = o.Next
	}

	if qtyLeft > 0 {
		if !e.Header.AllowPartialFill || filled == 0 {
			rollback()
			return nil, newErr("reserve", types.ErrInsufficientLiquidity, "")
		}
		// Partial-fill policy: keep what was filled.
	}

	vwap := Price(0)
	if filled > 0 {
		vwap = Price((notional / float64(filled)) * 1e6)
	}
	maxCharge := notional + feeCapCharge(notional, e.Header.FeeCapBps)
	expiry := in.NowMs + ttl

	hold := e.allocHoldID()
	r := e.reservations.Get(resvIdx)
	*r = Reservation{
		HoldID:          hold,
		RouteID:         in.RouteID,
		Side:            in.Side,
		InstrumentIdx:   in.InstrumentIdx,
		AccountIdx:      in.AccountIdx,
		Qty:             filled,
		LimitPx:         in.LimitPx,
		VWAPPx:          vwap,
		WorstPx:         worstPx,
		MaxCharge:       maxCharge,
		CommitmentHash:  in.CommitmentHash,
		BookSeqnoAtHold: inst.BookSeqno,
		ExpiryMs:        expiry,
		SlicesHead:      slicesHead,
		InUse:           true,
	}
	e.holdIndex[hold] = resvIdx

	return &ReserveResult{
		HoldID:    hold,
		VWAPPx:    vwap,
		WorstPx:   worstPx,
		MaxCharge: maxCharge,
		ExpiryMs:  expiry,
		BookSeqno: inst.BookSeqno,
		FilledQty: filled,
	}, nil
}

// feeCapCharge returns the fee ceiling used for max_charge: notional scaled
// by the slab's fee-cap basis points (spec §4.3 "max_fee(Σq) using the fee
// cap ceiling").
func feeCapCharge(notional float64, feeCapBps int) float64 {
	return notional * float64(feeCapBps) / 10_000
}

// Cancel releases a reservation's slices back to their orders and frees
// the reservation slot. It is idempotent: canceling an unknown or
// already-released hold returns success (spec §5, §8).
func (e *Engine) Cancel(hold HoldID) error {
	resvIdx, ok := e.holdIndex[hold]
	if !ok {
		return nil // UnknownHold is success per spec's idempotent-cancel contract
	}
	r := e.reservations.Get(resvIdx)
	if !r.InUse {
		return nil // already released
	}
	e.releaseSlices(r)
	r.InUse = false
	delete(e.holdIndex, hold)
	e.reservations.Free(resvIdx)
	return nil
}

func (e *Engine) releaseSlices(r *Reservation) {
	cur := r.SlicesHead
	for cur != pool.NoIdx {
		s := e.slices.Get(cur)
		next := s.Next
		if e.orders.InUse(s.OrderIdx) {
			o := e.orders.Get(s.OrderIdx)
			o.ReservedQty -= s.Qty
		}
		e.slices.Free(cur)
		cur = next
	}
	r.SlicesHead = pool.NoIdx
}
