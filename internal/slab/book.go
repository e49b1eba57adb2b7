package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// better reports whether order a sorts strictly ahead of order b on the
// given side's price-time priority: best price first (bids descending,
// asks ascending), ties broken by order_id ascending — FIFO (spec §4.2).
func better(side types.Side, a, b *Order) bool {
	if a.Price != b.Price {
		if side == types.Bid {
			return a.Price > b.Price
		}
		return a.Price < b.Price
	}
	return a.OrderID < b.OrderID
}

func (e *Engine) headPtr(inst *Instrument, side types.Side, state types.OrderState) *pool.Idx {
	switch {
	case side == types.Bid && state == types.OrderLive:
		return &inst.BidsHead
	case side == types.Ask && state == types.OrderLive:
		return &inst.AsksHead
	case side == types.Bid && state == types.OrderPending:
		return &inst.BidsPendingHead
	default:
		return &inst.AsksPendingHead
	}
}

// linkInto walks from *head while the incoming order sorts better-or-equal
// and links orderIdx at the resulting position (spec §4.2 Insertion).
func (e *Engine) linkInto(head *pool.Idx, side types.Side, orderIdx pool.Idx) {
	o := e.orders.Get(orderIdx)
	o.Next = pool.NoIdx
	o.Prev = pool.NoIdx

	if *head == pool.NoIdx {
		*head = orderIdx
		return
	}

	cur := *head
	var prev pool.Idx = pool.NoIdx
	for cur != pool.NoIdx {
		co := e.orders.Get(cur)
		if !better(side, co, o) {
			break
		}
		prev = cur
		cur = co.Next
	}

	o.Next = cur
	o.Prev = prev
	if cur != pool.NoIdx {
		e.orders.Get(cur).Prev = orderIdx
	}
	if prev == pool.NoIdx {
		*head = orderIdx
	} else {
		e.orders.Get(prev).Next = orderIdx
	}
}

// unlink removes orderIdx from whichever list it threads through, updating
// the head if the victim was at the head.
func (e *Engine) unlink(head *pool.Idx, orderIdx pool.Idx) {
	o := e.orders.Get(orderIdx)
	if o.Prev != pool.NoIdx {
		e.orders.Get(o.Prev).Next = o.Next
	} else if *head == orderIdx {
		*head = o.Next
	}
	if o.Next != pool.NoIdx {
		e.orders.Get(o.Next).Prev = o.Prev
	}
	o.Next, o.Prev = pool.NoIdx, pool.NoIdx
}

// PlaceOrderInput carries the fields needed to post a new resting order.
type PlaceOrderInput struct {
	AccountIdx    pool.Idx
	InstrumentIdx InstrumentIdx
	Side          types.Side
	MakerClass    types.MakerClass
	TIF           types.TIF
	Price         Price
	Qty           Qty
	NowMs         int64
}

// PlaceOrder inserts a new order into the book. DLP makers post directly to
// the live list (spec §4.2, §9 DLP) unless doing so would land within the
// top FreezeLevels price levels during an open batch's freeze window — that
// is the "K top levels that cannot be pop-inserted mid-batch" rule in spec
// §6.4, which exists to stop a DLP from queue-jumping freshly promoted
// orders. Regular makers always post to the pending list with EligibleEpoch
// set to the instrument's next epoch, promoted to live at the following
// batch_open (spec §4.2 "Pending→live promotion", §2 "separate pending
// lists for non-DLP makers").
func (e *Engine) PlaceOrder(in PlaceOrderInput) (OrderID, error) {
	inst, err := e.Instrument(in.InstrumentIdx)
	if err != nil {
		return 0, err
	}
	if in.Qty <= 0 || in.Qty%inst.Lot != 0 {
		return 0, newErr("place_order", types.ErrMisalignedQty, "")
	}
	if in.Price <= 0 || in.Price%inst.Tick != 0 {
		return 0, newErr("place_order", types.ErrMisalignedPx, "")
	}

	idx, ok := e.orders.Alloc()
	if !ok {
		return 0, newErr("place_order", types.ErrPoolFull, "order pool exhausted")
	}

	state := types.OrderLive
	eligibleEpoch := inst.Epoch
	switch {
	case in.MakerClass == types.RegularMaker:
		state = types.OrderPending
		eligibleEpoch = inst.Epoch + 1
	case in.MakerClass == types.DLPMaker && e.Header.FreezeLevels > 0 && in.NowMs < inst.FreezeUntilMs &&
		e.distinctBetterLevels(inst, in.Side, in.Price) < e.Header.FreezeLevels:
		state = types.OrderPending
		eligibleEpoch = inst.Epoch + 1
	}

	oid := e.allocOrderID()
	o := e.orders.Get(idx)
	*o = Order{
		Side:          in.Side,
		TIF:           in.TIF,
		MakerClass:    in.MakerClass,
		State:         state,
		EligibleEpoch: eligibleEpoch,
		CreatedMs:     in.NowMs,
		Price:         in.Price,
		Qty:           in.Qty,
		QtyOrig:       in.Qty,
		AccountIdx:    in.AccountIdx,
		InstrumentIdx: in.InstrumentIdx,
		OrderID:       oid,
		Next:          pool.NoIdx,
		Prev:          pool.NoIdx,
	}

	head := e.headPtr(inst, in.Side, state)
	e.linkInto(head, in.Side, idx)
	inst.BookSeqno++
	return oid, nil
}

// findOrder is a linear scan used only by test helpers and cancel-by-id
// callers that have not retained the pool index — production callers
// should retain the Idx returned at insertion time where possible.
func (e *Engine) findOrder(oid OrderID) (pool.Idx, bool) {
	for i := 0; i < e.orders.Cap(); i++ {
		idx := pool.Idx(i)
		if !e.orders.InUse(idx) {
			continue
		}
		if e.orders.Get(idx).OrderID == oid {
			return idx, true
		}
	}
	return pool.NoIdx, false
}

// CancelOrder removes a resting order and frees its slot. Canceling an
// order with outstanding reservation slices is rejected by the caller
// discipline in commit.go (a reservation holds reserved_qty but never the
// order's existence) — CancelOrder itself only unlinks and frees.
func (e *Engine) CancelOrder(oid OrderID) error {
	idx, ok := e.findOrder(oid)
	if !ok {
		return newErr("cancel_order", types.ErrUnknownOrder, "")
	}
	o := e.orders.Get(idx)
	inst, err := e.Instrument(o.InstrumentIdx)
	if err != nil {
		return err
	}
	head := e.headPtr(inst, o.Side, o.State)
	e.unlink(head, idx)
	e.orders.Free(idx)
	inst.BookSeqno++
	return nil
}

// BatchOpen advances the instrument's epoch, opens a new freeze window of
// Header.BatchMs, and promotes every pending order whose EligibleEpoch
// matches the new epoch into the live list, in the same relative order
// (stable promotion preserves effective time priority, spec §4.2).
func (e *Engine) BatchOpen(idx InstrumentIdx, nowMs int64) (epoch uint64, promoted int, err error) {
	inst, err := e.Instrument(idx)
	if err != nil {
		return 0, 0, err
	}
	inst.Epoch++
	inst.BatchOpenMs = nowMs
	inst.FreezeUntilMs = nowMs + e.Header.BatchMs

	promoted += e.promoteSide(inst, types.Bid)
	promoted += e.promoteSide(inst, types.Ask)
	inst.BookSeqno++
	return inst.Epoch, promoted, nil
}

// distinctBetterLevels counts distinct live price levels strictly better
// than price on the given side — used by the freeze_levels pop-insert
// guard above.
func (e *Engine) distinctBetterLevels(inst *Instrument, side types.Side, price Price) int {
	head := e.headPtr(inst, side, types.OrderLive)
	levels := 0
	var last Price
	haveLast := false
	cur := *head
	for cur != pool.NoIdx {
		o := e.orders.Get(cur)
		better := false
		if side == types.Bid {
			better = o.Price > price
		} else {
			better = o.Price < price
		}
		if !better {
			break
		}
		if !haveLast || o.Price != last {
			levels++
			last = o.Price
			haveLast = true
		}
		cur = o.Next
	}
	return levels
}

func (e *Engine) promoteSide(inst *Instrument, side types.Side) int {
	pendingHead := e.headPtr(inst, side, types.OrderPending)
	liveHead := e.headPtr(inst, side, types.OrderLive)

	count := 0
	cur := *pendingHead
	for cur != pool.NoIdx {
		o := e.orders.Get(cur)
		next := o.Next
		if o.EligibleEpoch <= inst.Epoch {
			e.unlink(pendingHead, cur)
			o.State = types.OrderLive
			e.linkInto(liveHead, side, cur)
			count++
		}
		cur = next
	}
	return count
}

// BookSnapshotLevel is one resting order's entry in a public book view;
// orders at the same price are listed separately, not merged into one
// level.
type BookSnapshotLevel struct {
	Price Price
	Qty   Qty // visible depth; excludes reserved_qty unless Header.ExposeReservedQty
}

// Snapshot returns the live book for one side, honoring the
// ExposeReservedQty policy (spec §9 "Hidden-reserved policy").
func (e *Engine) Snapshot(idx InstrumentIdx, side types.Side) ([]BookSnapshotLevel, error) {
	inst, err := e.Instrument(idx)
	if err != nil {
		return nil, err
	}
	head := e.headPtr(inst, side, types.OrderLive)
	var out []BookSnapshotLevel
	cur := *head
	for cur != pool.NoIdx {
		o := e.orders.Get(cur)
		visible := o.Qty
		if !e.Header.ExposeReservedQty {
			visible = o.Qty - o.ReservedQty
		}
		if visible > 0 {
			out = append(out, BookSnapshotLevel{Price: o.Price, Qty: visible})
		}
		cur = o.Next
	}
	return out, nil
}
