// Package slab implements one isolated perpetual-futures market engine: a
// fixed-capacity state region holding an order book, positions, trades, and
// reservation tables with O(1) freelist pools, and the two-phase
// reserve/commit matcher that operates on them (spec §2–§4).
//
// A Engine is single-threaded cooperative (spec §5): every exported method
// runs to completion before the next call is made, and the package takes no
// internal locks. Callers — the per-slab goroutine in internal/engine — are
// responsible for serializing access.
package slab

import (
	"math"
	"time"

	"percolator/internal/pool"
	"percolator/pkg/types"
)

// Price is a fixed-point price: an integer number of 1e-6 units (spec
// §4.5 "6-decimal price").
type Price int64

// Qty is a fixed-point quantity in integer lots (spec §4.5 "integer lots").
type Qty int64

// OrderID is strictly monotone within a slab (spec §3.1 Order invariants).
type OrderID uint64

// HoldID identifies a live reservation.
type HoldID uint64

// RouteID is supplied by the caller (Router) and threaded through to the
// trade tape and reservation record for correlation across slabs.
type RouteID uint64

// InstrumentIdx indexes the fixed ≤32-slot instrument array.
type InstrumentIdx uint8

const maxInstruments = 32

// Header carries slab-wide configuration (spec §3.1 Header).
type Header struct {
	Version uint32

	// Risk params
	IMR     float64 // initial margin ratio
	MMR     float64 // maintenance margin ratio
	FeeCapBps int   // ceiling used for max_charge (spec §4.3)

	// Fees (spec §9 "exact fee-cap math ... pin down in a test vector")
	TakerFeeBps    int64 // charged on every taker-side notional
	MakerRebateBps int64 // paid back to a qualifying maker leg

	// Anti-toxicity params (spec §6.4)
	BatchMs           int64
	KillBandBps       int64
	FreezeLevels      int
	JITPenaltyOn      bool
	MakerRebateMinMs  int64

	// Aggressor Roundtrip Guard (spec §4.4, optional). ARGTaxBps is the
	// extra fee charged, in basis points of notional, to the aggressor leg
	// of a same-epoch opposite-direction roundtrip that would otherwise
	// realize non-negative PnL (spec §9 Open Questions: sandwich tax chosen
	// over quantity clipping, see DESIGN.md).
	ARGEnabled bool
	ARGTaxBps  int64

	// Partial-fill policy (spec §9 Open Questions): true = return a
	// partial reservation instead of failing with InsufficientLiquidity.
	AllowPartialFill bool

	// Whether public book snapshots include reserved_qty (spec §9).
	ExposeReservedQty bool

	NextOrderID OrderID
}

// Instrument is one tradeable perp market within the slab (spec §3.1).
type Instrument struct {
	Symbol       string
	ContractSize Qty
	Tick         Price
	Lot          Qty

	IndexPrice  Price
	FundingRate float64
	CumFunding  float64 // accumulated per-contract funding, applied via snapshots

	BidsHead        pool.Idx
	AsksHead        pool.Idx
	BidsPendingHead pool.Idx
	AsksPendingHead pool.Idx

	Epoch         uint64
	BatchOpenMs   int64
	FreezeUntilMs int64

	BookSeqno uint64 // bumped on every structural book mutation (spec §4.2)

	// DLP is the configured account_idx allowlist. PlaceOrder does not
	// consult it: an order posts as DLP or regular according to
	// PlaceOrderInput.MakerClass alone.
	DLP map[uint32]bool
}

// Account holds cash and a linked list of positions (spec §3.1).
type Account struct {
	Owner        string
	Cash         float64 // collateral cash leg tracked locally per slab
	PositionHead pool.Idx
	InUse        bool
}

// Order is one resting order, threaded into the book's doubly-linked lists
// by pool index (spec §3.1, §4.2).
type Order struct {
	Side         types.Side
	TIF          types.TIF
	MakerClass   types.MakerClass
	State        types.OrderState
	EligibleEpoch uint64
	CreatedMs    int64

	Price      Price // immutable once the order is inserted
	Qty        Qty
	ReservedQty Qty
	QtyOrig    Qty

	Next, Prev pool.Idx
	AccountIdx pool.Idx
	InstrumentIdx InstrumentIdx
	OrderID    OrderID
}

// Position is one account's signed exposure in one instrument (spec §3.1,
// §4.5).
type Position struct {
	AccountIdx    pool.Idx
	InstrumentIdx InstrumentIdx
	Qty           Qty // signed: positive = long
	EntryPx       Price
	LastFunding   float64
	NextInAccount pool.Idx
	InUse         bool
}

// Slice is one maker-order contribution to a reservation (spec §3.1).
type Slice struct {
	OrderIdx pool.Idx
	Qty      Qty
	Next     pool.Idx
}

// Reservation locks depth against the book without touching prices (spec
// §3.1, §4.3).
type Reservation struct {
	HoldID  HoldID
	RouteID RouteID
	Side    types.Side
	InstrumentIdx InstrumentIdx
	AccountIdx    pool.Idx

	Qty      Qty
	LimitPx  Price // preserved for the commit-time reveal hash, spec §4.4
	VWAPPx   Price
	WorstPx  Price
	MaxCharge float64

	CommitmentHash [32]byte

	BookSeqnoAtHold uint64
	ExpiryMs        int64

	SlicesHead pool.Idx
	InUse      bool
	Consumed   bool // true once committed — enables idempotent at-most-once detection
}

// TradePrint is one fill event written to the ring buffer (spec §3.1 Trade).
type TradePrint struct {
	Ts            int64
	MakerOrderID  OrderID
	TakerRouteID  RouteID
	InstrumentIdx InstrumentIdx
	Price         Price
	Qty           Qty
	Side          types.Side
	RevealMs      int64
}

// AggressorEntry accumulates one account's same-epoch taker flow per
// instrument, used by the Aggressor Roundtrip Guard (spec §3.1, §4.4).
type AggressorEntry struct {
	Epoch         uint64
	AccountIdx    pool.Idx
	InstrumentIdx InstrumentIdx
	BuyQty        Qty
	BuyNotional   float64
	SellQty       Qty
	SellNotional  float64
	InUse         bool
}

// now is overridable in tests; production code always calls time.Now().
var now = func() time.Time { return time.Now() }

func nowMs() int64 { return now().UnixMilli() }

// PriceF returns p as a float64 dollar amount (1e-6 fixed point).
func (p Price) PriceF() float64 { return float64(p) / 1e6 }

// QtyF returns q as a float64 lot count.
func (q Qty) QtyF() float64 { return float64(q) }

const noOrderID = OrderID(math.MaxUint64)
