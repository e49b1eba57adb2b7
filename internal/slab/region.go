package slab

import (
	"percolator/internal/pool"
	"percolator/pkg/types"
)

// Capacities sizes every pool in the region. Defaults mirror the persisted
// layout in spec §6.3; tests use smaller capacities so pool-exhaustion
// scenarios are reachable without allocating tens of thousands of slots.
type Capacities struct {
	Accounts     int
	Orders       int
	Positions    int
	Reservations int
	Slices       int
	TradeRing    int
	Aggressor    int
}

// DefaultCapacities returns the capacities named in spec §6.3's persisted
// layout: accounts[5000], orders[30000], positions[30000],
// reservations[4000], slices[16000], trade_ring[10000], aggressor[4000].
func DefaultCapacities() Capacities {
	return Capacities{
		Accounts:     5000,
		Orders:       30000,
		Positions:    30000,
		Reservations: 4000,
		Slices:       16000,
		TradeRing:    10000,
		Aggressor:    4000,
	}
}

// Engine is one slab: the header, its fixed instrument array, and every
// pool named in spec §3. It has no internal lock — the owning goroutine in
// internal/engine serializes all access (spec §5).
type Engine struct {
	ID     string
	Header Header

	instruments    [maxInstruments]Instrument
	instrumentUsed [maxInstruments]bool
	numInstruments int

	accounts     *pool.Pool[Account]
	accountByKey map[string]pool.Idx

	orders       *pool.Pool[Order]
	positions    *pool.Pool[Position]
	reservations *pool.Pool[Reservation]
	slices       *pool.Pool[Slice]
	trades       *pool.RingPool[TradePrint]
	aggressor    *pool.Pool[AggressorEntry]
	aggByKey     map[aggKey]pool.Idx

	holdIndex map[HoldID]pool.Idx // reservation pool idx, for O(1) lookup by hold_id
	nextHold  HoldID
}

type aggKey struct {
	epoch      uint64
	accountIdx pool.Idx
	instrument InstrumentIdx
}

// NewEngine constructs an empty slab with the given header defaults and
// pool capacities.
func NewEngine(id string, header Header, caps Capacities) *Engine {
	return &Engine{
		ID:           id,
		Header:       header,
		accounts:     pool.New[Account](caps.Accounts),
		accountByKey: make(map[string]pool.Idx),
		orders:       pool.New[Order](caps.Orders),
		positions:    pool.New[Position](caps.Positions),
		reservations: pool.New[Reservation](caps.Reservations),
		slices:       pool.New[Slice](caps.Slices),
		trades:       pool.NewRing[TradePrint](caps.TradeRing),
		aggressor:    pool.New[AggressorEntry](caps.Aggressor),
		aggByKey:     make(map[aggKey]pool.Idx),
		holdIndex:    make(map[HoldID]pool.Idx),
		nextHold:     1,
	}
}

// AddInstrument registers a new instrument and returns its index, or a
// PoolFull error if the ≤32 slot table is full.
func (e *Engine) AddInstrument(inst Instrument) (InstrumentIdx, error) {
	for i := 0; i < maxInstruments; i++ {
		if !e.instrumentUsed[i] {
			if inst.DLP == nil {
				inst.DLP = make(map[uint32]bool)
			}
			inst.BidsHead = pool.NoIdx
			inst.AsksHead = pool.NoIdx
			inst.BidsPendingHead = pool.NoIdx
			inst.AsksPendingHead = pool.NoIdx
			e.instruments[i] = inst
			e.instrumentUsed[i] = true
			e.numInstruments++
			return InstrumentIdx(i), nil
		}
	}
	return 0, newErr("add_instrument", types.ErrPoolFull, "instrument table full")
}

// Instrument returns a mutable pointer to the instrument at idx.
func (e *Engine) Instrument(idx InstrumentIdx) (*Instrument, error) {
	if int(idx) >= maxInstruments || !e.instrumentUsed[idx] {
		return nil, newErr("instrument", types.ErrInstrumentUnknown, "")
	}
	return &e.instruments[idx], nil
}

// UsedInstruments returns the indices of every registered instrument, for
// callers (the dashboard snapshot builder) that need to enumerate a slab's
// instrument table without reaching into unexported fields.
func (e *Engine) UsedInstruments() []InstrumentIdx {
	idxs := make([]InstrumentIdx, 0, e.numInstruments)
	for i := 0; i < maxInstruments; i++ {
		if e.instrumentUsed[i] {
			idxs = append(idxs, InstrumentIdx(i))
		}
	}
	return idxs
}

// OpenReservationCount reports how many reservations are currently held
// open against this slab, for dashboard/observability purposes.
func (e *Engine) OpenReservationCount() int {
	return len(e.holdIndex)
}

// AccountCount reports how many distinct accounts have been created in
// this slab.
func (e *Engine) AccountCount() int {
	return len(e.accountByKey)
}

// GetOrCreateAccount resolves owner to an account index, allocating a new
// account slot on first use.
func (e *Engine) GetOrCreateAccount(owner string) (pool.Idx, error) {
	if idx, ok := e.accountByKey[owner]; ok {
		return idx, nil
	}
	idx, ok := e.accounts.Alloc()
	if !ok {
		return pool.NoIdx, newErr("get_or_create_account", types.ErrPoolFull, "account pool exhausted")
	}
	acc := e.accounts.Get(idx)
	acc.Owner = owner
	acc.PositionHead = pool.NoIdx
	acc.InUse = true
	e.accountByKey[owner] = idx
	return idx, nil
}

// Account returns a mutable pointer to the account at idx.
func (e *Engine) Account(idx pool.Idx) *Account {
	return e.accounts.Get(idx)
}

func (e *Engine) allocOrderID() OrderID {
	id := e.Header.NextOrderID
	e.Header.NextOrderID++
	return id
}

func (e *Engine) allocHoldID() HoldID {
	id := e.nextHold
	e.nextHold++
	return id
}
