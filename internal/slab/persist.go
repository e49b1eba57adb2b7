// Persistence mirrors the teacher's store.Store: write to a .tmp file,
// then os.Rename over the target, so a crash mid-write never leaves a
// corrupted region on disk. Where the teacher persists one small JSON
// file per market position, a slab persists one binary blob for its
// entire region — header, instrument table, and every pool — generalized
// from "one position struct" to the fixed-size layout in spec §6.3, with
// a magic+version header so a future layout change can refuse to load an
// incompatible file instead of silently misreading it.
package slab

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"percolator/internal/pool"
)

const (
	regionMagic   uint32 = 0x50455243 // "PERC"
	regionVersion uint32 = 1
)

// regionSnapshot is the full serializable state of one Engine (spec
// §6.3's persisted layout, minus the fixed offsets — gob encodes lengths
// itself, so there is no need to hand-roll an offset table here). The
// aggressor key index is not stored: gob cannot encode its unexported key
// type, and LoadEngine rebuilds it from the aggressor pool.
type regionSnapshot struct {
	Magic, Version uint32

	ID     string
	Header Header

	Instruments    [maxInstruments]Instrument
	InstrumentUsed [maxInstruments]bool
	NumInstruments int

	Accounts     pool.Snapshot[Account]
	AccountByKey map[string]pool.Idx

	Orders       pool.Snapshot[Order]
	Positions    pool.Snapshot[Position]
	Reservations pool.Snapshot[Reservation]
	Slices       pool.Snapshot[Slice]
	Trades       pool.RingSnapshot[TradePrint]
	Aggressor    pool.Snapshot[AggressorEntry]

	HoldIndex map[HoldID]pool.Idx
	NextHold  HoldID
}

// Save atomically persists the engine's entire region to path (spec
// §6.3). It writes to path+".tmp" first, then renames over path.
func (e *Engine) Save(path string) error {
	snap := regionSnapshot{
		Magic:          regionMagic,
		Version:        regionVersion,
		ID:             e.ID,
		Header:         e.Header,
		Instruments:    e.instruments,
		InstrumentUsed: e.instrumentUsed,
		NumInstruments: e.numInstruments,
		Accounts:       e.accounts.Dump(),
		AccountByKey:   e.accountByKey,
		Orders:         e.orders.Dump(),
		Positions:      e.positions.Dump(),
		Reservations:   e.reservations.Dump(),
		Slices:         e.slices.Dump(),
		Trades:         e.trades.Dump(),
		Aggressor:      e.aggressor.Dump(),
		HoldIndex:      e.holdIndex,
		NextHold:       e.nextHold,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("encode region snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create region dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write region snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadEngine restores an Engine from a snapshot written by Save. The
// pool capacities are taken from the snapshot itself — a restored engine
// always has exactly the capacities it was saved with.
func LoadEngine(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region snapshot: %w", err)
	}

	var snap regionSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode region snapshot: %w", err)
	}
	if snap.Magic != regionMagic {
		return nil, fmt.Errorf("region snapshot: bad magic %#x", snap.Magic)
	}
	if snap.Version != regionVersion {
		return nil, fmt.Errorf("region snapshot: unsupported version %d", snap.Version)
	}

	e := &Engine{
		ID:             snap.ID,
		Header:         snap.Header,
		instruments:    snap.Instruments,
		instrumentUsed: snap.InstrumentUsed,
		numInstruments: snap.NumInstruments,
		accounts:       pool.New[Account](len(snap.Accounts.Values)),
		accountByKey:   snap.AccountByKey,
		orders:         pool.New[Order](len(snap.Orders.Values)),
		positions:      pool.New[Position](len(snap.Positions.Values)),
		reservations:   pool.New[Reservation](len(snap.Reservations.Values)),
		slices:         pool.New[Slice](len(snap.Slices.Values)),
		trades:         pool.NewRing[TradePrint](len(snap.Trades.Slots)),
		aggressor:      pool.New[AggressorEntry](len(snap.Aggressor.Values)),
		aggByKey:       make(map[aggKey]pool.Idx),
		holdIndex:      snap.HoldIndex,
		nextHold:       snap.NextHold,
	}
	e.accounts.Restore(snap.Accounts)
	e.orders.Restore(snap.Orders)
	e.positions.Restore(snap.Positions)
	e.reservations.Restore(snap.Reservations)
	e.slices.Restore(snap.Slices)
	e.trades.Restore(snap.Trades)
	e.aggressor.Restore(snap.Aggressor)
	for i := 0; i < e.aggressor.Cap(); i++ {
		idx := pool.Idx(i)
		if e.aggressor.InUse(idx) {
			en := e.aggressor.Get(idx)
			e.aggByKey[aggKey{epoch: en.Epoch, accountIdx: en.AccountIdx, instrument: en.InstrumentIdx}] = idx
		}
	}

	if e.accountByKey == nil {
		e.accountByKey = make(map[string]pool.Idx)
	}
	if e.aggByKey == nil {
		e.aggByKey = make(map[aggKey]pool.Idx)
	}
	if e.holdIndex == nil {
		e.holdIndex = make(map[HoldID]pool.Idx)
	}
	return e, nil
}
