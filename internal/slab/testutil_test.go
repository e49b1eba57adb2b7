package slab

import "percolator/internal/pool"

func testCapacities() Capacities {
	return Capacities{
		Accounts:     16,
		Orders:       32,
		Positions:    16,
		Reservations: 8,
		Slices:       32,
		TradeRing:    16,
		Aggressor:    8,
	}
}

// testingT is the subset of *testing.T used by helpers in this file.
type testingT interface {
	Fatalf(format string, args ...any)
}

func newTestEngine(t testingT) *Engine {
	e := NewEngine("test-slab", Header{
		IMR:              0.1,
		MMR:              0.05,
		FeeCapBps:        50,
		TakerFeeBps:      10,
		MakerRebateBps:   2,
		BatchMs:          1000,
		KillBandBps:      100,
		AllowPartialFill: false,
	}, testCapacities())

	if _, err := e.AddInstrument(Instrument{
		Symbol:       "BTC-PERP",
		ContractSize: 1,
		Tick:         1_000, // 0.001
		Lot:          1,
		IndexPrice:   100_000_000, // 100.0
	}); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	return e
}

func mustAccount(t testingT, e *Engine, owner string) pool.Idx {
	idx, err := e.GetOrCreateAccount(owner)
	if err != nil {
		t.Fatalf("get or create account %s: %v", owner, err)
	}
	return idx
}
