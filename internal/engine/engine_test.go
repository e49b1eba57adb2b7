package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"percolator/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		Slabs: []config.SlabConfig{
			{
				ID:  "slab-a",
				IMR: 0.1,
				MMR: 0.05,
				Capacities: config.CapacitiesConfig{
					Accounts: 4, Orders: 8, Positions: 4, Reservations: 4,
					Slices: 8, TradeRing: 8, Aggressor: 4,
				},
				Instruments: []config.InstrumentConfig{
					{Symbol: "BTC-PERP", OracleID: "BTC-USD", ContractSize: 1, Tick: 1000, Lot: 1, IndexPrice: 100_000_000},
				},
			},
		},
		Router: config.RouterConfig{Mints: []string{"USDC"}, CapTTLMaxSecs: 30, IMRGlobal: 0.1},
		Oracle: config.OracleConfig{BaseURL: "http://localhost:0"},
	}
}

func TestNewWiresSlabsAndRouter(t *testing.T) {
	t.Parallel()
	eng, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	slabs := eng.Slabs()
	if len(slabs) != 1 {
		t.Fatalf("expected 1 slab, got %d", len(slabs))
	}
	if _, ok := slabs["slab-a"]; !ok {
		t.Fatalf("expected slab-a to be registered")
	}
	if eng.Router() == nil {
		t.Fatal("expected a non-nil router")
	}
}

func TestNewRejectsConflictingInstrumentIdxMapping(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Slabs = append(cfg.Slabs, config.SlabConfig{
		ID:  "slab-b",
		IMR: 0.1,
		MMR: 0.05,
		Capacities: config.CapacitiesConfig{
			Accounts: 4, Orders: 8, Positions: 4, Reservations: 4,
			Slices: 8, TradeRing: 8, Aggressor: 4,
		},
		Instruments: []config.InstrumentConfig{
			{Symbol: "ETH-PERP", OracleID: "ETH-USD", ContractSize: 1, Tick: 1000, Lot: 1, IndexPrice: 4_000_000},
		},
	})

	if _, err := New(cfg, testLogger()); err == nil {
		t.Fatal("expected an error when two slabs assign the same instrument idx to different oracle ids")
	}
}

func TestStartAndStopTicksBatchOpen(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Slabs[0].BatchMs = 5

	eng, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	eng.Stop()
}

func TestStopWithoutStartDoesNotPanic(t *testing.T) {
	t.Parallel()
	eng, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.Stop()
}
