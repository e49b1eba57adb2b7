package slab

import (
	"testing"

	"percolator/pkg/types"
)

func TestArgTaxFiresOnNonNegativePnLRoundtrip(t *testing.T) {
	t.Parallel()
	header := Header{ARGEnabled: true, ARGTaxBps: 25}
	entry := &AggressorEntry{SellQty: 10, SellNotional: 1000} // sold 10 @ avg 100

	// Buying back at or below 100 realizes a gain on the sold leg: taxed.
	if bps := argTaxBps(header, entry, types.Bid, 95_000_000); bps != 25 {
		t.Errorf("tax bps = %d, want 25", bps)
	}
	// Buying back above 100 would realize a loss on the sold leg: not taxed.
	if bps := argTaxBps(header, entry, types.Bid, 105_000_000); bps != 0 {
		t.Errorf("tax bps = %d, want 0", bps)
	}
}

func TestArgTaxDisabledByDefault(t *testing.T) {
	t.Parallel()
	header := Header{ARGEnabled: false, ARGTaxBps: 25}
	entry := &AggressorEntry{SellQty: 10, SellNotional: 1000}

	if bps := argTaxBps(header, entry, types.Bid, 95_000_000); bps != 0 {
		t.Errorf("tax bps = %d, want 0 when ARG disabled", bps)
	}
}

func TestArgTaxRequiresOppositeLeg(t *testing.T) {
	t.Parallel()
	header := Header{ARGEnabled: true, ARGTaxBps: 25}
	entry := &AggressorEntry{BuyQty: 10, BuyNotional: 1000} // same-direction only

	if bps := argTaxBps(header, entry, types.Bid, 95_000_000); bps != 0 {
		t.Errorf("tax bps = %d, want 0 with no opposite-direction leg", bps)
	}
}

func TestUpsertAggressorCreatesAndAccumulates(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	acc := mustAccount(t, e, "taker")

	e.upsertAggressor(1, acc, 0, types.Bid, 5, 500)
	entry := e.upsertAggressor(1, acc, 0, types.Bid, 3, 300)
	if entry.BuyQty != 8 {
		t.Errorf("buy qty = %d, want 8", entry.BuyQty)
	}
	if entry.BuyNotional != 800 {
		t.Errorf("buy notional = %v, want 800", entry.BuyNotional)
	}

	// A different epoch is a distinct bucket.
	other := e.upsertAggressor(2, acc, 0, types.Bid, 1, 100)
	if other.BuyQty != 1 {
		t.Errorf("new epoch should start a fresh entry, got buy qty %d", other.BuyQty)
	}
}
