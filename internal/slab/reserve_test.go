package slab

import (
	"testing"

	"percolator/pkg/types"
)

func TestReserveWalksBookAndComputesVWAP(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	maker := mustAccount(t, e, "maker")
	taker := mustAccount(t, e, "taker")

	place := func(px Price, qty Qty) {
		if _, err := e.PlaceOrder(PlaceOrderInput{
			AccountIdx: maker, InstrumentIdx: 0, Side: types.Ask,
			MakerClass: types.DLPMaker, TIF: types.GTC,
			Price: px, Qty: qty, NowMs: 1,
		}); err != nil {
			t.Fatalf("place order: %v", err)
		}
	}
	place(100_000_000, 10)
	place(101_000_000, 5)

	res, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 12, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.FilledQty != 12 {
		t.Fatalf("filled = %d, want 12", res.FilledQty)
	}
	wantNotional := 100_000_000.0*10 + 101_000_000.0*2
	wantVWAP := Price(wantNotional / 12)
	if diff := res.VWAPPx - wantVWAP; diff > 2 || diff < -2 {
		t.Errorf("vwap = %v, want ~%v", res.VWAPPx, wantVWAP)
	}
	if res.WorstPx != 101_000_000 {
		t.Errorf("worst = %v, want 101_000_000", res.WorstPx)
	}
}

func TestReserveInsufficientLiquidityWithoutPartialFill(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	maker := mustAccount(t, e, "maker")
	taker := mustAccount(t, e, "taker")

	if _, err := e.PlaceOrder(PlaceOrderInput{
		AccountIdx: maker, InstrumentIdx: 0, Side: types.Ask,
		MakerClass: types.DLPMaker, TIF: types.GTC,
		Price: 100_000_000, Qty: 3, NowMs: 1,
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	_, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 10, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	})
	if err == nil {
		t.Fatal("want InsufficientLiquidity error")
	}
	se, ok := err.(*Error)
	if !ok || se.Code != types.ErrInsufficientLiquidity {
		t.Fatalf("want InsufficientLiquidity, got %v", err)
	}
}

func TestReserveDoesNotCrossLimitPrice(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	maker := mustAccount(t, e, "maker")
	taker := mustAccount(t, e, "taker")

	if _, err := e.PlaceOrder(PlaceOrderInput{
		AccountIdx: maker, InstrumentIdx: 0, Side: types.Ask,
		MakerClass: types.DLPMaker, TIF: types.GTC,
		Price: 102_000_000, Qty: 10, NowMs: 1,
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	_, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 5, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	})
	if err == nil {
		t.Fatal("want InsufficientLiquidity: ask at 102 crosses limit 101")
	}
}

func TestReserveRejectsMisalignedQty(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	taker := mustAccount(t, e, "taker")

	_, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 0, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	})
	se, ok := err.(*Error)
	if !ok || se.Code != types.ErrMisalignedQty {
		t.Fatalf("want MisalignedQty, got %v", err)
	}
}

func TestReserveClampsExcessiveTTL(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	maker := mustAccount(t, e, "maker")
	taker := mustAccount(t, e, "taker")

	if _, err := e.PlaceOrder(PlaceOrderInput{
		AccountIdx: maker, InstrumentIdx: 0, Side: types.Ask,
		MakerClass: types.DLPMaker, TIF: types.GTC,
		Price: 100_000_000, Qty: 10, NowMs: 1,
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	res, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 5, LimitPx: 101_000_000,
		TTLMs: 10_000_000, NowMs: 0,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.ExpiryMs != capTTLMaxMs {
		t.Errorf("expiry = %d, want clamp to %d", res.ExpiryMs, capTTLMaxMs)
	}
}

func TestCancelReleasesReservedQty(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	maker := mustAccount(t, e, "maker")
	taker := mustAccount(t, e, "taker")

	if _, err := e.PlaceOrder(PlaceOrderInput{
		AccountIdx: maker, InstrumentIdx: 0, Side: types.Ask,
		MakerClass: types.DLPMaker, TIF: types.GTC,
		Price: 100_000_000, Qty: 10, NowMs: 1,
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	res, err := e.Reserve(ReserveInput{
		RouteID: 1, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 10, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Fully reserved: a second reservation against the same depth fails.
	if _, err := e.Reserve(ReserveInput{
		RouteID: 2, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 1, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	}); err == nil {
		t.Fatal("want InsufficientLiquidity: depth already fully reserved")
	}

	if err := e.Cancel(res.HoldID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Canceling again is a no-op, not an error.
	if err := e.Cancel(res.HoldID); err != nil {
		t.Fatalf("idempotent cancel: %v", err)
	}
	if err := e.Cancel(999); err != nil {
		t.Fatalf("canceling unknown hold should be a no-op: %v", err)
	}

	// Depth is released: the same reservation can succeed again.
	if _, err := e.Reserve(ReserveInput{
		RouteID: 3, AccountIdx: taker, InstrumentIdx: 0,
		Side: types.Bid, Qty: 10, LimitPx: 101_000_000,
		TTLMs: 5000, NowMs: 10,
	}); err != nil {
		t.Fatalf("reserve after cancel: %v", err)
	}
}

