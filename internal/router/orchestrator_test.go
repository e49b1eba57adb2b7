package router

import (
	"testing"

	"percolator/internal/slab"
	"percolator/pkg/types"
)

func newTestSlab(t *testing.T, id string) *slab.Engine {
	header := slab.Header{
		IMR: 0.1, MMR: 0.05, FeeCapBps: 50,
		TakerFeeBps: 0, MakerRebateBps: 0,
	}
	e := slab.NewEngine(id, header, slab.Capacities{
		Accounts: 8, Orders: 16, Positions: 8, Reservations: 8, Slices: 16, TradeRing: 16, Aggressor: 4,
	})
	if _, err := e.AddInstrument(slab.Instrument{
		Symbol: "BTC-PERP", ContractSize: 1, Tick: 1_000, Lot: 1, IndexPrice: 100_000_000,
	}); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	return e
}

func seedAsk(t *testing.T, e *slab.Engine, owner string, price, qty int64) {
	makerIdx, err := e.GetOrCreateAccount(owner)
	if err != nil {
		t.Fatalf("get or create account: %v", err)
	}
	if _, err := e.PlaceOrder(slab.PlaceOrderInput{
		AccountIdx: makerIdx, InstrumentIdx: 0, Side: types.Ask,
		MakerClass: types.DLPMaker, TIF: types.GTC,
		Price: slab.Price(price), Qty: slab.Qty(qty), NowMs: 1,
	}); err != nil {
		t.Fatalf("seed ask: %v", err)
	}
}

type zeroOracle struct{ mark slab.Price }

func (o zeroOracle) Mark(slab.InstrumentIdx) (slab.Price, error) { return o.mark, nil }

func TestExecuteBuySingleSlabHappyPath(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 10_000)

	e := newTestSlab(t, "slab-a")
	seedAsk(t, e, "maker", 100_000_000, 10)
	r.RegisterSlab("slab-a", e)

	taker, err := e.GetOrCreateAccount("alice")
	if err != nil {
		t.Fatalf("get or create account: %v", err)
	}
	e.Account(taker).Cash = 10_000

	res, err := r.ExecuteBuy("alice", testMint, types.Bid, 10, 101_000_000, 10, []Candidate{
		{Slab: "slab-a", InstrumentIdx: 0, AccountOwner: "alice", Qty: 10, LimitPx: 101_000_000, TTLMs: 5_000},
	}, zeroOracle{mark: 100_000_000})
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}
	if res.FilledQty != 10 {
		t.Errorf("filled qty = %d, want 10", res.FilledQty)
	}
	if res.PartialFill {
		t.Error("should not report partial fill when fully satisfied")
	}
	if len(res.Commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(res.Commits))
	}
}

func TestExecuteBuySplitsAcrossTwoSlabs(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 10_000)

	a := newTestSlab(t, "slab-a")
	seedAsk(t, a, "maker-a", 100_000_000, 5)
	r.RegisterSlab("slab-a", a)

	b := newTestSlab(t, "slab-b")
	seedAsk(t, b, "maker-b", 100_500_000, 5)
	r.RegisterSlab("slab-b", b)

	for _, e := range []*slab.Engine{a, b} {
		idx, err := e.GetOrCreateAccount("alice")
		if err != nil {
			t.Fatalf("get or create account: %v", err)
		}
		e.Account(idx).Cash = 10_000
	}

	res, err := r.ExecuteBuy("alice", testMint, types.Bid, 10, 101_000_000, 10, []Candidate{
		{Slab: "slab-a", InstrumentIdx: 0, AccountOwner: "alice", Qty: 5, LimitPx: 101_000_000, TTLMs: 5_000},
		{Slab: "slab-b", InstrumentIdx: 0, AccountOwner: "alice", Qty: 5, LimitPx: 101_000_000, TTLMs: 5_000},
	}, zeroOracle{mark: 100_000_000})
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}
	if res.FilledQty != 10 {
		t.Errorf("filled qty = %d, want 10", res.FilledQty)
	}
	if len(res.Commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(res.Commits))
	}
}

func TestExecuteBuyCancelsUnselectedCandidates(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 10_000)

	a := newTestSlab(t, "slab-a")
	seedAsk(t, a, "maker-a", 100_000_000, 10)
	r.RegisterSlab("slab-a", a)

	b := newTestSlab(t, "slab-b")
	seedAsk(t, b, "maker-b", 100_500_000, 5)
	r.RegisterSlab("slab-b", b)

	for _, e := range []*slab.Engine{a, b} {
		idx, err := e.GetOrCreateAccount("alice")
		if err != nil {
			t.Fatalf("get or create account: %v", err)
		}
		e.Account(idx).Cash = 10_000
	}

	// slab-a alone (best price, more depth than desired) satisfies
	// desiredQty, so slab-b's successful reserve should never be chosen —
	// and must be released rather than left pinned until TTL.
	res, err := r.ExecuteBuy("alice", testMint, types.Bid, 5, 101_000_000, 10, []Candidate{
		{Slab: "slab-a", InstrumentIdx: 0, AccountOwner: "alice", Qty: 10, LimitPx: 101_000_000, TTLMs: 5_000},
		{Slab: "slab-b", InstrumentIdx: 0, AccountOwner: "alice", Qty: 5, LimitPx: 101_000_000, TTLMs: 5_000},
	}, zeroOracle{mark: 100_000_000})
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}
	if len(res.Commits) != 1 || res.Commits[0].Slab != "slab-a" {
		t.Fatalf("expected a single commit against slab-a, got %+v", res.Commits)
	}

	levels, err := b.Snapshot(0, types.Ask)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(levels) != 1 || levels[0].Qty != 5 {
		t.Fatalf("slab-b's unselected reserve should have released its depth, got %+v", levels)
	}
}

func TestExecuteBuyFailsWhenNoCandidateMeetsDesiredQty(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	r.Deposit(testMint, 10_000)

	e := newTestSlab(t, "slab-a")
	seedAsk(t, e, "maker", 100_000_000, 2)
	r.RegisterSlab("slab-a", e)

	taker, _ := e.GetOrCreateAccount("alice")
	e.Account(taker).Cash = 10_000

	_, err := r.ExecuteBuy("alice", testMint, types.Bid, 10, 101_000_000, 10, []Candidate{
		{Slab: "slab-a", InstrumentIdx: 0, AccountOwner: "alice", Qty: 10, LimitPx: 101_000_000, TTLMs: 5_000},
	}, zeroOracle{mark: 100_000_000})
	if err == nil {
		t.Fatal("expected failure when liquidity is insufficient to satisfy desired qty")
	}
	// The failed reserve must not have left any depth locked up.
	levels, err := e.Snapshot(0, types.Ask)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(levels) != 1 || levels[0].Qty != 2 {
		t.Fatalf("ask depth should be fully visible after a failed route, got %+v", levels)
	}
}
