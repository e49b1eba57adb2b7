package router

import (
	"percolator/internal/slab"
	"percolator/pkg/types"
)

// Candidate names one slab the orchestrator should try reserving against
// for a cross-slab buy, and how much to attempt reserving there (spec §4.9
// step 1). Qty is the orchestrator's own sizing decision — e.g. an even
// split of desiredQty, or weighted by each slab's last-known depth — made
// by the caller before ExecuteBuy is invoked.
type Candidate struct {
	Slab           SlabID
	InstrumentIdx  uint8
	AccountOwner   string
	Qty            int64
	LimitPx        int64
	CommitmentHash [32]byte
	TTLMs          int64
}

type reserveOutcome struct {
	candidate     Candidate
	result        *slab.ReserveResult
	markAtReserve slab.Price
	err           error
}

// RouteResult summarizes an orchestrated cross-slab buy.
type RouteResult struct {
	FilledQty    int64
	TotalCharge  float64
	Commits      []CommitOutcome
	PartialFill  bool
}

// CommitOutcome records one chosen slab's commit result.
type CommitOutcome struct {
	Slab   SlabID
	Result *slab.CommitResult
}

// ExecuteBuy runs spec §4.9's multi-slab buy: reserve on every candidate
// in parallel (mirroring the teacher's engine.Engine launching one
// goroutine per marketSlot and fanning results back through a channel),
// select a subset with selectCandidates, pledge escrow and mint a
// capability per chosen slab, and commit each in turn. When a commit
// fails, that slab's capability is burned and the escrow still pledged to
// it is unpledged; then every chosen hold is cancelled and an error is
// returned. Slabs that committed before the failure keep their fills and
// their escrow is not unpledged, so the route is not all-or-nothing. A
// failure in Pledge, MintCap or the slab lookup cancels the holds without
// unpledging anything.
func (r *Router) ExecuteBuy(user string, mint types.Mint, side types.Side, desiredQty int64, limitPx int64, nowMs int64, candidates []Candidate, oracle slab.OracleReader) (*RouteResult, error) {
	routeID := r.BeginRoute(user, mint)
	defer r.EndRoute(routeID)

	outcomes := r.fanOutReserve(routeID, side, nowMs, candidates, oracle)

	chosen, filledQty := selectCandidates(outcomes, desiredQty, limitPx, side)
	if len(chosen) == 0 {
		for _, oc := range outcomes {
			if oc.err == nil {
				r.cancelSlab(oc.candidate.Slab, oc.result.HoldID)
			}
		}
		return nil, newErr("execute_buy", types.ErrInsufficientLiquidity, "no candidate subset met desired quantity within limit")
	}

	// Every successful reserve not selected into chosen still holds its
	// depth (and the contra makers' reserved_qty) until its TTL expires —
	// release it immediately instead of leaving it pinned for no reason.
	// Keyed on (slab, hold_id) since hold IDs are only unique within one
	// slab's own allocator, not across slabs.
	type holdKey struct {
		slab SlabID
		hold slab.HoldID
	}
	isChosen := make(map[holdKey]bool, len(chosen))
	for _, oc := range chosen {
		isChosen[holdKey{oc.candidate.Slab, oc.result.HoldID}] = true
	}
	for _, oc := range outcomes {
		if oc.err == nil && !isChosen[holdKey{oc.candidate.Slab, oc.result.HoldID}] {
			r.cancelSlab(oc.candidate.Slab, oc.result.HoldID)
		}
	}

	var commits []CommitOutcome
	var totalCharge float64
	failed := false

	for _, oc := range chosen {
		if err := r.Pledge(user, oc.candidate.Slab, mint, oc.result.MaxCharge); err != nil {
			failed = true
			break
		}
		c, err := r.MintCap(user, oc.candidate.Slab, mint, oc.result.MaxCharge, oc.candidate.TTLMs, nowMs)
		if err != nil {
			failed = true
			break
		}
		r.trackPledge(routeID, oc.candidate.Slab, oc.result.MaxCharge, c.Ref)

		eng := r.Slab(oc.candidate.Slab)
		if eng == nil {
			failed = true
			break
		}
		authz := r.AuthorizerFor(oc.candidate.Slab)
		authz.NowMs = func() int64 { return nowMs }
		res, err := eng.Commit(slab.CommitInput{
			HoldID:         oc.result.HoldID,
			CapRef:         string(c.Ref),
			SettlementMint: mint,
			NowMs:          nowMs,
		}, authz, oracle, oc.markAtReserve)
		if err != nil {
			r.BurnCap(c.Ref)
			// A commit can fail after SafeDebit already spent part of the
			// pledge (slab.Commit's post-trade margin check runs after the
			// debit) — unpledge whatever's actually still in escrow, not
			// the full pledge, or this would be rejected by Unpledge's own
			// sufficiency check and leave the remainder stranded.
			remaining := r.EscrowBalance(user, oc.candidate.Slab, mint)
			if remaining > 0 {
				r.Unpledge(user, oc.candidate.Slab, mint, remaining)
			}
			failed = true
			break
		}
		commits = append(commits, CommitOutcome{Slab: oc.candidate.Slab, Result: res})
		totalCharge += res.TotalCharge
		r.UpdatePortfolioOnTrade(oc.candidate.Slab, oc.candidate.InstrumentIdx, signedQty(side, oc.result.FilledQty), -res.TotalCharge, user)
	}

	if failed {
		// spec §4.9 step 5: cancel uncommitted slabs, refund escrow. Any
		// slab that already committed above keeps its fill — partial
		// commits are reconciled by cancelling the rest, not unwound.
		for _, oc := range chosen {
			eng := r.Slab(oc.candidate.Slab)
			if eng != nil {
				eng.Cancel(oc.result.HoldID)
			}
		}
		return nil, newErr("execute_buy", types.ErrChargeExceedsMax, "one or more chosen slabs failed to commit")
	}

	return &RouteResult{
		FilledQty:   filledQty,
		TotalCharge: totalCharge,
		Commits:     commits,
		PartialFill: filledQty < desiredQty,
	}, nil
}

func (r *Router) fanOutReserve(routeID RouteID, side types.Side, nowMs int64, candidates []Candidate, oracle slab.OracleReader) []reserveOutcome {
	results := make(chan reserveOutcome, len(candidates))
	for _, c := range candidates {
		go func(c Candidate) {
			eng := r.Slab(c.Slab)
			if eng == nil {
				results <- reserveOutcome{candidate: c, err: newErr("reserve", types.ErrInstrumentUnknown, "slab not registered")}
				return
			}
			accIdx, err := eng.GetOrCreateAccount(c.AccountOwner)
			if err != nil {
				results <- reserveOutcome{candidate: c, err: err}
				return
			}
			// Captured at the same instant as the reserve itself, so the
			// kill-band check at commit time compares against the mark the
			// Router actually saw when it locked this depth (spec §4.4).
			mark, err := oracle.Mark(slab.InstrumentIdx(c.InstrumentIdx))
			if err != nil {
				results <- reserveOutcome{candidate: c, err: err}
				return
			}
			res, err := eng.Reserve(slab.ReserveInput{
				RouteID:        slab.RouteID(routeID),
				AccountIdx:     accIdx,
				InstrumentIdx:  slab.InstrumentIdx(c.InstrumentIdx),
				Side:           side,
				Qty:            slab.Qty(c.Qty),
				LimitPx:        slab.Price(c.LimitPx),
				TTLMs:          c.TTLMs,
				CommitmentHash: c.CommitmentHash,
				NowMs:          nowMs,
			})
			results <- reserveOutcome{candidate: c, result: res, markAtReserve: mark, err: err}
		}(c)
	}

	outcomes := make([]reserveOutcome, 0, len(candidates))
	for range candidates {
		outcomes = append(outcomes, <-results)
	}
	return outcomes
}

// selectCandidates picks successful reserves greedily by best price first
// until their combined filled quantity reaches desiredQty (spec §4.9
// step 2), and returns them with that combined quantity. The total can
// exceed desiredQty, and it falls short of desiredQty when all successful
// reserves together hold less. It returns nothing when the picked
// subset's aggregate VWAP is worse than limitPx.
func selectCandidates(outcomes []reserveOutcome, desiredQty int64, limitPx int64, side types.Side) ([]reserveOutcome, int64) {
	var ok []reserveOutcome
	for _, oc := range outcomes {
		if oc.err == nil && oc.result.FilledQty > 0 {
			ok = append(ok, oc)
		}
	}
	// Sort best-price-first: ascending VWAP for a buy, descending for a sell.
	for i := 1; i < len(ok); i++ {
		for j := i; j > 0; j-- {
			better := ok[j].result.VWAPPx < ok[j-1].result.VWAPPx
			if side == types.Ask {
				better = ok[j].result.VWAPPx > ok[j-1].result.VWAPPx
			}
			if !better {
				break
			}
			ok[j], ok[j-1] = ok[j-1], ok[j]
		}
	}

	var chosen []reserveOutcome
	var filled int64
	var notional float64
	for _, oc := range ok {
		if filled >= desiredQty {
			break
		}
		chosen = append(chosen, oc)
		filled += int64(oc.result.FilledQty)
		notional += float64(oc.result.FilledQty) * oc.result.VWAPPx.PriceF()
	}
	if filled == 0 {
		return nil, 0
	}
	aggVWAP := notional / float64(filled)
	if side == types.Bid && aggVWAP > slab.Price(limitPx).PriceF() {
		return nil, 0
	}
	if side == types.Ask && aggVWAP < slab.Price(limitPx).PriceF() {
		return nil, 0
	}
	return chosen, filled
}

func (r *Router) cancelSlab(slabID SlabID, hold slab.HoldID) {
	if eng := r.Slab(slabID); eng != nil {
		eng.Cancel(hold)
	}
}

func signedQty(side types.Side, qty slab.Qty) float64 {
	if side == types.Ask {
		return -float64(qty)
	}
	return float64(qty)
}
