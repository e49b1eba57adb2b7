package api

import (
	"time"

	"percolator/internal/config"
	"percolator/internal/router"
	"percolator/internal/slab"
	"percolator/pkg/types"
)

// SnapshotProvider supplies the live state BuildSnapshot renders: every
// registered slab engine plus the Router coordinating them (spec §6.5
// GET /snapshot — "point-in-time JSON view of every slab's book depth,
// open reservations, risk snapshot, and the Router's vault/escrow/
// portfolio state").
type SnapshotProvider interface {
	Slabs() map[string]*slab.Engine
	Router() *router.Router
	Marks() router.MarkSource
}

// BuildSnapshot aggregates state from every slab and the Router into a
// dashboard snapshot.
func BuildSnapshot(provider SnapshotProvider, cfg config.Config) DashboardSnapshot {
	slabs := make([]SlabStatus, 0, len(provider.Slabs()))
	for id, eng := range provider.Slabs() {
		slabs = append(slabs, buildSlabStatus(id, eng))
	}

	return DashboardSnapshot{
		Timestamp: time.Now(),
		Slabs:     slabs,
		Router:    buildRouterStatus(provider, cfg),
		Config:    NewConfigSummary(cfg),
	}
}

func buildSlabStatus(id string, eng *slab.Engine) SlabStatus {
	instruments := make([]InstrumentStatus, 0)
	for _, idx := range eng.UsedInstruments() {
		inst, err := eng.Instrument(idx)
		if err != nil {
			continue
		}
		instruments = append(instruments, buildInstrumentStatus(eng, idx, inst))
	}

	return SlabStatus{
		ID:               id,
		Instruments:      instruments,
		OpenReservations: eng.OpenReservationCount(),
		AccountsInUse:    eng.AccountCount(),
		LastUpdated:      time.Now(),
	}
}

func buildInstrumentStatus(eng *slab.Engine, idx slab.InstrumentIdx, inst *slab.Instrument) InstrumentStatus {
	status := InstrumentStatus{
		Symbol:      inst.Symbol,
		IndexPrice:  inst.IndexPrice.PriceF(),
		FundingRate: inst.FundingRate,
	}

	if bids, err := eng.Snapshot(idx, types.Bid); err == nil && len(bids) > 0 {
		status.BestBid = bids[0].Price.PriceF()
	}
	if asks, err := eng.Snapshot(idx, types.Ask); err == nil && len(asks) > 0 {
		status.BestAsk = asks[0].Price.PriceF()
	}
	if status.BestBid > 0 && status.BestAsk > 0 {
		status.MidPrice = (status.BestBid + status.BestAsk) / 2
		if status.MidPrice > 0 {
			status.SpreadBps = (status.BestAsk - status.BestBid) / status.MidPrice * 10_000
		}
	}
	return status
}

func buildRouterStatus(provider SnapshotProvider, cfg config.Config) RouterStatus {
	r := provider.Router()
	balances := make(map[string]float64, len(cfg.Router.Mints))
	for _, m := range cfg.Router.Mints {
		balances[m] = r.VaultBalance(types.Mint(m))
	}

	status := RouterStatus{
		VaultBalances:       balances,
		OpenCapabilities:    r.OpenCapabilityCount(),
		NetExposureBySymbol: r.NetExposureBySymbol(),
	}

	if marks := provider.Marks(); marks != nil {
		if im, err := r.IMRouter(marks); err == nil {
			status.PortfolioIM = im
		}
	}
	return status
}
