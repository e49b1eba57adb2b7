// Package engine is the process-level orchestrator. It owns the lifecycle
// of every subsystem:
//
//  1. Config is translated into one slab.Engine per configured shard plus
//     one Router, wired together via the Router's registry and capability
//     authorizer (spec §4.7).
//  2. Each slab gets a dedicated goroutine (runSlabExecutor) that ticks
//     BatchOpen for every instrument on its own Header.BatchMs cadence —
//     the one place outside the orchestrator's reserve fan-out where a
//     slab's state is touched from a goroutine other than the caller's
//     own (spec §5: "single-threaded cooperative" within an operation,
//     one goroutine per slab executor for everything else).
//  3. The Router's cross-slab orchestrator (internal/router/orchestrator.go)
//     runs its own bounded goroutine fan-out per ExecuteBuy call.
//  4. The dashboard/metrics API server, when enabled, is started and
//     stopped alongside the rest of the engine.
//
// Lifecycle: New() → Start() → [runs until Stop()].
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"percolator/internal/api"
	"percolator/internal/config"
	"percolator/internal/oracle"
	"percolator/internal/router"
	"percolator/internal/slab"
	"percolator/pkg/types"
)

// slabExecutor owns one slab.Engine and the goroutine that ticks its
// batch-open cadence.
type slabExecutor struct {
	id      string
	engine  *slab.Engine
	adapter *oracle.SlabAdapter
	batchMs int64
	cancel  context.CancelFunc
}

// Engine orchestrates every slab plus the Router and, optionally, the
// dashboard/metrics API.
type Engine struct {
	cfg    config.Config
	router *router.Router
	source oracle.Source

	slabs       map[string]*slabExecutor
	routeOracle *oracle.SlabAdapter // merged instrument-idx map for cross-slab ExecuteBuy
	marks       *oracle.RouterAdapter

	dashboard *api.Server
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every slab, the Router, the oracle adapters, and (if enabled)
// the dashboard server from cfg. It does not start any goroutines — call
// Start for that.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	r, err := router.New(router.Config{IMRGlobal: cfg.Router.IMRGlobal})
	if err != nil {
		return nil, fmt.Errorf("new router: %w", err)
	}

	source := oracle.NewRESTSource(oracle.Config{
		BaseURL:      cfg.Oracle.BaseURL,
		Timeout:      cfg.Oracle.Timeout,
		MaxStaleness: cfg.Oracle.MaxStaleness,
	})

	ctx, cancel := context.WithCancel(context.Background())

	slabs := make(map[string]*slabExecutor, len(cfg.Slabs))
	routeIDs := make(map[slab.InstrumentIdx]string)

	for _, sc := range cfg.Slabs {
		caps := slab.Capacities{
			Accounts:     sc.Capacities.Accounts,
			Orders:       sc.Capacities.Orders,
			Positions:    sc.Capacities.Positions,
			Reservations: sc.Capacities.Reservations,
			Slices:       sc.Capacities.Slices,
			TradeRing:    sc.Capacities.TradeRing,
			Aggressor:    sc.Capacities.Aggressor,
		}
		if caps == (slab.Capacities{}) {
			caps = slab.DefaultCapacities()
		}

		header := slab.Header{
			IMR:              sc.IMR,
			MMR:              sc.MMR,
			FeeCapBps:        sc.FeeCapBps,
			TakerFeeBps:      sc.TakerFeeBps,
			MakerRebateBps:   sc.MakerRebateBps,
			BatchMs:          sc.BatchMs,
			KillBandBps:      sc.KillBandBps,
			FreezeLevels:     sc.FreezeLevels,
			JITPenaltyOn:     sc.JITPenaltyOn,
			MakerRebateMinMs: sc.MakerRebateMinMs,
			ARGEnabled:       sc.ARGEnabled,
			ARGTaxBps:        sc.ARGTaxBps,
			AllowPartialFill: sc.AllowPartialFill,
			ExposeReservedQty: sc.ExposeReservedQty,
		}

		eng := slab.NewEngine(sc.ID, header, caps)

		slabIDs := make(map[slab.InstrumentIdx]string, len(sc.Instruments))
		for _, ic := range sc.Instruments {
			idx, err := eng.AddInstrument(slab.Instrument{
				Symbol:       ic.Symbol,
				ContractSize: slab.Qty(ic.ContractSize),
				Tick:         slab.Price(ic.Tick),
				Lot:          slab.Qty(ic.Lot),
				IndexPrice:   slab.Price(ic.IndexPrice),
				DLP:          dlpAllowlist(sc.DLPAccounts),
			})
			if err != nil {
				cancel()
				return nil, fmt.Errorf("slab %q: add instrument %q: %w", sc.ID, ic.Symbol, err)
			}
			slabIDs[idx] = ic.OracleID
			r.MapInstrumentSymbol(router.SlabID(sc.ID), uint8(idx), ic.OracleID)

			// Cross-slab routing assumes an instrument sharded across
			// multiple slabs is assigned the same InstrumentIdx in each
			// one (the natural convention when every slab for a given
			// symbol is configured identically) — see DESIGN.md. A
			// mismatch here means two slabs disagree about what index N
			// quotes, which is a config error worth failing fast on.
			if existing, ok := routeIDs[idx]; ok && existing != ic.OracleID {
				cancel()
				return nil, fmt.Errorf("instrument idx %d maps to %q in slab %q but %q elsewhere", idx, ic.OracleID, sc.ID, existing)
			}
			routeIDs[idx] = ic.OracleID
		}

		r.RegisterSlab(router.SlabID(sc.ID), eng)

		slabCtx, slabCancel := context.WithCancel(ctx)
		slabs[sc.ID] = &slabExecutor{
			id:      sc.ID,
			engine:  eng,
			adapter: oracle.NewSlabAdapter(slabCtx, source, slabIDs),
			batchMs: header.BatchMs,
			cancel:  slabCancel,
		}
	}

	e := &Engine{
		cfg:         cfg,
		router:      r,
		source:      source,
		slabs:       slabs,
		routeOracle: oracle.NewSlabAdapter(ctx, source, routeIDs),
		marks:       oracle.NewRouterAdapter(ctx, source),
		logger:      logger.With("component", "engine"),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.Dashboard.Enabled {
		e.dashboard = api.NewServer(cfg.Dashboard, e, cfg, logger)
	}

	return e, nil
}

func dlpAllowlist(accounts []uint32) map[uint32]bool {
	if len(accounts) == 0 {
		return nil
	}
	m := make(map[uint32]bool, len(accounts))
	for _, a := range accounts {
		m[a] = true
	}
	return m
}

// Start launches one batch-open goroutine per slab and, if configured, the
// dashboard server.
func (e *Engine) Start() error {
	for _, ex := range e.slabs {
		e.wg.Add(1)
		go func(ex *slabExecutor) {
			defer e.wg.Done()
			e.runSlabExecutor(ex)
		}(ex)
	}

	if e.dashboard != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.dashboard.Start(); err != nil {
				e.logger.Error("dashboard server error", "error", err)
			}
		}()
	}

	e.logger.Info("engine started", "slabs", len(e.slabs), "dashboard", e.dashboard != nil)
	return nil
}

// runSlabExecutor ticks BatchOpen for every instrument in ex on its
// configured cadence until the engine shuts down. A zero BatchMs means
// "no scheduled promotion" — the instrument only advances when something
// else (a test, an operator tool) calls BatchOpen directly.
func (e *Engine) runSlabExecutor(ex *slabExecutor) {
	if ex.batchMs <= 0 {
		<-e.ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Duration(ex.batchMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			nowMs := now.UnixMilli()
			for _, idx := range ex.engine.UsedInstruments() {
				if _, _, err := ex.engine.BatchOpen(idx, nowMs); err != nil {
					e.logger.Error("batch_open failed", "slab", ex.id, "instrument", idx, "error", err)
				}
			}
		}
	}
}

// Stop cancels every slab executor, waits for goroutines to finish,
// persists every slab's region if a data dir is configured, and stops the
// dashboard.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()
	for _, ex := range e.slabs {
		ex.cancel()
	}

	if e.dashboard != nil {
		if err := e.dashboard.Stop(); err != nil {
			e.logger.Error("failed to stop dashboard", "error", err)
		}
	}

	e.wg.Wait()

	if dir := e.cfg.Store.DataDir; dir != "" {
		for id, ex := range e.slabs {
			path := fmt.Sprintf("%s/%s.region", dir, id)
			if err := ex.engine.Save(path); err != nil {
				e.logger.Error("failed to save slab region", "slab", id, "error", err)
			}
		}
	}

	e.logger.Info("shutdown complete")
}

// PlaceOrder posts a resting order to the named slab.
func (e *Engine) PlaceOrder(slabID string, in slab.PlaceOrderInput) (slab.OrderID, error) {
	ex, ok := e.slabs[slabID]
	if !ok {
		return 0, fmt.Errorf("unknown slab %q", slabID)
	}
	return ex.engine.PlaceOrder(in)
}

// CancelOrder cancels a resting order on the named slab.
func (e *Engine) CancelOrder(slabID string, oid slab.OrderID) error {
	ex, ok := e.slabs[slabID]
	if !ok {
		return fmt.Errorf("unknown slab %q", slabID)
	}
	return ex.engine.CancelOrder(oid)
}

// ExecuteBuy runs a cross-slab route through the Router, using the
// engine's merged oracle adapter for every candidate's kill-band mark
// (spec §4.9).
func (e *Engine) ExecuteBuy(user string, mint types.Mint, side types.Side, desiredQty, limitPx int64, candidates []router.Candidate) (*router.RouteResult, error) {
	return e.router.ExecuteBuy(user, mint, side, desiredQty, limitPx, time.Now().UnixMilli(), candidates, e.routeOracle)
}

// Deposit credits the Router's vault for mint (an operator/bridge action,
// spec §4.7).
func (e *Engine) Deposit(mint types.Mint, amount float64) error {
	return e.router.Deposit(mint, amount)
}

// Withdraw debits the Router's vault for mint.
func (e *Engine) Withdraw(mint types.Mint, amount float64) error {
	return e.router.Withdraw(mint, amount)
}

// Slabs implements api.SnapshotProvider.
func (e *Engine) Slabs() map[string]*slab.Engine {
	out := make(map[string]*slab.Engine, len(e.slabs))
	for id, ex := range e.slabs {
		out[id] = ex.engine
	}
	return out
}

// Router implements api.SnapshotProvider.
func (e *Engine) Router() *router.Router {
	return e.router
}

// Marks implements api.SnapshotProvider.
func (e *Engine) Marks() router.MarkSource {
	return e.marks
}
