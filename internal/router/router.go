package router

import (
	"sync"

	"percolator/pkg/types"
)

// Router is the global custodian and orchestrator described in spec §4.7–
// §4.9: it owns the vault, escrow ledger, capability store, cross-slab
// portfolio margin, and the registry of slab engines it fans reserve/
// commit/cancel calls out to. Every exported method takes Router's own
// mutex rather than relying on a single external owning goroutine, since —
// unlike a slab, which is driven by exactly one executor — the
// orchestrator's parallel reserve fan-out (spec §4.9 step 1, §5) means
// multiple goroutines legitimately call into the same Router concurrently.
type Router struct {
	mu sync.RWMutex

	vault     *vault
	escrow    *escrowBook
	caps      map[CapRef]*Capability
	capNonce  uint64
	signerKey *signer

	registry  *registry
	portfolio *portfolio

	routeNonce uint64
	routes     map[RouteID]*routeState
}

// routeState records the pledges and capabilities opened under one
// begin_route/end_route bracket (spec §6.2). EndRoute discards it without
// unwinding anything, and no other code reads it.
type routeState struct {
	user    string
	mint    types.Mint
	pledges map[SlabID]float64
	caps    map[SlabID]CapRef
}

// Config carries Router-wide parameters from internal/config (spec §6.4
// RouterConfig).
type Config struct {
	IMRGlobal float64
}

// New creates a Router with empty vault, escrow, and capability state.
func New(cfg Config) (*Router, error) {
	s, err := newSigner()
	if err != nil {
		return nil, err
	}
	return &Router{
		vault:     newVault(),
		escrow:    newEscrowBook(),
		caps:      make(map[CapRef]*Capability),
		signerKey: s,
		registry:  newRegistry(),
		portfolio: newPortfolio(cfg.IMRGlobal),
		routes:    make(map[RouteID]*routeState),
	}, nil
}

// Deposit credits the vault on a user's behalf (spec §6.2).
func (r *Router) Deposit(mint types.Mint, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vault.Deposit(mint, amount)
}

// Withdraw debits the vault (spec §6.2).
func (r *Router) Withdraw(mint types.Mint, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vault.Withdraw(mint, amount)
}

// BeginRoute opens a bookkeeping bracket for one cross-slab orchestrator
// run, returning a RouteID threaded through every reserve/commit call the
// orchestrator issues on its behalf (spec §6.2 begin_route).
func (r *Router) BeginRoute(user string, mint types.Mint) RouteID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeNonce++
	id := RouteID(r.routeNonce)
	r.routes[id] = &routeState{
		user:    user,
		mint:    mint,
		pledges: make(map[SlabID]float64),
		caps:    make(map[SlabID]CapRef),
	}
	return id
}

// EndRoute closes the bracket, forgetting its bookkeeping. Callers must
// have already resolved every pledge/capability opened under this route
// (via commit or Unpledge/BurnCap) before calling EndRoute (spec §6.2
// end_route).
func (r *Router) EndRoute(id RouteID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, id)
}

// VaultBalance reports the vault's current balance for mint, for dashboard
// reporting.
func (r *Router) VaultBalance(mint types.Mint) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vault.Balance(mint)
}

// OpenCapabilityCount reports how many minted capabilities have not yet
// been burned, for dashboard reporting.
func (r *Router) OpenCapabilityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.caps {
		if !c.Burned {
			n++
		}
	}
	return n
}

// NetExposureBySymbol exposes netBySymbol's per-symbol netted exposure for
// dashboard reporting.
func (r *Router) NetExposureBySymbol() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.netBySymbol()
}

func (r *Router) trackPledge(id RouteID, slabID SlabID, amount float64, ref CapRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[id]
	if !ok {
		return
	}
	rt.pledges[slabID] = amount
	rt.caps[slabID] = ref
}
