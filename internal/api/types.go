package api

import (
	"time"

	"percolator/internal/config"
)

// DashboardSnapshot is the complete point-in-time dashboard state: every
// slab's top of book per instrument and its open reservation and account
// counts, plus the Router's vault, capability and portfolio state (spec
// §6.5 GET /snapshot). Escrow balances and per-account risk figures are
// not included.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Slabs []SlabStatus `json:"slabs"`

	Router RouterStatus `json:"router"`

	Config ConfigSummary `json:"config"`
}

// SlabStatus is per-slab state for the dashboard.
type SlabStatus struct {
	ID string `json:"id"`

	Instruments []InstrumentStatus `json:"instruments"`

	OpenReservations int `json:"open_reservations"`
	AccountsInUse    int `json:"accounts_in_use"`

	LastUpdated time.Time `json:"last_updated"`
}

// InstrumentStatus is book-level state for one instrument within a slab.
type InstrumentStatus struct {
	Symbol string `json:"symbol"`

	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	MidPrice  float64 `json:"mid_price"`
	SpreadBps float64 `json:"spread_bps"`

	IndexPrice  float64 `json:"index_price"`
	FundingRate float64 `json:"funding_rate"`
}

// RouterStatus summarizes vault, capability and cross-slab portfolio
// state; escrow balances are not included.
type RouterStatus struct {
	VaultBalances map[string]float64 `json:"vault_balances"`

	OpenCapabilities int `json:"open_capabilities"`

	NetExposureBySymbol map[string]float64 `json:"net_exposure_by_symbol"`
	PortfolioIM         float64            `json:"portfolio_im"`
}

// ConfigSummary is the subset of config worth surfacing on the dashboard.
type ConfigSummary struct {
	DryRun        bool     `json:"dry_run"`
	SlabIDs       []string `json:"slab_ids"`
	RouterMints   []string `json:"router_mints"`
	CapTTLMaxSecs int64    `json:"cap_ttl_max_secs"`
}

// NewConfigSummary creates a ConfigSummary from the loaded config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	ids := make([]string, len(cfg.Slabs))
	for i, s := range cfg.Slabs {
		ids[i] = s.ID
	}
	return ConfigSummary{
		DryRun:        cfg.DryRun,
		SlabIDs:       ids,
		RouterMints:   cfg.Router.Mints,
		CapTTLMaxSecs: cfg.Router.CapTTLMaxSecs,
	}
}
