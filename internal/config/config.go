// Package config defines all configuration for the Percolator engine:
// per-slab risk/anti-toxicity parameters, Router vault/capability limits,
// logging, dashboard and oracle settings. Config is loaded from a YAML
// file (default: configs/config.yaml) with PERC_*-prefixed environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Slabs     []SlabConfig    `mapstructure:"slabs"`
	Router    RouterConfig    `mapstructure:"router"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Store     StoreConfig     `mapstructure:"store"`
}

// StoreConfig sets where each slab's region snapshot is persisted (spec
// §6.3). Empty DataDir disables persistence (in-memory only, e.g. tests).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// SlabConfig configures one sharded slab's region and anti-toxicity
// parameters (spec §6.4).
type SlabConfig struct {
	ID  string `mapstructure:"id"`
	IMR float64 `mapstructure:"imr"`
	MMR float64 `mapstructure:"mmr"`

	FeeCapBps      int   `mapstructure:"fee_cap_bps"`
	TakerFeeBps    int64 `mapstructure:"taker_fee_bps"`
	MakerRebateBps int64 `mapstructure:"maker_rebate_bps"`

	BatchMs          int64 `mapstructure:"batch_ms"`
	KillBandBps      int64 `mapstructure:"kill_band_bps"`
	FreezeLevels     int   `mapstructure:"freeze_levels"`
	JITPenaltyOn     bool  `mapstructure:"jit_penalty_on"`
	MakerRebateMinMs int64 `mapstructure:"maker_rebate_min_ms"`

	ARGEnabled bool  `mapstructure:"arg_enabled"`
	ARGTaxBps  int64 `mapstructure:"arg_tax_bps"`

	AllowPartialFill  bool `mapstructure:"allow_partial_fill"`
	ExposeReservedQty bool `mapstructure:"expose_reserved_qty"`

	// DLPMaxFixed carries the dlp_max_fixed option (spec §6.4); nothing in
	// internal/engine reads it. DLPAccounts is the allowlist content
	// itself, copied into each instrument's DLP set.
	DLPMaxFixed int      `mapstructure:"dlp_max_fixed"`
	DLPAccounts []uint32 `mapstructure:"dlp_accounts"`

	Capacities   CapacitiesConfig     `mapstructure:"capacities"`
	Instruments  []InstrumentConfig   `mapstructure:"instruments"`
}

// CapacitiesConfig sizes every pool in a slab's region (spec §3.2).
type CapacitiesConfig struct {
	Accounts     int `mapstructure:"accounts"`
	Orders       int `mapstructure:"orders"`
	Positions    int `mapstructure:"positions"`
	Reservations int `mapstructure:"reservations"`
	Slices       int `mapstructure:"slices"`
	TradeRing    int `mapstructure:"trade_ring"`
	Aggressor    int `mapstructure:"aggressor"`
}

// InstrumentConfig describes one tradeable instrument within a slab plus
// the oracle symbol it marks against.
type InstrumentConfig struct {
	Symbol       string  `mapstructure:"symbol"`
	OracleID     string  `mapstructure:"oracle_id"`
	ContractSize int64   `mapstructure:"contract_size"`
	Tick         int64   `mapstructure:"tick"`
	Lot          int64   `mapstructure:"lot"`
	IndexPrice   int64   `mapstructure:"index_price"`
}

// RouterConfig configures the Router's vault mints and portfolio IMR
// (spec §4.7/§4.8). CapTTLMaxSecs is validated to (0, 120] but is not
// passed to the Router, which clamps capability TTLs to its own fixed
// 120 s ceiling.
type RouterConfig struct {
	Mints        []string `mapstructure:"mints"`
	CapTTLMaxSecs int64   `mapstructure:"cap_ttl_max_secs"`
	IMRGlobal    float64  `mapstructure:"imr_global"`
}

// OracleConfig configures the demo REST oracle adapter (internal/oracle).
type OracleConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the web dashboard/observability server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PERC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if base := os.Getenv("PERC_ORACLE_BASE_URL"); base != "" {
		cfg.Oracle.BaseURL = base
	}
	if os.Getenv("PERC_DRY_RUN") == "true" || os.Getenv("PERC_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges, following the
// teacher's flat sequence of fmt.Errorf checks rather than a validation
// library.
func (c *Config) Validate() error {
	if len(c.Slabs) == 0 {
		return fmt.Errorf("at least one entry in slabs is required")
	}
	seen := make(map[string]bool, len(c.Slabs))
	for _, s := range c.Slabs {
		if s.ID == "" {
			return fmt.Errorf("slabs[].id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slab id %q", s.ID)
		}
		seen[s.ID] = true
		if s.IMR <= 0 || s.MMR <= 0 {
			return fmt.Errorf("slab %q: imr and mmr must be > 0", s.ID)
		}
		if s.MMR >= s.IMR {
			return fmt.Errorf("slab %q: mmr must be < imr", s.ID)
		}
		if len(s.Instruments) == 0 {
			return fmt.Errorf("slab %q: at least one instrument is required", s.ID)
		}
		for _, inst := range s.Instruments {
			if inst.Symbol == "" {
				return fmt.Errorf("slab %q: instrument symbol is required", s.ID)
			}
			if inst.Tick <= 0 || inst.Lot <= 0 || inst.ContractSize <= 0 {
				return fmt.Errorf("slab %q instrument %q: tick, lot and contract_size must be > 0", s.ID, inst.Symbol)
			}
		}
	}
	if len(c.Router.Mints) == 0 {
		return fmt.Errorf("router.mints is required")
	}
	if c.Router.CapTTLMaxSecs <= 0 || c.Router.CapTTLMaxSecs > 120 {
		return fmt.Errorf("router.cap_ttl_max_secs must be in (0, 120]")
	}
	if c.Router.IMRGlobal <= 0 {
		return fmt.Errorf("router.imr_global must be > 0")
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	return nil
}
