package api

import (
	"time"

	"percolator/internal/slab"
	"percolator/pkg/types"
)

// DashboardEvent wraps every event pushed to WS /stream clients.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "trade", "risk"
	Timestamp time.Time   `json:"timestamp"`
	SlabID    string      `json:"slab_id,omitempty"`
	Data      interface{} `json:"data"`
}

// TradeEvent is a public trade-tape print, broadcast as a slab's commits
// settle (spec §6.5 "broadcasting slab.TradePrint ... events as they
// occur").
type TradeEvent struct {
	InstrumentIdx uint8   `json:"instrument_idx"`
	Price         float64 `json:"price"`
	Qty           int64   `json:"qty"`
	Side          string  `json:"side"`
	RevealMs      int64   `json:"reveal_ms"`
}

// NewTradeEvent converts a slab.TradePrint into its dashboard form.
func NewTradeEvent(tp slab.TradePrint) TradeEvent {
	side := "bid"
	if tp.Side == types.Ask {
		side = "ask"
	}
	return TradeEvent{
		InstrumentIdx: uint8(tp.InstrumentIdx),
		Price:         tp.Price.PriceF(),
		Qty:           int64(tp.Qty),
		Side:          side,
		RevealMs:      tp.RevealMs,
	}
}

// RiskEvent reports a rejection a risk desk would want paged on: a
// kill-band trip, a margin failure, a liquidation eligibility flip.
type RiskEvent struct {
	Code    string `json:"code"`
	Op      string `json:"op"`
	Context string `json:"context"`
}

// NewRiskEvent builds a RiskEvent from a slab or router Error.
func NewRiskEvent(code types.ErrorCode, op, context string) RiskEvent {
	return RiskEvent{Code: code.String(), Op: op, Context: context}
}
