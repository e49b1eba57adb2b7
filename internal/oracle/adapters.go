package oracle

import (
	"context"

	"percolator/internal/slab"
)

// SlabAdapter resolves a slab's InstrumentIdx to the oracleID a Source
// understands, satisfying slab.OracleReader for one slab's kill-band check.
// A per-slab adapter rather than a global one because instrument index 0 on
// slab-a and instrument index 0 on slab-b are unrelated instruments that
// may map to entirely different oracle feeds.
type SlabAdapter struct {
	source Source
	ctx    context.Context
	ids    map[slab.InstrumentIdx]string
}

// NewSlabAdapter builds a SlabAdapter over ids, the instrument-index to
// oracleID mapping configured for one slab (spec §6.4's per-instrument
// config carries this alongside tick/lot/contract_size).
func NewSlabAdapter(ctx context.Context, source Source, ids map[slab.InstrumentIdx]string) *SlabAdapter {
	return &SlabAdapter{source: source, ctx: ctx, ids: ids}
}

func (a *SlabAdapter) Mark(idx slab.InstrumentIdx) (slab.Price, error) {
	id, ok := a.ids[idx]
	if !ok {
		return 0, fmtUnreachable("", errUnmappedInstrument(idx))
	}
	price, _, err := a.source.Mark(a.ctx, id)
	if err != nil {
		return 0, err
	}
	return slab.Price(price * 1e6), nil
}

// RouterAdapter satisfies router.MarkSource directly against an oracle
// symbol string — the Router's portfolio netting keys exposure by symbol,
// not by any one slab's local instrument index (spec §4.8).
type RouterAdapter struct {
	source Source
	ctx    context.Context
}

func NewRouterAdapter(ctx context.Context, source Source) *RouterAdapter {
	return &RouterAdapter{source: source, ctx: ctx}
}

func (a *RouterAdapter) Mark(symbol string) (float64, error) {
	price, _, err := a.source.Mark(a.ctx, symbol)
	return price, err
}

type unmappedInstrumentError struct{ idx slab.InstrumentIdx }

func (e unmappedInstrumentError) Error() string {
	return "no oracle id mapped for instrument"
}

func errUnmappedInstrument(idx slab.InstrumentIdx) error {
	return unmappedInstrumentError{idx: idx}
}
