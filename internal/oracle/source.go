// Package oracle supplies mark prices to the slab kill-band check and the
// Router's portfolio pre-check. It stands in for the real price-feed
// infrastructure named out of scope by the core spec: key management, wire
// formats and the feed itself are referenced only through the Source
// interface, never implemented here as anything but a demo REST client.
package oracle

import (
	"context"
	"fmt"
	"time"
)

// Source reads a mark price for an oracle-identified instrument. Epoch
// versions the reading so the slab's kill-band check and the Router's
// pre-check can confirm they observed the same snapshot of the feed rather
// than two readings taken moments apart (spec §4.4: "using the same oracle
// reading epoch as the Router pre-check").
type Source interface {
	Mark(ctx context.Context, oracleID string) (price float64, epoch int64, err error)
}

// reading is what the cache keeps per oracleID.
type reading struct {
	price   float64
	epoch   int64
	fetched time.Time
}

func (r reading) stale(maxAge time.Duration) bool {
	return time.Since(r.fetched) > maxAge
}

func fmtUnreachable(oracleID string, err error) error {
	return fmt.Errorf("oracle: mark(%s): %w", oracleID, err)
}
