// Package router implements the Router side of Percolator: vault custody,
// per-(user, slab, mint) escrow, short-lived scoped debit capabilities, and
// the cross-slab portfolio margin and orchestration that coordinate
// multiple slab.Engine instances into one atomic multi-slab trade (spec
// §4.7–§4.9). Like internal/slab, the Router executor is single-threaded
// cooperative per account family; its exported methods take an internal
// mutex rather than relying on external serialization, since (unlike a
// slab, which is owned by exactly one goroutine) multiple orchestrator
// fan-outs may reach the same Router concurrently.
package router

import (
	"time"

	"percolator/pkg/types"
)

// SlabID identifies one slab engine within the registry.
type SlabID string

// CapRef is an opaque reference a slab uses to look up a minted capability
// when it calls back into safe_debit. The Router mints it; the slab never
// interprets its contents.
type CapRef string

// capTTLMaxMs is the Router-enforced ceiling on capability expiry (spec
// §4.7 "TTL_MAX = 120s", §6.4 "cap_ttl_max_secs").
const capTTLMaxMs = 120_000

// VaultKey identifies one custodied balance: one mint, held by the vault on
// behalf of all users collectively (spec §4.7 "Vault holds custody per
// mint").
type VaultKey struct {
	Mint types.Mint
}

// EscrowKey identifies one per-(user, slab, mint) escrow ledger entry (spec
// §4.7 "Escrow(u,s,m)").
type EscrowKey struct {
	User string
	Slab SlabID
	Mint types.Mint
}

// Escrow is the balance pledged toward one slab for one user in one mint.
// The Router increments it on pledge and decrements it only through
// safe_debit (spec §4.7).
type Escrow struct {
	Balance float64
	Nonce   uint64
}

// Capability is a non-transferable, short-lived scoped debit authorization
// (spec §4.7). Only the named slab may present it, and only up to
// Remaining, before ExpiryMs, and never after Burned.
type Capability struct {
	Ref        CapRef
	ScopeUser  string
	ScopeSlab  SlabID
	Mint       types.Mint
	AmountMax  float64
	Remaining  float64
	ExpiryMs   int64
	Nonce      uint64
	Burned     bool
	commitSig  []byte // ECDSA signature over the capability commitment (see signer.go)
}

// exposure is the signed contract quantity the Router is tracking for one
// (slab, instrument) pair, keyed into a shared oracle symbol for netting
// (spec §4.8).
type exposureKey struct {
	Slab          SlabID
	InstrumentIdx uint8
}

// RouteID identifies one cross-slab orchestrator run (spec §4.9). It is
// threaded through to every reserve/commit call the orchestrator issues so
// trade prints correlate back to one logical route.
type RouteID uint64

func nowMs() int64 { return time.Now().UnixMilli() }
