package slab

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"percolator/pkg/types"
)

// commitmentHash computes H(route_id ∥ iidx ∥ side ∥ qty ∥ limit_px ∥ salt)
// (spec §4.4's reveal check) with Keccak256, the teacher's hash primitive
// of choice for everything that must bind a committed value without
// exposing it up front (exchange/auth.go's EIP-712 signing uses the same
// library for the analogous proof-of-intent role).
func commitmentHash(routeID RouteID, iidx InstrumentIdx, side types.Side, qty Qty, limitPx Price, salt uint16) [32]byte {
	buf := make([]byte, 0, 8+1+1+8+8+2)
	buf = binary.BigEndian.AppendUint64(buf, uint64(routeID))
	buf = append(buf, byte(iidx))
	buf = append(buf, byte(side))
	buf = binary.BigEndian.AppendUint64(buf, uint64(qty))
	buf = binary.BigEndian.AppendUint64(buf, uint64(limitPx))
	buf = binary.BigEndian.AppendUint16(buf, salt)
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}
