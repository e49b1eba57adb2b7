package router

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// signer stands in for the host runtime's real capability ACL / key
// management system, named out of scope in spec §1: capability
// authorization ("only the named slab may present one, validated by the
// signer of the commit call", spec §4.7) is checked here with plain ECDSA
// over the capability's commitment hash, adapted from the teacher's
// exchange.Auth (crypto.Sign / crypto.HexToECDSA), dropping the EIP-712
// typed-data envelope since there is no wallet-facing UI to render it for —
// this signature is purely an internal Router↔slab authorization, not a
// user-facing transaction.
type signer struct {
	key *ecdsa.PrivateKey
}

func newSigner() (*signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &signer{key: key}, nil
}

// capabilityCommitment hashes the fields that must not change between mint
// and redemption: scope and amount ceiling, not the mutable Remaining/
// Burned fields.
func capabilityCommitment(ref CapRef, scopeUser string, scopeSlab SlabID, amountMax float64, expiryMs int64, nonce uint64) []byte {
	buf := []byte(ref)
	buf = append(buf, []byte(scopeUser)...)
	buf = append(buf, []byte(scopeSlab)...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(amountMax*1e6))
	buf = binary.BigEndian.AppendUint64(buf, uint64(expiryMs))
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return crypto.Keccak256(buf)
}

func (s *signer) sign(c *Capability) error {
	hash := capabilityCommitment(c.Ref, c.ScopeUser, c.ScopeSlab, c.AmountMax, c.ExpiryMs, c.Nonce)
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return err
	}
	c.commitSig = sig
	return nil
}

// verify checks that c.commitSig is a valid signature over c's current
// commitment by this signer's key, recomputed at presentation time so a
// slab cannot forge or replay a capability for a different scope.
func (s *signer) verify(c *Capability) bool {
	if len(c.commitSig) == 0 {
		return false
	}
	hash := capabilityCommitment(c.Ref, c.ScopeUser, c.ScopeSlab, c.AmountMax, c.ExpiryMs, c.Nonce)
	pub, err := crypto.SigToPub(hash, c.commitSig)
	if err != nil {
		return false
	}
	return pub.Equal(&s.key.PublicKey)
}
