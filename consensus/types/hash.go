package types

import "golang.org/x/crypto/blake2b"

// Hash32 is the collision-resistant digest used for tx_hash and conflict
// tokens derived from structured data (e.g. outpoints): hash the canonical
// encoding, never the live struct. blake2b-256 is the concrete primitive,
// chosen since no existing hash helper package covers this repo's needs.
func Hash32(b []byte) [32]byte {
	return blake2b.Sum256(b)
}
