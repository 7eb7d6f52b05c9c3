// Package sigscheme provides the reference types.SignatureScheme a
// Transaction's aggregate Signature is checked against: one independent
// ECDSA signature per spending key, concatenated in the same order as the
// keys. Grounded on the same decred/dcrd/dcrec/secp256k1/v3 stack the mint
// reference implementation uses for its threshold scheme, applied here to
// ordinary single-key ECDSA rather than Shamir-shared scalars.
//
// This is a simplification of a true key-aggregated signature (MuSig2,
// BIP340 aggregate Schnorr): verifying N independent signatures proves N
// distinct keys each authorized the same message without requiring an
// interactive aggregation round among the signers, at the cost of a larger
// Signature blob that grows with the number of spending keys.
package sigscheme

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v3/ecdsa"

	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/utils/wrappers"
)

// ECDSAConcat implements types.SignatureScheme.
type ECDSAConcat struct{}

var _ types.SignatureScheme = ECDSAConcat{}

// Verify checks that sig unpacks into exactly len(keys) DER-encoded ECDSA
// signatures, each valid for the corresponding key over message's digest,
// in order.
func (ECDSAConcat) Verify(keys [][]byte, message []byte, sig []byte) bool {
	if len(keys) == 0 {
		return false
	}

	digest := types.Hash32(message)
	u := &wrappers.Unpacker{Bytes: sig}
	for _, keyBytes := range keys {
		pub, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return false
		}
		sigBytes := u.UnpackBytes()
		if u.Err != nil {
			return false
		}
		parsed, err := ecdsa.ParseDERSignature(sigBytes)
		if err != nil {
			return false
		}
		if !parsed.Verify(digest[:], pub) {
			return false
		}
	}
	return u.Done()
}

// Sign produces a Signature blob Verify accepts for the given keys, in
// order, over message's digest. Used by tests to build validly signed
// transactions.
func Sign(privKeys []*secp256k1.PrivateKey, message []byte) ([]byte, error) {
	digest := types.Hash32(message)
	p := &wrappers.Packer{Bytes: make([]byte, 0, 72*len(privKeys))}
	for _, priv := range privKeys {
		sig := ecdsa.Sign(priv, digest[:])
		p.PackBytes(sig.Serialize())
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}
