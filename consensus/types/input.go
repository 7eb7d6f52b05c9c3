package types

import "github.com/ava-labs/fedimint/ids"

// InputKind discriminates the two Input variants from spec §3, encoded as
// the one-byte discriminant §6 requires for tagged enums.
type InputKind byte

const (
	InputKindCoins InputKind = iota
	InputKindPegIn
)

// Input is one of Coins (spent tokens) or PegIn (a proven Bitcoin deposit),
// per spec §3.
type Input interface {
	Kind() InputKind
	// Amount is the value this input contributes toward validate_funding.
	Amount() Amount
	// ConflictTokens returns the conflict-filter tokens this input claims:
	// one per spent serial number for Coins, the outpoint for PegIn. Two
	// transactions sharing any conflict token cannot both be accepted in
	// the same epoch (spec §4.B).
	ConflictTokens() []ids.ID
	// SpendingKeys returns the public keys whose aggregate signature must
	// authorize spending this input.
	SpendingKeys() [][]byte
}

// Coin is a single spent token: a denomination, a serial number unique to
// that denomination's issuance, the federation's blind signature over the
// serial (proving it was validly issued), and the key authorizing its
// spend.
type Coin struct {
	Denomination Denomination
	Serial       ids.ID
	Signature    []byte
	OwnerPubKey  []byte
}

// CoinsInput spends a multiset of Coins.
type CoinsInput struct {
	Coins []Coin
}

func (i *CoinsInput) Kind() InputKind { return InputKindCoins }

func (i *CoinsInput) Amount() Amount {
	var total Amount
	for _, c := range i.Coins {
		total += c.Denomination
	}
	return total
}

func (i *CoinsInput) ConflictTokens() []ids.ID {
	tokens := make([]ids.ID, len(i.Coins))
	for idx, c := range i.Coins {
		tokens[idx] = c.Serial
	}
	return tokens
}

func (i *CoinsInput) SpendingKeys() [][]byte {
	keys := make([][]byte, len(i.Coins))
	for idx, c := range i.Coins {
		keys[idx] = c.OwnerPubKey
	}
	return keys
}

// OutPoint identifies a Bitcoin transaction output, encoded with Bitcoin's
// consensus encoding per spec §6.
type OutPoint struct {
	Txid [32]byte
	Vout uint32
}

// ID derives the conflict-filter token for an outpoint: its own consensus
// encoding hashed into the module's ID space, so the conflict filter can
// treat outpoints and coin serials uniformly as ids.ID.
func (o OutPoint) ID() ids.ID {
	var packed [36]byte
	copy(packed[:32], o.Txid[:])
	packed[32] = byte(o.Vout)
	packed[33] = byte(o.Vout >> 8)
	packed[34] = byte(o.Vout >> 16)
	packed[35] = byte(o.Vout >> 24)
	return ids.ID(Hash32(packed[:]))
}

// PegInInput proves a confirmed Bitcoin deposit into the federation's
// peg-in script.
type PegInInput struct {
	Outpoint     OutPoint
	BlockHeight  uint64
	MerkleProof  []byte
	Tweak        []byte
	TweakPubKey  []byte
	DepositValue Amount
}

func (i *PegInInput) Kind() InputKind { return InputKindPegIn }
func (i *PegInInput) Amount() Amount  { return i.DepositValue }

func (i *PegInInput) ConflictTokens() []ids.ID {
	return []ids.ID{i.Outpoint.ID()}
}

func (i *PegInInput) SpendingKeys() [][]byte {
	return [][]byte{i.TweakPubKey}
}
