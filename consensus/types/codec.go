package types

import (
	"fmt"

	"github.com/ava-labs/fedimint/utils/wrappers"
)

// Canonical encoding constants, matching spec §6: fixed-width little-endian
// integers, varint-prefixed byte strings, one-byte enum discriminants.

func packCoin(p *wrappers.Packer, c Coin) {
	p.PackLong(uint64(c.Denomination))
	p.PackFixedBytes(c.Serial[:])
	p.PackBytes(c.Signature)
	p.PackBytes(c.OwnerPubKey)
}

func unpackCoin(u *wrappers.Unpacker) Coin {
	var c Coin
	c.Denomination = Amount(u.UnpackLong())
	copy(c.Serial[:], u.UnpackFixedBytes(32))
	c.Signature = u.UnpackBytes()
	c.OwnerPubKey = u.UnpackBytes()
	return c
}

func packInput(p *wrappers.Packer, in Input) {
	p.PackByte(byte(in.Kind()))
	switch v := in.(type) {
	case *CoinsInput:
		p.PackVarInt(uint64(len(v.Coins)))
		for _, c := range v.Coins {
			packCoin(p, c)
		}
	case *PegInInput:
		p.PackFixedBytes(v.Outpoint.Txid[:])
		p.PackInt(v.Outpoint.Vout)
		p.PackLong(v.BlockHeight)
		p.PackBytes(v.MerkleProof)
		p.PackBytes(v.Tweak)
		p.PackBytes(v.TweakPubKey)
		p.PackLong(uint64(v.DepositValue))
	}
}

func unpackInput(u *wrappers.Unpacker) (Input, error) {
	kind := InputKind(u.UnpackByte())
	switch kind {
	case InputKindCoins:
		n := u.UnpackVarInt()
		coins := make([]Coin, n)
		for i := range coins {
			coins[i] = unpackCoin(u)
		}
		return &CoinsInput{Coins: coins}, nil
	case InputKindPegIn:
		var in PegInInput
		copy(in.Outpoint.Txid[:], u.UnpackFixedBytes(32))
		in.Outpoint.Vout = u.UnpackInt()
		in.BlockHeight = u.UnpackLong()
		in.MerkleProof = u.UnpackBytes()
		in.Tweak = u.UnpackBytes()
		in.TweakPubKey = u.UnpackBytes()
		in.DepositValue = Amount(u.UnpackLong())
		return &in, nil
	default:
		return nil, fmt.Errorf("unknown input kind %d", kind)
	}
}

func packOutput(p *wrappers.Packer, out Output) {
	p.PackByte(byte(out.Kind()))
	switch v := out.(type) {
	case *CoinsOutput:
		p.PackVarInt(uint64(len(v.Tokens)))
		for _, t := range v.Tokens {
			p.PackLong(uint64(t.Denomination))
			p.PackBytes(t.BlindedMessage)
		}
	case *PegOutOutput:
		p.PackBytes([]byte(v.Recipient))
		p.PackLong(uint64(v.Value))
	}
}

func unpackOutput(u *wrappers.Unpacker) (Output, error) {
	kind := OutputKind(u.UnpackByte())
	switch kind {
	case OutputKindCoins:
		n := u.UnpackVarInt()
		tokens := make([]BlindToken, n)
		for i := range tokens {
			tokens[i].Denomination = Amount(u.UnpackLong())
			tokens[i].BlindedMessage = u.UnpackBytes()
		}
		return &CoinsOutput{Tokens: tokens}, nil
	case OutputKindPegOut:
		recipient := string(u.UnpackBytes())
		value := Amount(u.UnpackLong())
		return &PegOutOutput{Recipient: recipient, Value: value}, nil
	default:
		return nil, fmt.Errorf("unknown output kind %d", kind)
	}
}

// EncodeTxBody produces the canonical, signature-excluding encoding of a
// transaction: the bytes both hashed for TxHash and signed over by
// ValidateSignature, per spec §6.
func EncodeTxBody(tx *Transaction) ([]byte, error) {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 256)}
	p.PackVarInt(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		packInput(p, in)
	}
	p.PackVarInt(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		packOutput(p, out)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// EncodeTx produces the full wire encoding of a transaction, including its
// Signature, for storage and gossip: the same body DecodeTx expects,
// followed by the varint-length-prefixed signature.
func EncodeTx(tx *Transaction) ([]byte, error) {
	body, err := EncodeTxBody(tx)
	if err != nil {
		return nil, err
	}
	p := &wrappers.Packer{Bytes: body}
	p.PackBytes(tx.Signature)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// DecodeTxBody reverses EncodeTxBody: inputs and outputs only, no
// signature. Used wherever a transaction's body was persisted separately
// from its signature (e.g. the status store's accepted-transaction
// namespace), so there is no trailing signature field to fail on.
func DecodeTxBody(b []byte) (*Transaction, error) {
	u := &wrappers.Unpacker{Bytes: b}

	nIn := u.UnpackVarInt()
	inputs := make([]Input, nIn)
	for i := range inputs {
		in, err := unpackInput(u)
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}

	nOut := u.UnpackVarInt()
	outputs := make([]Output, nOut)
	for i := range outputs {
		out, err := unpackOutput(u)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	if u.Err != nil {
		return nil, u.Err
	}

	return &Transaction{Inputs: inputs, Outputs: outputs}, nil
}

// DecodeTx reverses EncodeTx.
func DecodeTx(b []byte) (*Transaction, error) {
	u := &wrappers.Unpacker{Bytes: b}

	nIn := u.UnpackVarInt()
	inputs := make([]Input, nIn)
	for i := range inputs {
		in, err := unpackInput(u)
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}

	nOut := u.UnpackVarInt()
	outputs := make([]Output, nOut)
	for i := range outputs {
		out, err := unpackOutput(u)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}

	sig := u.UnpackBytes()
	if u.Err != nil {
		return nil, u.Err
	}

	return &Transaction{Inputs: inputs, Outputs: outputs, Signature: sig}, nil
}
