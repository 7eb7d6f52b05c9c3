package engine

import (
	"fmt"

	"github.com/ava-labs/fedimint/consensus/status"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/ids"
	"github.com/ava-labs/fedimint/utils/wrappers"
	"github.com/ava-labs/fedimint/wallet"
)

// Pending-queue item kinds. The queue's namespace is shared by every kind
// the engine persists, so each stored value carries a one-byte discriminant
// ahead of its own encoding.
const (
	pendingKindTransaction byte = iota
	pendingKindWallet
	pendingKindMintPartialSig
)

// Wallet payload discriminants, used only within this package's own
// pending-item encoding — distinct from types.WalletPayloadKind(), which
// identifies the payload to callers outside this package.
const (
	walletPayloadBlockHeightVote byte = iota
	walletPayloadPegOutPartialSig
)

func encodePendingTransaction(tx *types.Transaction) ([]byte, error) {
	body, err := types.EncodeTx(tx)
	if err != nil {
		return nil, err
	}
	return append([]byte{pendingKindTransaction}, body...), nil
}

func encodePendingWalletPayload(payload types.WalletPayload) ([]byte, error) {
	body, err := encodeWalletPayload(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte{pendingKindWallet}, body...), nil
}

func encodePendingMintPartialSig(share types.MintPartialSigShare) []byte {
	body := encodeMintPartialSig(share)
	return append([]byte{pendingKindMintPartialSig}, body...)
}

// decodePendingItem reverses whichever of the above produced entry.Value.
func decodePendingItem(entry status.PendingEntry) (types.ConsensusItem, error) {
	if len(entry.Value) == 0 {
		return types.ConsensusItem{}, fmt.Errorf("engine: empty pending item %s", entry.ID)
	}
	body := entry.Value[1:]
	switch entry.Value[0] {
	case pendingKindTransaction:
		tx, err := types.DecodeTx(body)
		if err != nil {
			return types.ConsensusItem{}, err
		}
		return types.NewTransactionItem(tx), nil
	case pendingKindWallet:
		payload, err := decodeWalletPayload(body)
		if err != nil {
			return types.ConsensusItem{}, err
		}
		return types.NewWalletItem(payload), nil
	case pendingKindMintPartialSig:
		share, err := decodeMintPartialSig(body)
		if err != nil {
			return types.ConsensusItem{}, err
		}
		return types.NewPartialSigItem(share), nil
	default:
		return types.ConsensusItem{}, fmt.Errorf("engine: unknown pending item kind %d for %s", entry.Value[0], entry.ID)
	}
}

func encodeWalletPayload(payload types.WalletPayload) ([]byte, error) {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 32)}
	switch v := payload.(type) {
	case wallet.BlockHeightVote:
		p.PackByte(walletPayloadBlockHeightVote)
		p.PackLong(v.Height)
	case wallet.PegOutPartialSig:
		p.PackByte(walletPayloadPegOutPartialSig)
		p.PackLong(uint64(v.BatchID))
		p.PackInt(v.InputIndex)
		p.PackByte(byte(v.PeerIndex))
		p.PackByte(byte(v.PeerIndex >> 8))
		p.PackBytes(v.Signature)
	default:
		return nil, fmt.Errorf("engine: unknown wallet payload kind %q", payload.WalletPayloadKind())
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}

func decodeWalletPayload(b []byte) (types.WalletPayload, error) {
	u := &wrappers.Unpacker{Bytes: b}
	switch u.UnpackByte() {
	case walletPayloadBlockHeightVote:
		height := u.UnpackLong()
		if u.Err != nil {
			return nil, u.Err
		}
		return wallet.BlockHeightVote{Height: height}, nil
	case walletPayloadPegOutPartialSig:
		batchID := types.Amount(u.UnpackLong())
		inputIdx := u.UnpackInt()
		peerLo := u.UnpackByte()
		peerHi := u.UnpackByte()
		sig := u.UnpackBytes()
		if u.Err != nil {
			return nil, u.Err
		}
		return wallet.PegOutPartialSig{
			BatchID:    batchID,
			InputIndex: inputIdx,
			PeerIndex:  uint16(peerLo) | uint16(peerHi)<<8,
			Signature:  sig,
		}, nil
	default:
		return nil, u.Err
	}
}

func encodeMintPartialSig(share types.MintPartialSigShare) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 32+4+4+2+len(share.PartialSig))}
	p.PackFixedBytes(share.TxHash[:])
	p.PackInt(share.OutputIdx)
	p.PackInt(share.TokenIdx)
	p.PackByte(byte(share.PeerIndex))
	p.PackByte(byte(share.PeerIndex >> 8))
	p.PackBytes(share.PartialSig)
	return p.Bytes
}

func decodeMintPartialSig(b []byte) (types.MintPartialSigShare, error) {
	u := &wrappers.Unpacker{Bytes: b}
	var share types.MintPartialSigShare
	copy(share.TxHash[:], u.UnpackFixedBytes(32))
	share.OutputIdx = u.UnpackInt()
	share.TokenIdx = u.UnpackInt()
	peerLo := u.UnpackByte()
	peerHi := u.UnpackByte()
	share.PartialSig = u.UnpackBytes()
	if u.Err != nil {
		return types.MintPartialSigShare{}, u.Err
	}
	share.PeerIndex = uint16(peerLo) | uint16(peerHi)<<8
	return share, nil
}

// pendingMintPartialSigID derives the pending-queue item ID for one peer's
// share of one signing request — a hash of its identifying fields, not its
// value, so the same share proposed again hashes to the same ID and the
// queue's insert-new semantics correctly detect the repeat.
func pendingMintPartialSigID(txHash [32]byte, outputIdx, tokenIdx uint32, peerIndex uint16) ids.ID {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 32+4+4+2)}
	p.PackFixedBytes(txHash[:])
	p.PackInt(outputIdx)
	p.PackInt(tokenIdx)
	p.PackByte(byte(peerIndex))
	p.PackByte(byte(peerIndex >> 8))
	return ids.ID(types.Hash32(p.Bytes))
}

// requestIndex flattens a (output_index, token_index) pair into the single
// uint32 index component of a signing request's identity. A CoinsOutput may
// name several BlindTokens, each requiring its own independent partial
// signature collection, while the on-the-wire PartialSignatureKey from spec
// §3 only names a single index — this flattening is this module's way of
// reconciling the two: the low 16 bits are the token index within the
// output's token multiset, the high bits are the output's position in the
// transaction, so request_index still uniquely and deterministically
// identifies one signing request.
func requestIndex(outputIdx, tokenIdx uint32) uint32 {
	return (outputIdx << 16) | (tokenIdx & 0xffff)
}

func splitRequestIndex(idx uint32) (outputIdx, tokenIdx uint32) {
	return idx >> 16, idx & 0xffff
}
