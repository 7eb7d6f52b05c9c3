package types

// ConsensusItemKind discriminates the contributions a peer can place in its
// consensus proposal, per spec §3 and §4.C.
type ConsensusItemKind byte

const (
	ConsensusItemKindTransaction ConsensusItemKind = iota
	ConsensusItemKindWallet
	ConsensusItemKindMintPartialSig
)

// MintPartialSigShare is one peer's blind partial signature over a single
// requested BlindToken from some Transaction's CoinsOutput, keyed by the
// owning transaction hash and the token's index within that output.
type MintPartialSigShare struct {
	TxHash     [32]byte
	OutputIdx  uint32
	TokenIdx   uint32
	PeerIndex  uint16
	PartialSig []byte
}

// WalletItem is one peer's wallet-round contribution: a peg-out-signing
// partial signature, a block-height vote, or a UTXO state announcement.
// The reference wallet only needs the two documented in spec §4/§5; further
// variants can be added to WalletPayload without touching the unzipper.
type WalletItem struct {
	Payload WalletPayload
}

// WalletPayload is satisfied by concrete wallet consensus payloads (peg-out
// PSBT partial signatures, block height votes). Kept as an opaque interface
// here so consensus/types does not need to import the wallet package; the
// marker method is exported so the wallet package (outside this one) can
// implement it.
type WalletPayload interface {
	WalletPayloadKind() string
}

// ConsensusItem is the tagged union every peer's consensus proposal is made
// of, unzipped per spec §4.C into separate transaction/wallet/mint-partial-
// sig streams before processing.
type ConsensusItem struct {
	Kind        ConsensusItemKind
	Transaction *Transaction
	Wallet      *WalletItem
	PartialSig  *MintPartialSigShare
}

func NewTransactionItem(tx *Transaction) ConsensusItem {
	return ConsensusItem{Kind: ConsensusItemKindTransaction, Transaction: tx}
}

func NewWalletItem(payload WalletPayload) ConsensusItem {
	return ConsensusItem{Kind: ConsensusItemKindWallet, Wallet: &WalletItem{Payload: payload}}
}

func NewPartialSigItem(share MintPartialSigShare) ConsensusItem {
	return ConsensusItem{Kind: ConsensusItemKindMintPartialSig, PartialSig: &share}
}
