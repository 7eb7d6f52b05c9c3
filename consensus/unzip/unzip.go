// Package unzip implements the single-pass partition of an epoch's raw
// consensus outcome into its three separately-processed streams
// (transactions, wallet contributions, mint partial signatures), per spec
// §4.C. Grounded on the demultiplexing shape of
// snow/engine/common/queue/prefixed_state.go, which separates one
// namespaced stream into typed sub-views over a shared backing store;
// here the "namespaces" are the ConsensusItem's Kind discriminant and the
// backing store is the in-memory outcome slice rather than a database.
package unzip

import "github.com/ava-labs/fedimint/consensus/types"

// Epoch is the unzipped view of one ConsensusOutcome: every peer's
// contribution for that epoch, partitioned by item kind while preserving
// each peer's internal ordering and the outer peer ordering supplied by
// the (out-of-scope) agreement layer.
type Epoch struct {
	Transactions []*types.Transaction
	Wallet       []*types.WalletItem
	PartialSigs  []types.MintPartialSigShare
}

// Unzip partitions a ConsensusOutcome — peers' ordered ConsensusItem lists
// — into an Epoch in a single pass. The outer ordering (peer index, then
// that peer's item order) is preserved within each resulting stream, which
// is what gives the conflict filter and the transaction-apply phase a
// deterministic, replayable ordering to work from.
func Unzip(outcome [][]types.ConsensusItem) Epoch {
	var epoch Epoch
	for _, peerItems := range outcome {
		for _, item := range peerItems {
			switch item.Kind {
			case types.ConsensusItemKindTransaction:
				epoch.Transactions = append(epoch.Transactions, item.Transaction)
			case types.ConsensusItemKindWallet:
				epoch.Wallet = append(epoch.Wallet, item.Wallet)
			case types.ConsensusItemKindMintPartialSig:
				epoch.PartialSigs = append(epoch.PartialSigs, *item.PartialSig)
			}
		}
	}
	return epoch
}
