// Package wallet defines the custodial Bitcoin wallet subsystem contract
// exposed to the consensus engine (spec §4.E): peg-in/peg-out validation,
// atomic UTXO claim/queue bookkeeping, and the per-epoch wallet consensus
// round that turns queued withdrawals into a threshold-signed Bitcoin
// transaction.
package wallet

import (
	"context"
	"errors"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database"
	"github.com/ava-labs/fedimint/utils/rng"
)

var (
	ErrUnknownHeader             = errors.New("wallet: merkle proof references an untracked block header")
	ErrInsufficientConfirmations = errors.New("wallet: peg-in does not yet have enough confirmations")
	ErrTweakMismatch             = errors.New("wallet: peg-in tweak does not match the federation's deposit script")
	ErrAddressNetworkMismatch    = errors.New("wallet: peg-out address belongs to a different Bitcoin network")
	ErrDustOutput                = errors.New("wallet: peg-out amount is below the dust threshold")
	ErrFeeInfeasible             = errors.New("wallet: insufficient confirmed UTXO value to cover queued peg-outs and fees")
)

// BlockHeightVote is one peer's contribution to the wallet round's
// block-height agreement step.
type BlockHeightVote struct {
	Height uint64
}

func (BlockHeightVote) WalletPayloadKind() string { return "block_height_vote" }

// PegOutPartialSig is one peer's signature share over one input of the
// wallet's currently-assembling peg-out PSBT.
type PegOutPartialSig struct {
	BatchID    types.Amount // monotonically increasing peg-out batch sequence number
	InputIndex uint32
	PeerIndex  uint16
	Signature  []byte
}

func (PegOutPartialSig) WalletPayloadKind() string { return "pegout_partial_sig" }

// Proposal is what ProcessConsensusProposals hands back for the engine to
// include in the peer's own next-epoch consensus proposal.
type Proposal struct {
	Items []types.WalletPayload
}

// Wallet is the contract the consensus engine drives; a reference
// implementation lives in wallet/reference.
type Wallet interface {
	// ValidatePegIn verifies in's merkle proof against tracked headers,
	// checks confirmations >= finality_delay, and checks tweak consistency
	// against the federation's deposit script.
	ValidatePegIn(db database.Database, in *types.PegInInput) error

	// ValidatePegOut checks out's address matches the configured network,
	// clears the dust limit, and is fee-feasible given currently known
	// confirmed UTXO value.
	ValidatePegOut(db database.Database, out *types.PegOutOutput) error

	// ClaimPegIn atomically records in's outpoint as claimed.
	ClaimPegIn(tx *batch.BatchTx, in *types.PegInInput) error

	// QueuePegOut enqueues a pending withdrawal for a future peg-out batch.
	QueuePegOut(tx *batch.BatchTx, txHash [32]byte, outputIdx uint32, out *types.PegOutOutput) error

	// ProcessConsensusProposals runs one round of the wallet's own state
	// machine — block-height agreement, UTXO selection, one PSBT signing
	// step — against this epoch's wallet items, staging any resulting
	// writes into tx. It returns this peer's proposal for the next epoch
	// and, if this peer's partial signature for the in-progress PSBT
	// became ready this round, a signature item to inject into the
	// current epoch.
	ProcessConsensusProposals(db database.Database, tx *batch.BatchTx, walletItems []*types.WalletItem, gen rng.Generator) (Proposal, *types.WalletPayload, error)

	// SyncHeight is this peer's locally-observed Bitcoin chain tip height.
	SyncHeight() uint64

	// AwaitSyncHeight blocks until SyncHeight reaches height or ctx is
	// done, reproducing the original implementation's sync_wallet
	// accessor for callers (e.g. the submission API) that want to wait
	// for a peg-in to become claimable rather than polling SyncHeight.
	AwaitSyncHeight(ctx context.Context, height uint64) error
}
