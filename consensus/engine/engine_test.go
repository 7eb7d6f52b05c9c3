package engine

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/consensus/sigscheme"
	"github.com/ava-labs/fedimint/consensus/status"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database/memdb"
	"github.com/ava-labs/fedimint/ids"
	"github.com/ava-labs/fedimint/metrics"
	"github.com/ava-labs/fedimint/mint"
	"github.com/ava-labs/fedimint/mint/reference"
	"github.com/ava-labs/fedimint/utils/logging"
	"github.com/ava-labs/fedimint/utils/rng"
	"github.com/ava-labs/fedimint/wallet"
	walletref "github.com/ava-labs/fedimint/wallet/reference"
)

func newTestEngine(t *testing.T) (*Engine, []*reference.Mint) {
	t.Helper()

	db, err := memdb.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mints, err := reference.GenerateFederation(4, 2, []types.Denomination{10})
	require.NoError(t, err)

	walletPrivs := make([]*btcec.PrivateKey, 4)
	walletPubs := make([]*btcec.PublicKey, 4)
	for i := range walletPrivs {
		b := make([]byte, 32)
		b[0] = byte(i + 1)
		priv, _ := btcec.PrivKeyFromBytes(b)
		walletPrivs[i] = priv
		walletPubs[i] = priv.PubKey()
	}
	w, err := walletref.New(walletref.Config{
		NetParams:       &chaincfg.TestNet3Params,
		FinalityDelay:   6,
		DustLimitSats:   546,
		FeeRatePerVByte: 10,
		PeerIndex:       0,
		PeerPubKeys:     walletPubs,
		PrivKey:         walletPrivs[0],
		BatchSize:       10,
	}, 3)
	require.NoError(t, err)

	eng := New(db, mints[0], w, sigscheme.ECDSAConcat{}, Config{
		Fees: types.FeeConsensus{},
	}, rng.NewFixedGenerator(1), logging.NewNop(), metrics.NewNop())
	return eng, mints
}

// signedCoinsTx builds a balanced transaction spending one valid Coin
// (issued by combining shares across the federation) for an equally-valued
// CoinsOutput, signed by the coin's owner key.
func signedCoinsTx(t *testing.T, mints []*reference.Mint) *types.Transaction {
	t.Helper()

	ownerPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	ownerPub := ownerPriv.PubKey().SerializeCompressed()

	var serialBytes [32]byte
	serialBytes[0] = 0x55
	serialID := ids.ID(serialBytes)

	signReq := mint.SignRequest{Denomination: 10, BlindedMessage: serialBytes[:]}

	shares := make([]mint.PartialSigResponse, 0, len(mints))
	for _, m := range mints {
		s, err := m.Issue(signReq)
		require.NoError(t, err)
		shares = append(shares, s)
	}
	combined, _, combineErr := mints[0].Combine(signReq, shares)
	require.Nil(t, combineErr)

	tx := &types.Transaction{
		Inputs: []types.Input{
			&types.CoinsInput{Coins: []types.Coin{
				{Denomination: 10, Serial: serialID, Signature: combined.Bytes, OwnerPubKey: ownerPub},
			}},
		},
		Outputs: []types.Output{
			&types.CoinsOutput{Tokens: []types.BlindToken{
				{Denomination: 10, BlindedMessage: []byte("blinded-recipient-message")},
			}},
		},
	}

	body, err := types.EncodeTxBody(tx)
	require.NoError(t, err)
	sig, err := sigscheme.Sign([]*secp256k1.PrivateKey{ownerPriv}, body)
	require.NoError(t, err)
	tx.Signature = sig
	return tx
}

func walletProposalWith(height uint64) wallet.Proposal {
	return wallet.Proposal{Items: []types.WalletPayload{wallet.BlockHeightVote{Height: height}}}
}

func TestSubmitTransactionHappyPath(t *testing.T) {
	eng, mints := newTestEngine(t)
	tx := signedCoinsTx(t, mints)

	require.NoError(t, eng.SubmitTransaction(tx))

	hash, err := tx.TxHash()
	require.NoError(t, err)
	pending, err := status.IsPending(eng.db, hash)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestSubmitTransactionIsIdempotent(t *testing.T) {
	eng, mints := newTestEngine(t)
	tx := signedCoinsTx(t, mints)

	require.NoError(t, eng.SubmitTransaction(tx))
	require.NoError(t, eng.SubmitTransaction(tx), "resubmitting an already-pending transaction must succeed as a no-op")
}

func TestSubmitTransactionRejectsUnbalancedFunding(t *testing.T) {
	eng, _ := newTestEngine(t)
	tx := &types.Transaction{
		Inputs: []types.Input{
			&types.CoinsInput{Coins: []types.Coin{{Denomination: 10}}},
		},
		Outputs: []types.Output{
			&types.CoinsOutput{Tokens: []types.BlindToken{{Denomination: 20}}},
		},
	}
	err := eng.SubmitTransaction(tx)
	assert.Error(t, err)
}

func TestGetConsensusProposalIncludesSubmittedTransactionAndWalletItems(t *testing.T) {
	eng, mints := newTestEngine(t)
	tx := signedCoinsTx(t, mints)
	require.NoError(t, eng.SubmitTransaction(tx))

	items, err := eng.GetConsensusProposal(walletProposalWith(101))
	require.NoError(t, err)
	require.Len(t, items, 2)

	kinds := map[types.ConsensusItemKind]bool{}
	for _, it := range items {
		kinds[it.Kind] = true
	}
	assert.True(t, kinds[types.ConsensusItemKindTransaction])
	assert.True(t, kinds[types.ConsensusItemKindWallet])
}

func TestProcessConsensusOutcomeAcceptsSubmittedTransaction(t *testing.T) {
	eng, mints := newTestEngine(t)
	tx := signedCoinsTx(t, mints)
	require.NoError(t, eng.SubmitTransaction(tx))

	hash, err := tx.TxHash()
	require.NoError(t, err)

	outcome := [][]types.ConsensusItem{{types.NewTransactionItem(tx)}}
	_, err = eng.ProcessConsensusOutcome(outcome)
	require.NoError(t, err)

	st, found, err := status.GetTransactionStatus(eng.db, [32]byte(hash))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, status.StateAccepted, st.State)

	pending, err := status.IsPending(eng.db, hash)
	require.NoError(t, err)
	assert.False(t, pending, "an accepted transaction must be dequeued")
}

func TestProcessConsensusOutcomeRejectsConflictingDuplicateSpend(t *testing.T) {
	eng, mints := newTestEngine(t)
	tx := signedCoinsTx(t, mints)
	require.NoError(t, eng.SubmitTransaction(tx))

	// Two peers proposing the same transaction in the same epoch must still
	// only be applied once.
	outcome := [][]types.ConsensusItem{
		{types.NewTransactionItem(tx)},
		{types.NewTransactionItem(tx)},
	}
	_, err := eng.ProcessConsensusOutcome(outcome)
	require.NoError(t, err)

	hash, err := tx.TxHash()
	require.NoError(t, err)
	st, found, err := status.GetTransactionStatus(eng.db, [32]byte(hash))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, status.StateAccepted, st.State)
}
