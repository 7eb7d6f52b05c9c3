package reference

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database/memdb"
	"github.com/ava-labs/fedimint/wallet"
)

func newTestDB(t *testing.T) *memdb.Database {
	t.Helper()
	db, err := memdb.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func genPeerKeys(t *testing.T, n int) []*btcec.PrivateKey {
	t.Helper()
	privs := make([]*btcec.PrivateKey, n)
	for i := range privs {
		b := make([]byte, 32)
		b[0] = byte(i + 1)
		priv, _ := btcec.PrivKeyFromBytes(b)
		privs[i] = priv
	}
	return privs
}

func newTestWallet(t *testing.T, peerIdx uint16, privs []*btcec.PrivateKey, nRequired int, batchSize int) *Wallet {
	t.Helper()
	pubKeys := make([]*btcec.PublicKey, len(privs))
	for i, p := range privs {
		pubKeys[i] = p.PubKey()
	}
	w, err := New(Config{
		NetParams:       &chaincfg.TestNet3Params,
		FinalityDelay:   6,
		DustLimitSats:   546,
		FeeRatePerVByte: 10,
		PeerIndex:       peerIdx,
		PeerPubKeys:     pubKeys,
		PrivKey:         privs[peerIdx],
		BatchSize:       batchSize,
	}, nRequired)
	require.NoError(t, err)
	return w
}

func TestNewRejectsInvalidThreshold(t *testing.T) {
	privs := genPeerKeys(t, 3)
	pubKeys := []*btcec.PublicKey{privs[0].PubKey(), privs[1].PubKey(), privs[2].PubKey()}
	_, err := New(Config{PeerPubKeys: pubKeys}, 0)
	assert.Error(t, err)
	_, err = New(Config{PeerPubKeys: pubKeys}, 4)
	assert.Error(t, err)
}

func TestValidatePegInUnknownHeader(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	in := &types.PegInInput{Outpoint: types.OutPoint{Txid: [32]byte{1}}, BlockHeight: 100}
	assert.ErrorIs(t, w.ValidatePegIn(db, in), wallet.ErrUnknownHeader)
}

func TestValidatePegInSucceedsWithSingleLeafProof(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	txid := [32]byte{7, 7, 7}
	leaf := types.Hash32(txid[:])

	b := batch.New()
	tx := b.Transaction()
	w.recordHeader(100, leaf, tx)
	tx.Commit()
	require.NoError(t, batch.Apply(db, b))

	// Advance the chain tip far enough past the peg-in height to clear the
	// configured finality delay.
	w.mu.Lock()
	w.syncHeight = 110
	w.mu.Unlock()

	expectedTweak := types.Hash32(append(append([]byte{}, w.multisigScript...), []byte("tweakpub")...))
	in := &types.PegInInput{
		Outpoint:    types.OutPoint{Txid: txid},
		BlockHeight: 100,
		MerkleProof: nil, // leaf == root, empty proof path
		Tweak:       expectedTweak[:],
		TweakPubKey: []byte("tweakpub"),
	}
	assert.NoError(t, w.ValidatePegIn(db, in))
}

func TestValidatePegInRejectsTweakMismatch(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	txid := [32]byte{7, 7, 7}
	leaf := types.Hash32(txid[:])
	b := batch.New()
	tx := b.Transaction()
	w.recordHeader(100, leaf, tx)
	tx.Commit()
	require.NoError(t, batch.Apply(db, b))

	w.mu.Lock()
	w.syncHeight = 110
	w.mu.Unlock()

	in := &types.PegInInput{
		Outpoint:    types.OutPoint{Txid: txid},
		BlockHeight: 100,
		Tweak:       []byte("wrong-tweak-bytes-of-incorrect-len"),
		TweakPubKey: []byte("tweakpub"),
	}
	assert.ErrorIs(t, w.ValidatePegIn(db, in), wallet.ErrTweakMismatch)
}

func TestValidatePegInRejectsInsufficientConfirmations(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	txid := [32]byte{7, 7, 7}
	leaf := types.Hash32(txid[:])
	b := batch.New()
	tx := b.Transaction()
	w.recordHeader(100, leaf, tx)
	tx.Commit()
	require.NoError(t, batch.Apply(db, b))

	w.mu.Lock()
	w.syncHeight = 102 // only 2 confirmations, delay requires 6
	w.mu.Unlock()

	in := &types.PegInInput{Outpoint: types.OutPoint{Txid: txid}, BlockHeight: 100}
	assert.ErrorIs(t, w.ValidatePegIn(db, in), wallet.ErrInsufficientConfirmations)
}

func TestValidatePegOutDustAndNetwork(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	err := w.ValidatePegOut(db, &types.PegOutOutput{Recipient: "not-a-valid-address", Value: 100_000})
	assert.ErrorIs(t, err, wallet.ErrAddressNetworkMismatch)

	addr := testnetAddress(t)
	err2 := w.ValidatePegOut(db, &types.PegOutOutput{Recipient: addr, Value: types.Amount(1000 * types.MilliSatPerSat)})
	assert.NoError(t, err2)

	err3 := w.ValidatePegOut(db, &types.PegOutOutput{Recipient: addr, Value: types.Amount(1)})
	assert.ErrorIs(t, err3, wallet.ErrDustOutput)
}

func testnetAddress(t *testing.T) string {
	t.Helper()
	// A well-known valid testnet3 P2WPKH address.
	return "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
}

func TestClaimPegInRejectsDoubleClaim(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	in := &types.PegInInput{Outpoint: types.OutPoint{Txid: [32]byte{9}, Vout: 0}}

	b1 := batch.New()
	tx1 := b1.Transaction()
	require.NoError(t, w.ClaimPegIn(tx1, in))
	tx1.Commit()
	require.NoError(t, batch.Apply(db, b1))

	b2 := batch.New()
	tx2 := b2.Transaction()
	require.NoError(t, w.ClaimPegIn(tx2, in))
	tx2.Commit()
	assert.ErrorIs(t, batch.Apply(db, b2), batch.ErrKeyExists)
}

func TestProcessConsensusProposalsTracksBlockHeightVote(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	items := []*types.WalletItem{
		{Payload: wallet.BlockHeightVote{Height: 100}},
		{Payload: wallet.BlockHeightVote{Height: 104}},
		{Payload: wallet.BlockHeightVote{Height: 102}},
	}

	b := batch.New()
	tx := b.Transaction()
	proposal, sigItem, err := w.ProcessConsensusProposals(db, tx, items, nil)
	require.NoError(t, err)
	assert.Nil(t, sigItem, "no peg-out batch is in progress yet")
	require.Len(t, proposal.Items, 1)
	vote, ok := proposal.Items[0].(wallet.BlockHeightVote)
	require.True(t, ok)
	assert.Equal(t, uint64(102), vote.Height, "median of {100,104,102}")
	assert.Equal(t, uint64(102), w.SyncHeight())
}

func TestProcessConsensusProposalsAssemblesBatchOnceQueueFull(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 2)

	addr := testnetAddress(t)
	b1 := batch.New()
	tx1 := b1.Transaction()
	require.NoError(t, w.QueuePegOut(tx1, [32]byte{1}, 0, &types.PegOutOutput{Recipient: addr, Value: types.Amount(100 * types.MilliSatPerSat)}))
	require.NoError(t, w.QueuePegOut(tx1, [32]byte{2}, 0, &types.PegOutOutput{Recipient: addr, Value: types.Amount(200 * types.MilliSatPerSat)}))
	tx1.Commit()
	require.NoError(t, batch.Apply(db, b1))

	b2 := batch.New()
	tx2 := b2.Transaction()
	_, sigItem, err := w.ProcessConsensusProposals(db, tx2, nil, nil)
	require.NoError(t, err)
	tx2.Commit()
	require.NoError(t, batch.Apply(db, b2))

	require.NotNil(t, w.batch, "queue reached BatchSize, a batch must have been assembled")
	require.NotNil(t, sigItem, "this peer holds a private key so it must produce its own signature share immediately")
	sig, ok := (*sigItem).(wallet.PegOutPartialSig)
	require.True(t, ok)
	assert.Equal(t, uint16(0), sig.PeerIndex)
}

func TestAwaitSyncHeightUnblocksOnVote(t *testing.T) {
	db := newTestDB(t)
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.AwaitSyncHeight(ctx, 50) }()

	time.Sleep(20 * time.Millisecond)
	b := batch.New()
	tx := b.Transaction()
	_, _, err := w.ProcessConsensusProposals(db, tx, []*types.WalletItem{{Payload: wallet.BlockHeightVote{Height: 50}}}, nil)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitSyncHeight did not unblock after reaching the target height")
	}
}

func TestAwaitSyncHeightRespectsContextCancellation(t *testing.T) {
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := w.AwaitSyncHeight(ctx, 1000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitSyncHeightCancellationDropsWaiter(t *testing.T) {
	privs := genPeerKeys(t, 4)
	w := newTestWallet(t, 0, privs, 3, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.AwaitSyncHeight(ctx, 1000) }()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.waiters) == 1
	}, time.Second, time.Millisecond, "AwaitSyncHeight must register its waiter before blocking")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("AwaitSyncHeight did not return after its own context was canceled")
	}

	w.mu.Lock()
	waiters := len(w.waiters)
	w.mu.Unlock()
	assert.Equal(t, 0, waiters, "canceled waiter must be removed, not left for an unrelated future height update to wake")
}
