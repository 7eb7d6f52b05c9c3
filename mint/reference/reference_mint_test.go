package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database/memdb"
	"github.com/ava-labs/fedimint/ids"
	"github.com/ava-labs/fedimint/mint"
)

func newTestDB(t *testing.T) *memdb.Database {
	t.Helper()
	db, err := memdb.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGenerateFederationRejectsBadThreshold(t *testing.T) {
	_, err := GenerateFederation(4, 4, nil)
	assert.Error(t, err)
	_, err = GenerateFederation(4, -1, nil)
	assert.Error(t, err)
}

func TestValidateTiers(t *testing.T) {
	mints, err := GenerateFederation(4, 2, []types.Denomination{1, 5, 10})
	require.NoError(t, err)
	m := mints[0]

	require.NoError(t, m.ValidateTiers([]types.BlindToken{{Denomination: 5}}))
	assert.ErrorIs(t, m.ValidateTiers([]types.BlindToken{{Denomination: 3}}), mint.ErrUnknownTier)
}

func issueAll(t *testing.T, mints []*Mint, req mint.SignRequest) []mint.PartialSigResponse {
	t.Helper()
	shares := make([]mint.PartialSigResponse, 0, len(mints))
	for _, m := range mints {
		s, err := m.Issue(req)
		require.NoError(t, err)
		shares = append(shares, s)
	}
	return shares
}

func TestIssueCombineRoundTrip(t *testing.T) {
	n, threshold := 4, 2
	mints, err := GenerateFederation(n, threshold, []types.Denomination{10})
	require.NoError(t, err)

	req := mint.SignRequest{Denomination: 10, BlindedMessage: []byte("blinded-message")}
	shares := issueAll(t, mints, req)

	// threshold+1 = 3 shares is enough to combine.
	combined, fault, combineErr := mints[0].Combine(req, shares[:threshold+1])
	require.Nil(t, combineErr)
	assert.Empty(t, fault.FaultyPeers)
	require.NotNil(t, combined)
	assert.NotEmpty(t, combined.Bytes)
}

func TestCombineFailsWithTooFewShares(t *testing.T) {
	n, threshold := 4, 2
	mints, err := GenerateFederation(n, threshold, []types.Denomination{10})
	require.NoError(t, err)

	req := mint.SignRequest{Denomination: 10, BlindedMessage: []byte("blinded-message")}
	shares := issueAll(t, mints[:threshold], req)

	combined, _, combineErr := mints[0].Combine(req, shares)
	assert.Nil(t, combined)
	require.NotNil(t, combineErr)
}

func TestCombineExcludesForgedShare(t *testing.T) {
	n, threshold := 4, 2
	mints, err := GenerateFederation(n, threshold, []types.Denomination{10})
	require.NoError(t, err)

	req := mint.SignRequest{Denomination: 10, BlindedMessage: []byte("blinded-message")}
	shares := issueAll(t, mints, req)
	shares[1].Share = []byte("not-a-real-share-bytes-garbage00")

	combined, fault, combineErr := mints[0].Combine(req, shares)
	require.Nil(t, combineErr)
	require.Len(t, fault.FaultyPeers, 1)
	require.NotNil(t, combined)
}

func TestCombineReportsUnknownPeer(t *testing.T) {
	n, threshold := 4, 2
	mints, err := GenerateFederation(n, threshold, []types.Denomination{10})
	require.NoError(t, err)

	req := mint.SignRequest{Denomination: 10, BlindedMessage: []byte("blinded-message")}
	shares := issueAll(t, mints, req)
	shares[0].PeerID = mint.PeerID(99)

	_, fault, _ := mints[0].Combine(req, shares)
	assert.Contains(t, fault.FaultyPeers, mint.PeerID(99))
}

func TestValidateAndSpendCoin(t *testing.T) {
	db := newTestDB(t)
	n, threshold := 4, 2
	mints, err := GenerateFederation(n, threshold, []types.Denomination{10})
	require.NoError(t, err)

	serial := ids.ID{0x11}
	req := mint.SignRequest{Denomination: 10, BlindedMessage: serial[:]}

	shares := issueAll(t, mints, req)
	combined, _, combineErr := mints[0].Combine(req, shares)
	require.Nil(t, combineErr)

	coin := types.Coin{Denomination: 10, Serial: serial, Signature: combined.Bytes}

	require.NoError(t, mints[0].Validate(db, []types.Coin{coin}))

	b := batch.New()
	tx := b.Transaction()
	require.NoError(t, mints[0].Spend(db, tx, []types.Coin{coin}))
	tx.Commit()
	require.NoError(t, batch.Apply(db, b))

	assert.ErrorIs(t, mints[0].Validate(db, []types.Coin{coin}), mint.ErrAlreadySpent)

	b2 := batch.New()
	tx2 := b2.Transaction()
	assert.ErrorIs(t, mints[0].Spend(db, tx2, []types.Coin{coin}), mint.ErrAlreadySpent)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	mints, err := GenerateFederation(4, 2, []types.Denomination{10})
	require.NoError(t, err)

	coin := types.Coin{Denomination: 10, Serial: ids.ID{0x22}, Signature: []byte("bogus-signature-bytes-of-wrong-value")}
	assert.ErrorIs(t, mints[0].Validate(db, []types.Coin{coin}), mint.ErrUnknownSignature)
}
