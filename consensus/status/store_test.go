package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/database/memdb"
	"github.com/ava-labs/fedimint/ids"
)

func newTestDB(t *testing.T) *memdb.Database {
	t.Helper()
	db, err := memdb.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func commit(t *testing.T, db *memdb.Database, stage func(*batch.BatchTx)) {
	t.Helper()
	b := batch.New()
	tx := b.Transaction()
	stage(tx)
	tx.Commit()
	require.NoError(t, batch.Apply(db, b))
}

func TestTransactionStatusRoundTrip(t *testing.T) {
	db := newTestDB(t)
	var hash [32]byte
	hash[0] = 0xAB

	_, found, err := GetTransactionStatus(db, hash)
	require.NoError(t, err)
	assert.False(t, found)

	commit(t, db, func(tx *batch.BatchTx) {
		SetTransactionStatus(tx, hash, TransactionStatus{State: StateError, Message: "boom"})
	})

	st, found, err := GetTransactionStatus(db, hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, "boom", st.Message)
	assert.Equal(t, "error", st.State.String())
}

func TestOutputOutcomeRoundTrip(t *testing.T) {
	db := newTestDB(t)
	var hash [32]byte
	hash[1] = 0x42

	commit(t, db, func(tx *batch.BatchTx) {
		SetOutputOutcome(tx, hash, 3, OutputOutcome{Kind: OutcomeCoins, Signature: []byte("sig")})
	})

	o, found, err := GetOutputOutcome(db, hash, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, OutcomeCoins, o.Kind)
	assert.Equal(t, []byte("sig"), o.Signature)
	assert.Equal(t, "coins", o.Kind.String())

	_, found, err = GetOutputOutcome(db, hash, 4)
	require.NoError(t, err)
	assert.False(t, found, "a different output index must not collide")
}

func TestTransactionBodyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	var hash [32]byte
	hash[2] = 7

	_, found, err := GetTransactionBody(db, hash)
	require.NoError(t, err)
	assert.False(t, found)

	body := []byte("encoded-tx-body")
	commit(t, db, func(tx *batch.BatchTx) {
		SetTransactionBody(tx, hash, body)
	})

	got, found, err := GetTransactionBody(db, hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, body, got)
}

func TestPendingItemLifecycle(t *testing.T) {
	db := newTestDB(t)
	id := ids.ID{1, 2, 3}

	pending, err := IsPending(db, id)
	require.NoError(t, err)
	assert.False(t, pending)

	commit(t, db, func(tx *batch.BatchTx) {
		EnqueuePendingItem(tx, id, []byte("payload"))
	})

	pending, err = IsPending(db, id)
	require.NoError(t, err)
	assert.True(t, pending)

	v, found, err := GetPendingItem(db, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), v)

	commit(t, db, func(tx *batch.BatchTx) {
		DequeuePendingItem(tx, id)
	})

	pending, err = IsPending(db, id)
	require.NoError(t, err)
	assert.False(t, pending)

	// Dequeuing an already-absent item must stay a no-op, not an error.
	commit(t, db, func(tx *batch.BatchTx) {
		DequeuePendingItem(tx, id)
	})
}

func TestListPendingItemsAscendingOrder(t *testing.T) {
	db := newTestDB(t)
	idA := ids.ID{0x01}
	idB := ids.ID{0x02}
	idC := ids.ID{0x03}

	commit(t, db, func(tx *batch.BatchTx) {
		EnqueuePendingItem(tx, idC, []byte("c"))
		EnqueuePendingItem(tx, idA, []byte("a"))
		EnqueuePendingItem(tx, idB, []byte("b"))
	})

	entries, err := ListPendingItems(db)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, idA, entries[0].ID)
	assert.Equal(t, idB, entries[1].ID)
	assert.Equal(t, idC, entries[2].ID)
}

func TestSetPartialSignatureToleratesReingestion(t *testing.T) {
	db := newTestDB(t)
	var hash [32]byte
	hash[0] = 9

	row := PartialSignatureRow{Denomination: 10, BlindedMessage: []byte("bm"), Share: []byte("s1")}
	commit(t, db, func(tx *batch.BatchTx) {
		SetPartialSignature(tx, hash, 0, 1, row)
	})

	// Re-ingesting the same (tx_hash, request_idx, peer_id) must not fail
	// the batch, even with a different share value — InsertIfAbsent keeps
	// the first-seen row.
	commit(t, db, func(tx *batch.BatchTx) {
		SetPartialSignature(tx, hash, 0, 1, PartialSignatureRow{Denomination: 10, BlindedMessage: []byte("bm"), Share: []byte("s2")})
	})

	groups, err := ScanPartialSignatureRequests(db)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []byte("s1"), groups[0].Shares[1].Share)
}

func TestScanPartialSignatureRequestsGroupsByRequest(t *testing.T) {
	db := newTestDB(t)
	var hashA, hashB [32]byte
	hashA[0], hashB[0] = 1, 2

	commit(t, db, func(tx *batch.BatchTx) {
		SetPartialSignature(tx, hashA, 0, 0, PartialSignatureRow{Denomination: 1, Share: []byte("a0")})
		SetPartialSignature(tx, hashA, 0, 1, PartialSignatureRow{Denomination: 1, Share: []byte("a1")})
		SetPartialSignature(tx, hashA, 1, 0, PartialSignatureRow{Denomination: 2, Share: []byte("a-req1-p0")})
		SetPartialSignature(tx, hashB, 0, 0, PartialSignatureRow{Denomination: 3, Share: []byte("b0")})
	})

	groups, err := ScanPartialSignatureRequests(db)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, hashA, groups[0].TxHash)
	assert.Equal(t, uint32(0), groups[0].RequestIdx)
	assert.Len(t, groups[0].Shares, 2)

	assert.Equal(t, hashA, groups[1].TxHash)
	assert.Equal(t, uint32(1), groups[1].RequestIdx)
	assert.Len(t, groups[1].Shares, 1)

	assert.Equal(t, hashB, groups[2].TxHash)
}

func TestDeletePartialSignatures(t *testing.T) {
	db := newTestDB(t)
	var hash [32]byte
	hash[0] = 5

	commit(t, db, func(tx *batch.BatchTx) {
		SetPartialSignature(tx, hash, 0, 0, PartialSignatureRow{Share: []byte("s0")})
		SetPartialSignature(tx, hash, 0, 1, PartialSignatureRow{Share: []byte("s1")})
	})

	commit(t, db, func(tx *batch.BatchTx) {
		DeletePartialSignatures(tx, hash, 0, []uint16{0, 1})
	})

	groups, err := ScanPartialSignatureRequests(db)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
