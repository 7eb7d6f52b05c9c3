package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/database/memdb"
)

func newTestDB(t *testing.T) *memdb.Database {
	t.Helper()
	db, err := memdb.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCommitRollback(t *testing.T) {
	db := newTestDB(t)
	b := New()
	root := b.Transaction()

	sub := root.SubTransaction()
	sub.AppendInsert([]byte("a"), []byte("1"))
	sub.Rollback()

	root.AppendInsert([]byte("b"), []byte("2"))
	root.Commit()

	require.NoError(t, Apply(db, b))

	has, err := db.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, has, "rolled-back sub-transaction must leave no trace")

	v, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestCommitIsIdempotentAfterRollback(t *testing.T) {
	b := New()
	root := b.Transaction()
	root.AppendInsert([]byte("a"), []byte("1"))
	root.Rollback()
	root.Commit() // must not un-discard staged writes
	assert.Empty(t, b.Items())
}

func TestInsertNewFailsWholeBatchOnExistingKey(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Put([]byte("k"), []byte("old")))

	b := New()
	root := b.Transaction()
	root.AppendInsertNew([]byte("k"), []byte("new"))
	root.AppendInsert([]byte("other"), []byte("v"))
	root.Commit()

	err := Apply(db, b)
	assert.ErrorIs(t, err, ErrKeyExists)

	has, err := db.Has([]byte("other"))
	require.NoError(t, err)
	assert.False(t, has, "a failed InsertNew must abort the whole batch")
}

func TestInsertNewFailsOnDuplicateWithinBatch(t *testing.T) {
	db := newTestDB(t)
	b := New()
	root := b.Transaction()
	root.AppendInsertNew([]byte("k"), []byte("1"))
	root.AppendInsertNew([]byte("k"), []byte("2"))
	root.Commit()

	err := Apply(db, b)
	assert.ErrorIs(t, err, ErrDuplicateInsertNew)
}

func TestInsertIfAbsentIsSilentOnExistingKey(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Put([]byte("k"), []byte("old")))

	b := New()
	root := b.Transaction()
	root.AppendInsertIfAbsent([]byte("k"), []byte("new"))
	root.AppendInsert([]byte("other"), []byte("v"))
	root.Commit()

	require.NoError(t, Apply(db, b))

	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v, "InsertIfAbsent must not overwrite an existing key")

	has, err := db.Has([]byte("other"))
	require.NoError(t, err)
	assert.True(t, has, "InsertIfAbsent's conflict must not abort the rest of the batch")
}

func TestInsertIfAbsentWritesWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	b := New()
	root := b.Transaction()
	root.AppendInsertIfAbsent([]byte("k"), []byte("v"))
	root.Commit()

	require.NoError(t, Apply(db, b))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestAppendFromAccumulatorsPreservesSliceOrder(t *testing.T) {
	db := newTestDB(t)

	first := New()
	ft := first.Transaction()
	ft.AppendInsert([]byte("k"), []byte("first"))
	ft.Commit()

	second := New()
	st := second.Transaction()
	st.AppendInsert([]byte("k"), []byte("second"))
	st.Commit()

	root := New()
	rt := root.Transaction()
	rt.AppendFromAccumulators([]*DbBatch{first, second})
	rt.Commit()

	require.NoError(t, Apply(db, root))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), v, "later slice entries must win regardless of computation order")
}

func TestMaybeDeleteIsANoOpWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	b := New()
	root := b.Transaction()
	root.AppendMaybeDelete([]byte("missing"))
	root.Commit()

	assert.NoError(t, Apply(db, b))
}
