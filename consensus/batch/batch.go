// Package batch implements the persistent batch layer from spec §4.F: a
// DbBatch that accumulates BatchItems (insert, insert-new, delete,
// maybe-delete), BatchTx handles with commit/rollback semantics scoped to the
// batch (not the underlying store), nested sub-transactions, and
// append-from-accumulators merging of batches built in parallel (Phase 4 and
// Phase 7 of the engine).
//
// This mirrors vms/avm/tx.go's Accept/Reject pattern (stage writes, then
// either vm.db.CommitBatch() or vm.db.Abort()) generalized to the engine's
// need for many independent, mergeable sub-batches per epoch.
package batch

import (
	"errors"

	"github.com/ava-labs/fedimint/database"
)

// ItemType discriminates the four staged-write kinds spec §4.F names.
type ItemType byte

const (
	// Put unconditionally writes the key.
	Put ItemType = iota
	// InsertNew writes the key only if absent; ApplyBatch fails the entire
	// batch if the key is already present, used to detect duplicate
	// admission of a pending-queue item.
	InsertNew
	// Delete unconditionally removes the key.
	Delete
	// MaybeDelete removes the key if present; a no-op otherwise. Used for
	// idempotent removal of pending-queue entries that may already be gone.
	MaybeDelete
	// InsertIfAbsent writes the key only if absent, same as InsertNew, but
	// a pre-existing key is a silent no-op rather than a batch-wide
	// failure — used where the same contribution legitimately arrives more
	// than once (e.g. a gossiped partial signature re-proposed before its
	// request is finalized) and a repeat must not abort the whole epoch.
	InsertIfAbsent
)

// Item is one staged write.
type Item struct {
	Type  ItemType
	Key   []byte
	Value []byte
}

// DbBatch accumulates committed Items across an entire epoch-processing call
// (or a single finalize_signatures pass). It has no notion of "open"
// transactions of its own — BatchTx handles stage into themselves and only
// reach the DbBatch on Commit.
type DbBatch struct {
	items []Item
}

// New returns an empty batch.
func New() *DbBatch { return &DbBatch{} }

// Transaction returns a BatchTx rooted at this batch. Committing the
// returned handle appends its staged items to the batch; rolling it back
// discards them.
func (b *DbBatch) Transaction() *BatchTx {
	return &BatchTx{sink: b}
}

// Items returns the batch's accumulated items in append order. Only
// ApplyBatch should need this.
func (b *DbBatch) Items() []Item {
	return b.items
}

func (b *DbBatch) absorb(items []Item) {
	b.items = append(b.items, items...)
}

// sink is implemented by both *DbBatch and *BatchTx so a sub-transaction's
// commit can feed either the root batch or an enclosing transaction.
type sink interface {
	absorb(items []Item)
}

// BatchTx is a scoped handle for staging writes. Staged items only become
// visible to the enclosing sink when Commit is called; Rollback discards
// them with no trace. Neither call touches the underlying store — that only
// happens once the root DbBatch is handed to ApplyBatch.
type BatchTx struct {
	sink   sink
	staged []Item
	done   bool
}

// SubTransaction opens a nested scope whose commit feeds this transaction
// (not the root batch) — used by process_transaction in the engine to stage
// one input/output's writes at a time and roll back just that piece on
// failure without disturbing sibling writes already staged in the parent.
func (t *BatchTx) SubTransaction() *BatchTx {
	return &BatchTx{sink: t}
}

// AppendInsert stages an unconditional write.
func (t *BatchTx) AppendInsert(key, value []byte) {
	t.staged = append(t.staged, Item{Type: Put, Key: key, Value: value})
}

// AppendInsertNew stages a write that must fail commit if the key already
// exists in the underlying store (or elsewhere earlier in the same batch).
func (t *BatchTx) AppendInsertNew(key, value []byte) {
	t.staged = append(t.staged, Item{Type: InsertNew, Key: key, Value: value})
}

// AppendDelete stages an unconditional delete.
func (t *BatchTx) AppendDelete(key []byte) {
	t.staged = append(t.staged, Item{Type: Delete, Key: key})
}

// AppendMaybeDelete stages a delete-if-present.
func (t *BatchTx) AppendMaybeDelete(key []byte) {
	t.staged = append(t.staged, Item{Type: MaybeDelete, Key: key})
}

// AppendInsertIfAbsent stages a write-if-absent that does not fail the
// batch when the key already exists.
func (t *BatchTx) AppendInsertIfAbsent(key, value []byte) {
	t.staged = append(t.staged, Item{Type: InsertIfAbsent, Key: key, Value: value})
}

// AppendFromIter stages a pre-built slice of items verbatim, e.g. Phase 7's
// deletion of every PartialSignature row for a finalized request.
func (t *BatchTx) AppendFromIter(items []Item) {
	t.staged = append(t.staged, items...)
}

// AppendFromAccumulators merges the items of batches built independently
// (e.g. one per transaction in Phase 4's fan-out) into this transaction, in
// the given slice order — the order the engine must hold fixed for
// determinism regardless of how those batches were computed in parallel.
func (t *BatchTx) AppendFromAccumulators(batches []*DbBatch) {
	for _, b := range batches {
		t.staged = append(t.staged, b.items...)
	}
}

// Commit moves every staged item into the enclosing sink. A transaction may
// only be committed or rolled back once.
func (t *BatchTx) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.sink.absorb(t.staged)
	t.staged = nil
}

// Rollback discards every staged item. No trace of them reaches the
// enclosing sink.
func (t *BatchTx) Rollback() {
	t.done = true
	t.staged = nil
}

// ErrKeyExists is returned by ApplyBatch when an InsertNew item's key was
// already present in the underlying store.
var ErrKeyExists = errors.New("batch: insert-new key already exists")

// ErrDuplicateInsertNew is returned by ApplyBatch when two InsertNew items in
// the same batch target the same key — the same failure mode as the key
// pre-existing in the store, surfaced before any write reaches it.
var ErrDuplicateInsertNew = errors.New("batch: duplicate insert-new key in batch")

// Apply commits every item in b to db atomically: either every item is
// written, or (on an InsertNew conflict) none are. This is the only place
// raw store mutation happens; everything above this call is in-memory
// staging.
func Apply(db database.Database, b *DbBatch) error {
	raw := db.NewBatch()
	seen := make(map[string]struct{}, len(b.items))
	for _, item := range b.items {
		switch item.Type {
		case Put:
			raw.Put(item.Key, item.Value)
		case InsertNew:
			k := string(item.Key)
			if _, dup := seen[k]; dup {
				return ErrDuplicateInsertNew
			}
			seen[k] = struct{}{}
			exists, err := db.Has(item.Key)
			if err != nil {
				return err
			}
			if exists {
				return ErrKeyExists
			}
			raw.Put(item.Key, item.Value)
		case InsertIfAbsent:
			k := string(item.Key)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			exists, err := db.Has(item.Key)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			raw.Put(item.Key, item.Value)
		case Delete, MaybeDelete:
			raw.Delete(item.Key)
		}
	}
	if raw.Len() == 0 {
		return nil
	}
	return raw.Write()
}
