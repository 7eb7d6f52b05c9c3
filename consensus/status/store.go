// Package status implements the typed façade over the
// TransactionStatus/TransactionOutputOutcome/PartialSignature/pending-queue
// namespaces from spec §3, carrying no business logic of its own. Grounded
// on snow/engine/common/queue/prefixed_state.go's pattern of a one-byte
// namespace discriminant packed ahead of the rest of the key via
// wrappers.Packer, with small typed get/set methods per namespace.
package status

import (
	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database"
	"github.com/ava-labs/fedimint/ids"
	"github.com/ava-labs/fedimint/utils/wrappers"
)

// Namespace discriminants, the one-byte prefix of every key this package
// produces.
const (
	nsConsensusItem byte = iota
	nsTransactionStatus
	nsOutputOutcome
	nsPartialSignature
	nsTransactionBody
)

// TxState discriminates a Transaction's lifecycle per spec §3's
// TransactionStatus.
type TxState byte

const (
	StateAwaitingConsensus TxState = iota
	StateAccepted
	StateError
)

func (s TxState) String() string {
	switch s {
	case StateAwaitingConsensus:
		return "awaiting_consensus"
	case StateAccepted:
		return "accepted"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// TransactionStatus is the stored value for a tx_hash: its lifecycle
// state, plus an error message when State is StateError.
type TransactionStatus struct {
	State   TxState
	Message string
}

// OutcomeKind discriminates an output's processing outcome.
type OutcomeKind byte

const (
	OutcomeNone OutcomeKind = iota
	OutcomeCoins
	OutcomePegOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeCoins:
		return "coins"
	case OutcomePegOut:
		return "pegout"
	default:
		return "unknown"
	}
}

// OutputOutcome is the stored value for (tx_hash, output_index).
type OutputOutcome struct {
	Kind      OutcomeKind
	Signature []byte // set iff Kind == OutcomeCoins
}

func txStatusKey(txHash [32]byte) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+32)}
	p.PackByte(nsTransactionStatus)
	p.PackFixedBytes(txHash[:])
	return p.Bytes
}

func outputOutcomeKey(txHash [32]byte, index uint32) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+32+wrappers.IntLen)}
	p.PackByte(nsOutputOutcome)
	p.PackFixedBytes(txHash[:])
	p.PackInt(index)
	return p.Bytes
}

func partialSigKey(txHash [32]byte, requestIdx uint32, peerID uint16) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+32+wrappers.IntLen+2)}
	p.PackByte(nsPartialSignature)
	p.PackFixedBytes(txHash[:])
	p.PackInt(requestIdx)
	p.PackByte(byte(peerID))
	p.PackByte(byte(peerID >> 8))
	return p.Bytes
}

func transactionBodyKey(txHash [32]byte) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+32)}
	p.PackByte(nsTransactionBody)
	p.PackFixedBytes(txHash[:])
	return p.Bytes
}

func pendingItemKey(itemID ids.ID) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+32)}
	p.PackByte(nsConsensusItem)
	p.PackFixedBytes(itemID[:])
	return p.Bytes
}

// EncodeStatus serializes a TransactionStatus the same way the
// TransactionStatus namespace stores it, so callers outside this package
// (e.g. an engine-level status cache) can hold the identical byte
// representation without duplicating the codec.
func EncodeStatus(s TransactionStatus) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+len(s.Message))}
	p.PackByte(byte(s.State))
	p.PackBytes([]byte(s.Message))
	return p.Bytes
}

// DecodeStatus is the inverse of EncodeStatus.
func DecodeStatus(b []byte) (TransactionStatus, error) {
	u := &wrappers.Unpacker{Bytes: b}
	state := TxState(u.UnpackByte())
	msg := u.UnpackBytes()
	if u.Err != nil {
		return TransactionStatus{}, u.Err
	}
	return TransactionStatus{State: state, Message: string(msg)}, nil
}

// EncodeOutcome serializes an OutputOutcome the same way the
// OutputOutcome namespace stores it; see EncodeStatus.
func EncodeOutcome(o OutputOutcome) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 1+len(o.Signature))}
	p.PackByte(byte(o.Kind))
	p.PackBytes(o.Signature)
	return p.Bytes
}

// DecodeOutcome is the inverse of EncodeOutcome.
func DecodeOutcome(b []byte) (OutputOutcome, error) {
	u := &wrappers.Unpacker{Bytes: b}
	kind := OutcomeKind(u.UnpackByte())
	sig := u.UnpackBytes()
	if u.Err != nil {
		return OutputOutcome{}, u.Err
	}
	return OutputOutcome{Kind: kind, Signature: sig}, nil
}

// SetTransactionStatus stages a status write.
func SetTransactionStatus(tx *batch.BatchTx, txHash [32]byte, s TransactionStatus) {
	tx.AppendInsert(txStatusKey(txHash), EncodeStatus(s))
}

// GetTransactionStatus reads a tx_hash's status, returning
// (zero value, false, nil) if absent.
func GetTransactionStatus(db database.Database, txHash [32]byte) (TransactionStatus, bool, error) {
	raw, err := db.Get(txStatusKey(txHash))
	if err == database.ErrNotFound {
		return TransactionStatus{}, false, nil
	}
	if err != nil {
		return TransactionStatus{}, false, err
	}
	s, err := DecodeStatus(raw)
	if err != nil {
		return TransactionStatus{}, false, err
	}
	return s, true, nil
}

// SetOutputOutcome stages an outcome write for one transaction output.
func SetOutputOutcome(tx *batch.BatchTx, txHash [32]byte, index uint32, o OutputOutcome) {
	tx.AppendInsert(outputOutcomeKey(txHash, index), EncodeOutcome(o))
}

// GetOutputOutcome reads an output's outcome, returning
// (zero value, false, nil) if absent.
func GetOutputOutcome(db database.Database, txHash [32]byte, index uint32) (OutputOutcome, bool, error) {
	raw, err := db.Get(outputOutcomeKey(txHash, index))
	if err == database.ErrNotFound {
		return OutputOutcome{}, false, nil
	}
	if err != nil {
		return OutputOutcome{}, false, err
	}
	o, err := DecodeOutcome(raw)
	if err != nil {
		return OutputOutcome{}, false, err
	}
	return o, true, nil
}

// PartialSignatureRow is the stored value for a PartialSignatureKey: the
// peer's share plus the originating sign request's denomination and
// blinded message, so finalize_signatures can reconstruct a full
// mint.SignRequest without needing the original transaction still around.
type PartialSignatureRow struct {
	Denomination   types.Amount
	BlindedMessage []byte
	Share          []byte
}

func encodePartialSignatureRow(r PartialSignatureRow) []byte {
	p := &wrappers.Packer{Bytes: make([]byte, 0, 8+len(r.BlindedMessage)+len(r.Share))}
	p.PackLong(uint64(r.Denomination))
	p.PackBytes(r.BlindedMessage)
	p.PackBytes(r.Share)
	return p.Bytes
}

func decodePartialSignatureRow(b []byte) (PartialSignatureRow, error) {
	u := &wrappers.Unpacker{Bytes: b}
	denom := types.Amount(u.UnpackLong())
	blinded := u.UnpackBytes()
	share := u.UnpackBytes()
	if u.Err != nil {
		return PartialSignatureRow{}, u.Err
	}
	return PartialSignatureRow{Denomination: denom, BlindedMessage: blinded, Share: share}, nil
}

// SetTransactionBody stages the canonical body (inputs/outputs, no
// signature) of a transaction accepted in this epoch, so later epochs'
// ingest_partial_sigs and finalize_signatures phases can recover a signing
// request's denomination and blinded message without the original
// Transaction object still being held anywhere in memory.
func SetTransactionBody(tx *batch.BatchTx, txHash [32]byte, body []byte) {
	tx.AppendInsert(transactionBodyKey(txHash), body)
}

// GetTransactionBody reads a previously stored transaction body, returning
// (nil, false, nil) if absent.
func GetTransactionBody(db database.Database, txHash [32]byte) ([]byte, bool, error) {
	raw, err := db.Get(transactionBodyKey(txHash))
	if err == database.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// SetPartialSignature stages a PartialSignature row under (tx_hash,
// request_index, peer_id). A repeat of the same key is a silent no-op, so
// a share that reaches ingestion more than once (a pending item stays
// queued and re-proposed until an epoch that ingests it commits, and an
// outcome may carry the same share twice) does not abort the batch.
func SetPartialSignature(tx *batch.BatchTx, txHash [32]byte, requestIdx uint32, peerID uint16, row PartialSignatureRow) {
	tx.AppendInsertIfAbsent(partialSigKey(txHash, requestIdx, peerID), encodePartialSignatureRow(row))
}

// DeletePartialSignatures stages deletion of every PartialSignature row
// for (tx_hash, request_index) across the given peer IDs — used by
// finalize_signatures once a request has been combined, per spec §4.G
// Phase 7.
func DeletePartialSignatures(tx *batch.BatchTx, txHash [32]byte, requestIdx uint32, peerIDs []uint16) {
	for _, p := range peerIDs {
		tx.AppendMaybeDelete(partialSigKey(txHash, requestIdx, p))
	}
}

// PartialSignatureGroup is every currently persisted share for a single
// request_id, keyed by peer ID.
type PartialSignatureGroup struct {
	TxHash     [32]byte
	RequestIdx uint32
	Shares     map[uint16]PartialSignatureRow
}

// ScanPartialSignatureRequests groups every persisted PartialSignature row
// by request_id (tx_hash, request_index), in ascending key order. Rows for
// the same request are contiguous since the namespace's key ordering is
// (tx_hash, request_index, peer_id), so a single linear scan suffices —
// finalize_signatures needs every outstanding request regardless of which
// epoch contributed its shares, not just this epoch's.
func ScanPartialSignatureRequests(db database.Database) ([]PartialSignatureGroup, error) {
	it := db.NewIteratorWithPrefix([]byte{nsPartialSignature})
	defer it.Release()

	var groups []PartialSignatureGroup
	for it.Next() {
		u := &wrappers.Unpacker{Bytes: it.Key(), Offset: 1}
		txHashBytes := u.UnpackFixedBytes(32)
		requestIdx := u.UnpackInt()
		peerLo := u.UnpackByte()
		peerHi := u.UnpackByte()
		if u.Err != nil {
			return nil, u.Err
		}
		peerID := uint16(peerLo) | uint16(peerHi)<<8

		row, err := decodePartialSignatureRow(it.Value())
		if err != nil {
			return nil, err
		}

		var txHash [32]byte
		copy(txHash[:], txHashBytes)

		if n := len(groups); n == 0 || groups[n-1].TxHash != txHash || groups[n-1].RequestIdx != requestIdx {
			groups = append(groups, PartialSignatureGroup{TxHash: txHash, RequestIdx: requestIdx, Shares: make(map[uint16]PartialSignatureRow)})
		}
		groups[len(groups)-1].Shares[peerID] = row
	}
	return groups, it.Error()
}

// EnqueuePendingItem stages insert-new of a long-lived ConsensusItem into
// the pending queue (spec §3's re-proposed-until-consumed namespace).
// value carries enough of the item's own encoding to reconstruct it later
// from GetPendingItem/ListPendingItems, rather than the spec's literal
// "key is the item" framing — an ordered KV store is awkward to key by an
// arbitrarily large encoded value, so this keys by the item's own ID
// (itself a hash of that encoding) and stores the encoding as the value.
func EnqueuePendingItem(tx *batch.BatchTx, itemID ids.ID, value []byte) {
	tx.AppendInsertNew(pendingItemKey(itemID), value)
}

// DequeuePendingItem stages removal of a pending item once its effects are
// committed.
func DequeuePendingItem(tx *batch.BatchTx, itemID ids.ID) {
	tx.AppendMaybeDelete(pendingItemKey(itemID))
}

// IsPending reports whether itemID is still in the pending queue.
func IsPending(db database.Database, itemID ids.ID) (bool, error) {
	return db.Has(pendingItemKey(itemID))
}

// GetPendingItem returns the stored value for a pending item, if present.
func GetPendingItem(db database.Database, itemID ids.ID) ([]byte, bool, error) {
	v, err := db.Get(pendingItemKey(itemID))
	if err == database.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// PendingEntry is one row of the pending-item namespace.
type PendingEntry struct {
	ID    ids.ID
	Value []byte
}

// ListPendingItems scans the entire pending queue in ascending key order —
// the deterministic order spec §4.G.2 requires for get_consensus_proposal.
func ListPendingItems(db database.Database) ([]PendingEntry, error) {
	it := db.NewIteratorWithPrefix([]byte{nsConsensusItem})
	defer it.Release()

	var entries []PendingEntry
	for it.Next() {
		key := it.Key()
		var id ids.ID
		copy(id[:], key[1:])
		value := make([]byte, len(it.Value()))
		copy(value, it.Value())
		entries = append(entries, PendingEntry{ID: id, Value: value})
	}
	return entries, it.Error()
}
