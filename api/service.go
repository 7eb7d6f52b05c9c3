// Package api exposes the federation member's submission/status surface
// over JSON-RPC, the operations/internal counterpart to the "no front-end
// user wallet" Non-goal: a peer admin or a co-located client submits
// transactions and polls their outcome the same way an avalanchego node's
// internal services are reached, never a public user-facing surface.
package api

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/ava-labs/fedimint/consensus/engine"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/utils/logging"
)

// Service implements the JSON-RPC methods gorilla/rpc dispatches to. Each
// method follows the fixed shape gorilla/rpc's json2 codec requires:
// func(r *http.Request, args *Args, reply *Reply) error. Status/outcome
// lookups go through engine, not the database directly, so they benefit
// from its optional write-through status cache (spec §4.G/§4.M).
type Service struct {
	engine *engine.Engine
	log    *logging.Logger
}

func NewService(e *engine.Engine, log *logging.Logger) *Service {
	return &Service{engine: e, log: log.With("api")}
}

// SubmitTransactionArgs carries a transaction's canonical wire encoding.
type SubmitTransactionArgs struct {
	TxHex string `json:"tx_hex"`
}

type SubmitTransactionReply struct {
	TxHash string `json:"tx_hash"`
}

// SubmitTransaction decodes and submits a transaction for consensus,
// mirroring engine.Engine.SubmitTransaction (spec §4.F / G.1).
func (s *Service) SubmitTransaction(r *http.Request, args *SubmitTransactionArgs, reply *SubmitTransactionReply) error {
	raw, err := hex.DecodeString(args.TxHex)
	if err != nil {
		return fmt.Errorf("api: invalid tx_hex: %w", err)
	}
	tx, err := types.DecodeTx(raw)
	if err != nil {
		return fmt.Errorf("api: malformed transaction: %w", err)
	}
	if err := s.engine.SubmitTransaction(tx); err != nil {
		s.log.Warn("transaction submission rejected: %v", err)
		return err
	}
	hash, err := tx.TxHash()
	if err != nil {
		return err
	}
	reply.TxHash = hex.EncodeToString(hash[:])
	return nil
}

// GetTransactionStatusArgs names a transaction by its hex-encoded hash.
type GetTransactionStatusArgs struct {
	TxHash string `json:"tx_hash"`
}

type GetTransactionStatusReply struct {
	Found   bool   `json:"found"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Service) GetTransactionStatus(r *http.Request, args *GetTransactionStatusArgs, reply *GetTransactionStatusReply) error {
	hash, err := decodeTxHash(args.TxHash)
	if err != nil {
		return err
	}
	st, ok, err := s.engine.GetTransactionStatus(hash)
	if err != nil {
		return err
	}
	reply.Found = ok
	if ok {
		reply.State = st.State.String()
		reply.Message = st.Message
	}
	return nil
}

// GetOutputOutcomeArgs names one output of a transaction.
type GetOutputOutcomeArgs struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

type GetOutputOutcomeReply struct {
	Found     bool   `json:"found"`
	Kind      string `json:"kind,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (s *Service) GetOutputOutcome(r *http.Request, args *GetOutputOutcomeArgs, reply *GetOutputOutcomeReply) error {
	hash, err := decodeTxHash(args.TxHash)
	if err != nil {
		return err
	}
	outcome, ok, err := s.engine.GetOutputOutcome(hash, args.Index)
	if err != nil {
		return err
	}
	reply.Found = ok
	if ok {
		reply.Kind = outcome.Kind.String()
		if len(outcome.Signature) > 0 {
			reply.Signature = hex.EncodeToString(outcome.Signature)
		}
	}
	return nil
}

func decodeTxHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return hash, fmt.Errorf("api: invalid tx_hash: %w", err)
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("api: tx_hash must be 32 bytes, got %d", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}
