// Package engine implements the consensus core's orchestrator (spec §4.G):
// transaction admission, proposal construction, and the seven-phase
// process_consensus_outcome pipeline that drives the mint, wallet, conflict
// filter, and status store to byte-identical state across every honest
// peer. Grounded on the accept-path shape of vms/avm/unique_tx.go
// (validate, stage effects into a batch, commit-or-reject) generalized from
// one transaction's lifecycle to a whole epoch's.
package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/conflicts"
	"github.com/ava-labs/fedimint/consensus/status"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/consensus/unzip"
	"github.com/ava-labs/fedimint/database"
	"github.com/ava-labs/fedimint/health"
	"github.com/ava-labs/fedimint/ids"
	"github.com/ava-labs/fedimint/metrics"
	"github.com/ava-labs/fedimint/mint"
	"github.com/ava-labs/fedimint/utils/logging"
	"github.com/ava-labs/fedimint/utils/rng"
	"github.com/ava-labs/fedimint/wallet"

	"github.com/allegro/bigcache/v3"
)

// Classification errors returned by SubmitTransaction, wrapping whatever
// the underlying mint/wallet validation produced.
var (
	ErrInputCoin    = errors.New("engine: coin input failed validation")
	ErrInputPegIn   = errors.New("engine: peg-in input failed validation")
	ErrOutputCoin   = errors.New("engine: coin output failed validation")
	ErrOutputPegOut = errors.New("engine: peg-out output failed validation")
)

// Config holds the fixed, non-collaborator parameters the engine consults
// while validating and applying transactions.
type Config struct {
	Fees types.FeeConsensus
}

// Observer receives notification of the outcomes process_consensus_outcome
// commits, so an embedder (spec §4.M's submission/status API) can push
// accept/reject/finalize events to its own clients without polling the
// status store. Calls are made one at a time from the goroutine running
// ProcessConsensusOutcome, after the batch they report on has committed.
type Observer interface {
	OnTransactionAccepted(txHash [32]byte)
	OnTransactionRejected(txHash [32]byte, reason string)
	OnOutputFinalized(txHash [32]byte, index uint32)
}

// Engine is the per-peer orchestrator. It holds no consensus state of its
// own — everything it needs to reach the same decision as every other
// honest peer lives in db, and is read fresh on every call.
type Engine struct {
	db        database.Database
	mint      mint.Mint
	wallet    wallet.Wallet
	sigScheme types.SignatureScheme
	fees      types.FeeConsensus
	gen       rng.Generator
	log       *logging.Logger
	metrics   *metrics.Registry

	health   *health.Registry
	cache    *bigcache.BigCache
	observer Observer
}

// New constructs an Engine. reg must not be nil; use metrics.NewNop() in
// tests that don't care about instrumentation.
func New(db database.Database, m mint.Mint, w wallet.Wallet, sigScheme types.SignatureScheme, cfg Config, gen rng.Generator, log *logging.Logger, reg *metrics.Registry) *Engine {
	return &Engine{
		db:        db,
		mint:      m,
		wallet:    w,
		sigScheme: sigScheme,
		fees:      cfg.Fees,
		gen:       gen,
		log:       log,
		metrics:   reg,
	}
}

// WithHealth attaches a health registry and registers the engine's three
// named checks against it (DB round trip, wallet sync lag, mint threshold
// reachability). chainHeight and livePeers are supplied by the embedder
// since both come from collaborators out of this module's scope (a Bitcoin
// RPC client, the BFT transport's peer view).
func (e *Engine) WithHealth(h *health.Registry, chainHeight func() uint64, maxSyncLag uint64, livePeers func() int) (*Engine, error) {
	e.health = h
	if err := h.RegisterDBRoundTrip(func() error {
		_, err := e.db.Has([]byte("__engine_health_probe__"))
		return err
	}); err != nil {
		return e, err
	}
	if err := h.RegisterWalletSyncLag(e.wallet.SyncHeight, chainHeight, maxSyncLag); err != nil {
		return e, err
	}
	if err := h.RegisterMintThreshold(livePeers, e.mint.Threshold()); err != nil {
		return e, err
	}
	return e, nil
}

// WithStatusCache attaches a write-through, never-authoritative cache in
// front of transaction status lookups (consensus/status remains the source
// of truth; the cache only spares a DB round trip on repeated polling of
// the same tx_hash, e.g. from the submission API).
func (e *Engine) WithStatusCache(c *bigcache.BigCache) *Engine {
	e.cache = c
	return e
}

// WithObserver attaches the accept/reject/finalize notification sink
// process_consensus_outcome's phase 4 and phase 7 commits publish to.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

func statusCacheKey(txHash [32]byte) string {
	return "ts:" + hex.EncodeToString(txHash[:])
}

func outcomeCacheKey(txHash [32]byte, index uint32) string {
	return fmt.Sprintf("oo:%s:%d", hex.EncodeToString(txHash[:]), index)
}

// cacheStatus write-throughs a just-committed TransactionStatus, if a
// status cache is attached. A cache write failure never fails the caller —
// consensus/status remains the source of truth regardless.
func (e *Engine) cacheStatus(txHash [32]byte, s status.TransactionStatus) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(statusCacheKey(txHash), status.EncodeStatus(s)); err != nil {
		e.log.Debug("engine: status cache write failed for %x: %v", txHash, err)
	}
}

// cacheOutcome write-throughs a just-committed OutputOutcome; see cacheStatus.
func (e *Engine) cacheOutcome(txHash [32]byte, index uint32, o status.OutputOutcome) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(outcomeCacheKey(txHash, index), status.EncodeOutcome(o)); err != nil {
		e.log.Debug("engine: outcome cache write failed for %x/%d: %v", txHash, index, err)
	}
}

// GetTransactionStatus serves spec §4.M's status lookup read-through the
// optional WithStatusCache cache ahead of consensus/status; a cache miss,
// decode failure, or no attached cache all fall back to the KV store,
// which remains authoritative (SPEC_FULL.md §8 property 9).
func (e *Engine) GetTransactionStatus(txHash [32]byte) (status.TransactionStatus, bool, error) {
	if e.cache != nil {
		if raw, err := e.cache.Get(statusCacheKey(txHash)); err == nil {
			if s, decErr := status.DecodeStatus(raw); decErr == nil {
				return s, true, nil
			}
		}
	}
	s, ok, err := status.GetTransactionStatus(e.db, txHash)
	if err != nil || !ok {
		return s, ok, err
	}
	e.cacheStatus(txHash, s)
	return s, ok, nil
}

// GetOutputOutcome serves spec §4.M's outcome lookup read-through the
// optional status cache; see GetTransactionStatus.
func (e *Engine) GetOutputOutcome(txHash [32]byte, index uint32) (status.OutputOutcome, bool, error) {
	if e.cache != nil {
		if raw, err := e.cache.Get(outcomeCacheKey(txHash, index)); err == nil {
			if o, decErr := status.DecodeOutcome(raw); decErr == nil {
				return o, true, nil
			}
		}
	}
	o, ok, err := status.GetOutputOutcome(e.db, txHash, index)
	if err != nil || !ok {
		return o, ok, err
	}
	e.cacheOutcome(txHash, index, o)
	return o, ok, nil
}

func (e *Engine) observePhase(phase string, startNanos uint64) {
	elapsed := time.Duration(monotime.Now() - startNanos)
	e.metrics.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// SubmitTransaction runs spec §4.G.1: in-memory validation followed by
// idempotent admission into the pending queue. No database mutation occurs
// if any validation step fails.
func (e *Engine) SubmitTransaction(tx *types.Transaction) error {
	start := monotime.Now()
	defer e.observePhase("submit_transaction", start)

	if err := tx.ValidateFunding(e.fees); err != nil {
		return err
	}
	if err := tx.ValidateSignature(e.sigScheme); err != nil {
		return err
	}

	for _, in := range tx.Inputs {
		switch v := in.(type) {
		case *types.CoinsInput:
			if err := e.mint.Validate(e.db, v.Coins); err != nil {
				return fmt.Errorf("%w: %v", ErrInputCoin, err)
			}
		case *types.PegInInput:
			if err := e.wallet.ValidatePegIn(e.db, v); err != nil {
				return fmt.Errorf("%w: %v", ErrInputPegIn, err)
			}
		}
	}
	for _, out := range tx.Outputs {
		switch v := out.(type) {
		case *types.CoinsOutput:
			if err := e.mint.ValidateTiers(v.Tokens); err != nil {
				return fmt.Errorf("%w: %v", ErrOutputCoin, err)
			}
		case *types.PegOutOutput:
			if err := e.wallet.ValidatePegOut(e.db, v); err != nil {
				return fmt.Errorf("%w: %v", ErrOutputPegOut, err)
			}
		}
	}

	txHash, err := tx.TxHash()
	if err != nil {
		return err
	}

	alreadyPending, err := status.IsPending(e.db, txHash)
	if err != nil {
		return err
	}
	if alreadyPending {
		e.log.Info("engine: duplicate submission of %s, treating resubmission as success", txHash)
		return nil
	}

	encoded, err := encodePendingTransaction(tx)
	if err != nil {
		return err
	}

	b := batch.New()
	root := b.Transaction()
	status.EnqueuePendingItem(root, txHash, encoded)
	status.SetTransactionStatus(root, [32]byte(txHash), status.TransactionStatus{State: status.StateAwaitingConsensus})
	root.Commit()

	if err := batch.Apply(e.db, b); err != nil {
		return err
	}
	e.metrics.TransactionsTotal.WithLabelValues("submitted").Inc()
	return nil
}

// GetConsensusProposal runs spec §4.G.2: every persisted pending item, in
// ascending store-key order, followed by this epoch's wallet contributions.
func (e *Engine) GetConsensusProposal(walletProposal wallet.Proposal) ([]types.ConsensusItem, error) {
	start := monotime.Now()
	defer e.observePhase("get_consensus_proposal", start)

	entries, err := status.ListPendingItems(e.db)
	if err != nil {
		return nil, err
	}

	items := make([]types.ConsensusItem, 0, len(entries)+len(walletProposal.Items))
	for _, entry := range entries {
		item, err := decodePendingItem(entry)
		if err != nil {
			e.log.Warn("engine: dropping undecodable pending item: %v", err)
			continue
		}
		items = append(items, item)
	}
	for _, payload := range walletProposal.Items {
		items = append(items, types.NewWalletItem(payload))
	}
	return items, nil
}

// ProcessConsensusOutcome runs spec §4.G.3's seven phases over one epoch's
// agreed outcome, committing one atomic batch for phases 1-6 and a second
// for phase 7 (finalize_signatures). It returns the wallet proposal this
// peer should contribute to the next epoch's GetConsensusProposal call.
func (e *Engine) ProcessConsensusOutcome(outcome [][]types.ConsensusItem) (wallet.Proposal, error) {
	start := monotime.Now()
	defer e.observePhase("process_consensus_outcome", start)

	unzipStart := monotime.Now()
	epoch := unzip.Unzip(outcome)
	e.observePhase("unzip", unzipStart)

	b := batch.New()
	root := b.Transaction()

	nextProposal, err := e.phaseWalletRound(root, epoch.Wallet)
	if err != nil {
		return wallet.Proposal{}, fmt.Errorf("engine: wallet round: %w", err)
	}

	accepted := e.phaseConflictFilter(epoch.Transactions)

	txOutcomes := e.phaseApplyTransactions(root, accepted)

	e.phaseIngestPartialSigs(root, epoch.PartialSigs)

	root.Commit()
	if err := batch.Apply(e.db, b); err != nil {
		return wallet.Proposal{}, fmt.Errorf("engine: committing epoch batch: %w", err)
	}
	e.notifyTransactionOutcomes(txOutcomes)

	e.finalizeSignatures()

	return nextProposal, nil
}

func (e *Engine) phaseWalletRound(root *batch.BatchTx, walletItems []*types.WalletItem) (wallet.Proposal, error) {
	start := monotime.Now()
	defer e.observePhase("wallet_round", start)

	proposal, signatureCI, err := e.wallet.ProcessConsensusProposals(e.db, root, walletItems, e.gen)
	if err != nil {
		return wallet.Proposal{}, err
	}
	if signatureCI != nil {
		encoded, err := encodePendingWalletPayload(*signatureCI)
		if err != nil {
			return wallet.Proposal{}, fmt.Errorf("encoding wallet signature item: %w", err)
		}
		status.EnqueuePendingItem(root, ids.ID(types.Hash32(encoded)), encoded)
	}
	return proposal, nil
}

func (e *Engine) phaseConflictFilter(txs []*types.Transaction) []*types.Transaction {
	start := monotime.Now()
	defer e.observePhase("conflict_filter", start)
	e.metrics.PhaseFanOutSize.WithLabelValues("conflict_filter_in").Observe(float64(len(txs)))

	items := make([]conflicts.Item, 0, len(txs))
	byHash := make(map[ids.ID]*types.Transaction, len(txs))
	for _, tx := range txs {
		hash, err := tx.TxHash()
		if err != nil {
			e.log.Warn("engine: dropping transaction with unhashable body: %v", err)
			continue
		}
		items = append(items, conflicts.Item{ID: hash, Tokens: tx.ConflictTokens()})
		byHash[hash] = tx
	}

	acceptedItems := conflicts.Run(items)
	accepted := make([]*types.Transaction, len(acceptedItems))
	for i, item := range acceptedItems {
		accepted[i] = byHash[item.ID]
	}
	e.metrics.PhaseFanOutSize.WithLabelValues("conflict_filter_out").Observe(float64(len(accepted)))
	return accepted
}

// txOutcome is the accept/reject verdict processTransaction reached for one
// transaction, held until the epoch's batch is durably committed so
// notifyTransactionOutcomes never announces a decision that didn't stick.
type txOutcome struct {
	txHash   [32]byte
	accepted bool
	message  string
}

// phaseApplyTransactions builds one sub-batch per accepted transaction in
// parallel, then merges them into root in the filtered list's fixed order —
// the merge order is what every peer must agree on, not the order the
// goroutines happen to finish in. It also returns each transaction's
// accept/reject verdict, for notifyTransactionOutcomes to publish once
// that merged batch actually commits.
func (e *Engine) phaseApplyTransactions(root *batch.BatchTx, txs []*types.Transaction) []txOutcome {
	start := monotime.Now()
	defer e.observePhase("apply_transactions", start)
	e.metrics.PhaseFanOutSize.WithLabelValues("apply_transactions").Observe(float64(len(txs)))

	subBatches := make([]*batch.DbBatch, len(txs))
	outcomes := make([]txOutcome, len(txs))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	wg.Add(len(txs))
	for i, tx := range txs {
		sem <- struct{}{}
		go func(i int, tx *types.Transaction) {
			defer func() { <-sem; wg.Done() }()
			subBatches[i], outcomes[i] = e.processTransaction(tx)
		}(i, tx)
	}
	wg.Wait()

	root.AppendFromAccumulators(subBatches)
	return outcomes
}

func (e *Engine) processTransaction(tx *types.Transaction) (*batch.DbBatch, txOutcome) {
	txBatch := batch.New()
	outer := txBatch.Transaction()

	txHash, err := tx.TxHash()
	if err != nil {
		e.log.Error("engine: unhashable transaction reached apply phase: %v", err)
		return txBatch, txOutcome{}
	}
	status.DequeuePendingItem(outer, txHash)

	inner := outer.SubTransaction()
	outputOutcomes, err := e.applyTransactionEffects(inner, txHash, tx)
	if err != nil {
		inner.Rollback()
		st := status.TransactionStatus{State: status.StateError, Message: err.Error()}
		status.SetTransactionStatus(outer, [32]byte(txHash), st)
		e.cacheStatus([32]byte(txHash), st)
		e.metrics.TransactionsTotal.WithLabelValues("error").Inc()
		outer.Commit()
		return txBatch, txOutcome{txHash: [32]byte(txHash), accepted: false, message: err.Error()}
	}

	inner.Commit()
	st := status.TransactionStatus{State: status.StateAccepted}
	status.SetTransactionStatus(outer, [32]byte(txHash), st)
	e.cacheStatus([32]byte(txHash), st)
	for _, ow := range outputOutcomes {
		e.cacheOutcome([32]byte(txHash), ow.index, ow.outcome)
	}
	e.metrics.TransactionsTotal.WithLabelValues("accepted").Inc()
	outer.Commit()
	return txBatch, txOutcome{txHash: [32]byte(txHash), accepted: true}
}

// notifyTransactionOutcomes publishes each transaction's verdict to the
// attached Observer, if any, skipping the zero-value placeholder
// processTransaction returns for an unhashable transaction.
func (e *Engine) notifyTransactionOutcomes(outcomes []txOutcome) {
	if e.observer == nil {
		return
	}
	var zero [32]byte
	for _, o := range outcomes {
		if o.txHash == zero {
			continue
		}
		if o.accepted {
			e.observer.OnTransactionAccepted(o.txHash)
		} else {
			e.observer.OnTransactionRejected(o.txHash, o.message)
		}
	}
}

// outcomeWrite pairs an output index with the OutputOutcome
// applyTransactionEffects staged for it, so processTransaction can
// write-through the status cache only once that write is known to commit
// (applyTransactionEffects's caller may still roll the whole sub-batch
// back on a later output's error).
type outcomeWrite struct {
	index   uint32
	outcome status.OutputOutcome
}

func (e *Engine) applyTransactionEffects(tx *batch.BatchTx, txHash ids.ID, transaction *types.Transaction) ([]outcomeWrite, error) {
	if err := transaction.ValidateFunding(e.fees); err != nil {
		return nil, err
	}
	if err := transaction.ValidateSignature(e.sigScheme); err != nil {
		return nil, err
	}

	body, err := types.EncodeTxBody(transaction)
	if err != nil {
		return nil, err
	}
	status.SetTransactionBody(tx, [32]byte(txHash), body)

	for _, in := range transaction.Inputs {
		switch v := in.(type) {
		case *types.CoinsInput:
			if err := e.mint.Spend(e.db, tx, v.Coins); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInputCoin, err)
			}
		case *types.PegInInput:
			if err := e.wallet.ClaimPegIn(tx, v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInputPegIn, err)
			}
		}
	}

	var outcomes []outcomeWrite
	for idx, out := range transaction.Outputs {
		outputIdx := uint32(idx)
		switch v := out.(type) {
		case *types.CoinsOutput:
			for tokenIdx, tok := range v.Tokens {
				req := mint.SignRequest{
					TxHash:         [32]byte(txHash),
					OutputIdx:      outputIdx,
					TokenIdx:       uint32(tokenIdx),
					Denomination:   tok.Denomination,
					BlindedMessage: tok.BlindedMessage,
				}
				share, err := e.mint.Issue(req)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrOutputCoin, err)
				}
				pendingShare := types.MintPartialSigShare{
					TxHash:     [32]byte(txHash),
					OutputIdx:  outputIdx,
					TokenIdx:   uint32(tokenIdx),
					PeerIndex:  uint16(share.PeerID),
					PartialSig: share.Share,
				}
				itemID := pendingMintPartialSigID([32]byte(txHash), outputIdx, uint32(tokenIdx), pendingShare.PeerIndex)
				status.EnqueuePendingItem(tx, itemID, encodePendingMintPartialSig(pendingShare))
			}
			none := status.OutputOutcome{Kind: status.OutcomeNone}
			status.SetOutputOutcome(tx, [32]byte(txHash), outputIdx, none)
			outcomes = append(outcomes, outcomeWrite{index: outputIdx, outcome: none})
		case *types.PegOutOutput:
			if err := e.wallet.QueuePegOut(tx, [32]byte(txHash), outputIdx, v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrOutputPegOut, err)
			}
			pegout := status.OutputOutcome{Kind: status.OutcomePegOut}
			status.SetOutputOutcome(tx, [32]byte(txHash), outputIdx, pegout)
			outcomes = append(outcomes, outcomeWrite{index: outputIdx, outcome: pegout})
		}
	}
	return outcomes, nil
}

// phaseIngestPartialSigs runs spec §4.G Phase 5: shares gossiped in via
// this epoch's mint_ci stream are recorded against their request, unless
// the request is unknown, not a Coins request, or already finalized.
func (e *Engine) phaseIngestPartialSigs(root *batch.BatchTx, shares []types.MintPartialSigShare) {
	start := monotime.Now()
	defer e.observePhase("ingest_partial_sigs", start)
	e.metrics.PhaseFanOutSize.WithLabelValues("ingest_partial_sigs").Observe(float64(len(shares)))

	for _, share := range shares {
		outcome, ok, err := status.GetOutputOutcome(e.db, share.TxHash, share.OutputIdx)
		if err != nil {
			e.log.Warn("engine: reading output outcome for %x/%d: %v", share.TxHash, share.OutputIdx, err)
			continue
		}
		if !ok || outcome.Kind == status.OutcomePegOut {
			e.log.Warn("engine: dropping mint partial sig for unknown or non-coins request %x/%d", share.TxHash, share.OutputIdx)
			continue
		}
		if outcome.Kind == status.OutcomeCoins {
			e.log.Debug("engine: dropping mint partial sig for already-finalized request %x/%d", share.TxHash, share.OutputIdx)
			continue
		}

		reqIdx := requestIndex(share.OutputIdx, share.TokenIdx)
		row, err := e.lookupSignRequest(share)
		if err != nil {
			e.log.Warn("engine: dropping mint partial sig for %x/%d: %v", share.TxHash, share.OutputIdx, err)
			continue
		}
		row.Share = share.PartialSig
		status.SetPartialSignature(root, share.TxHash, reqIdx, share.PeerIndex, row)

		// This peer's own copy of the same request is no longer pending
		// once it has been durably recorded in the PartialSignature table.
		itemID := pendingMintPartialSigID(share.TxHash, share.OutputIdx, share.TokenIdx, share.PeerIndex)
		status.DequeuePendingItem(root, itemID)
	}
}

// lookupSignRequest recovers the denomination and blinded message a share
// was issued against, by decoding the stored body of the transaction that
// created the request. The gossiped share itself only carries (tx_hash,
// output_index, token_index, peer_index, signature) — every honest peer
// that accepted the originating transaction persisted its body in Phase 4
// (see applyTransactionEffects), so that is this module's source of truth
// rather than re-deriving it from the pending queue.
func (e *Engine) lookupSignRequest(share types.MintPartialSigShare) (status.PartialSignatureRow, error) {
	body, ok, err := status.GetTransactionBody(e.db, share.TxHash)
	if err != nil {
		return status.PartialSignatureRow{}, err
	}
	if !ok {
		return status.PartialSignatureRow{}, fmt.Errorf("no stored body for transaction %x", share.TxHash)
	}
	tx, err := types.DecodeTxBody(body)
	if err != nil {
		return status.PartialSignatureRow{}, err
	}
	if int(share.OutputIdx) >= len(tx.Outputs) {
		return status.PartialSignatureRow{}, fmt.Errorf("output index %d out of range", share.OutputIdx)
	}
	coinsOut, ok := tx.Outputs[share.OutputIdx].(*types.CoinsOutput)
	if !ok {
		return status.PartialSignatureRow{}, fmt.Errorf("output %d is not a coins output", share.OutputIdx)
	}
	if int(share.TokenIdx) >= len(coinsOut.Tokens) {
		return status.PartialSignatureRow{}, fmt.Errorf("token index %d out of range", share.TokenIdx)
	}
	tok := coinsOut.Tokens[share.TokenIdx]
	return status.PartialSignatureRow{Denomination: tok.Denomination, BlindedMessage: tok.BlindedMessage}, nil
}

// finalizeSignatures runs spec §4.G Phase 7 as a separate atomic batch:
// every currently outstanding signing request with more than tbs_threshold
// verified shares is combined, its rows cleaned up, and its output's
// outcome finalized.
func (e *Engine) finalizeSignatures() {
	start := monotime.Now()
	defer e.observePhase("finalize_signatures", start)

	groups, err := status.ScanPartialSignatureRequests(e.db)
	if err != nil {
		e.log.Error("engine: scanning partial signature rows: %v", err)
		return
	}

	threshold := e.mint.Threshold()
	b := batch.New()
	root := b.Transaction()
	any := false
	type finalized struct {
		txHash    [32]byte
		outputIdx uint32
		outcome   status.OutputOutcome
	}
	var newlyFinalized []finalized

	for _, group := range groups {
		if len(group.Shares) <= threshold {
			continue
		}

		peerIDs := make([]uint16, 0, len(group.Shares))
		for p := range group.Shares {
			peerIDs = append(peerIDs, p)
		}
		sort.Slice(peerIDs, func(i, j int) bool { return peerIDs[i] < peerIDs[j] })

		outputIdx, tokenIdx := splitRequestIndex(group.RequestIdx)
		var req mint.SignRequest
		shares := make([]mint.PartialSigResponse, 0, len(peerIDs))
		for _, p := range peerIDs {
			row := group.Shares[p]
			req = mint.SignRequest{
				TxHash:         group.TxHash,
				OutputIdx:      outputIdx,
				TokenIdx:       tokenIdx,
				Denomination:   row.Denomination,
				BlindedMessage: row.BlindedMessage,
			}
			shares = append(shares, mint.PartialSigResponse{PeerID: mint.PeerID(p), Share: row.Share})
		}

		sig, faults, combineErr := e.mint.Combine(req, shares)
		for _, f := range faults.FaultyPeers {
			e.metrics.ShareVerifyFailures.Inc()
			e.log.Warn("engine: peer %d submitted an invalid partial signature share for %x/%d", f, group.TxHash, group.RequestIdx)
		}
		if combineErr != nil {
			e.log.Debug("engine: combine not yet possible for %x/%d: %v", group.TxHash, group.RequestIdx, combineErr)
			continue
		}

		any = true
		status.DeletePartialSignatures(root, group.TxHash, group.RequestIdx, peerIDs)
		for _, p := range peerIDs {
			status.DequeuePendingItem(root, pendingMintPartialSigID(group.TxHash, outputIdx, tokenIdx, p))
		}
		outcome := status.OutputOutcome{Kind: status.OutcomeCoins, Signature: sig.Bytes}
		status.SetOutputOutcome(root, group.TxHash, outputIdx, outcome)
		newlyFinalized = append(newlyFinalized, finalized{txHash: group.TxHash, outputIdx: outputIdx, outcome: outcome})
	}

	if !any {
		return
	}
	root.Commit()
	if err := batch.Apply(e.db, b); err != nil {
		e.log.Error("engine: finalize_signatures commit: %v", err)
		return
	}
	for _, f := range newlyFinalized {
		e.cacheOutcome(f.txHash, f.outputIdx, f.outcome)
		if e.observer != nil {
			e.observer.OnOutputFinalized(f.txHash, f.outputIdx)
		}
	}
}
