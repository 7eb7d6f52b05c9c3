// Package mint defines the blind-signature mint subsystem contract exposed
// to the consensus engine (spec §4.D): validating and spending existing
// tokens, and issuing/combining partial signatures over new ones. Grounded
// on the credential-verification shape of vms/avm/tx.go's
// `cred.Verify()` call during `SyntacticVerify` for validate, and
// unique_tx.go's accept-time UTXO bookkeeping for spend.
package mint

import (
	"errors"

	"github.com/ava-labs/fedimint/consensus/batch"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database"
)

// PeerID identifies a federation member by its fixed index in the
// threshold scheme. mint/reference numbers peers from 1, since x=0 is the
// evaluation point of the shared secret.
type PeerID uint16

var (
	ErrUnknownSignature = errors.New("mint: signature does not verify against any known issuance")
	ErrAlreadySpent     = errors.New("mint: serial number already spent")
	ErrUnknownTier      = errors.New("mint: requested denomination is not a valid tier")
)

// CombineError classifies why combine could not produce a BlindSignature.
type CombineError struct {
	Reason string
}

func (e *CombineError) Error() string { return "mint: combine failed: " + e.Reason }

// SignRequest is one token's blinded message awaiting partial signatures,
// identified by the owning transaction hash and output/token index so
// shares from different peers for the same request can be grouped.
type SignRequest struct {
	TxHash         [32]byte
	OutputIdx      uint32
	TokenIdx       uint32
	Denomination   types.Denomination
	BlindedMessage []byte
}

// PartialSigResponse is this peer's contribution toward a SignRequest.
type PartialSigResponse struct {
	PeerID PeerID
	Share  []byte
}

// BlindSignature is the federation's combined signature over a blinded
// message, still blinded — the requester unblinds it client-side.
type BlindSignature struct {
	Bytes []byte
}

// FaultReport names peers whose submitted share failed verification during
// a combine call; such shares are excluded from interpolation rather than
// failing the call outright.
type FaultReport struct {
	FaultyPeers []PeerID
}

// Mint is the contract the consensus engine drives; a reference
// implementation lives in mint/reference.
type Mint interface {
	// Validate checks coins' signatures and, against db, that none of their
	// serials have already been spent. Read-only.
	Validate(db database.Database, coins []types.Coin) error

	// ValidateTiers checks that every requested BlindToken names a
	// denomination this mint actually issues.
	ValidateTiers(tokens []types.BlindToken) error

	// Spend atomically records coins' serials as spent into tx, failing if
	// any is already committed-spent in db.
	Spend(db database.Database, tx *batch.BatchTx, coins []types.Coin) error

	// Issue produces this peer's partial signature share over req.
	Issue(req SignRequest) (PartialSigResponse, error)

	// Combine threshold-combines shares for a single SignRequest into a
	// BlindSignature once more than the threshold verify successfully.
	// FaultReport names any share that failed verification; those shares
	// are excluded from interpolation, which does not by itself fail the
	// call if enough valid shares remain.
	Combine(req SignRequest, shares []PartialSigResponse) (*BlindSignature, FaultReport, *CombineError)

	// Threshold is spec's tbs_threshold: Combine succeeds only once the
	// verified-share count is strictly greater than it.
	Threshold() int
}
