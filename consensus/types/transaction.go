package types

import "github.com/ava-labs/fedimint/ids"

// SignatureScheme verifies the aggregate signature a Transaction carries
// over its inputs' spending keys. consensus/sigscheme.ECDSAConcat is the
// implementation in this module; the engine never constructs signatures
// itself, only verifies them, per spec §4.A.
type SignatureScheme interface {
	// Verify checks sig against the message for every key in keys, treating
	// them as an ordered aggregate (e.g. a MuSig-style combined key, or a
	// plain list each covering a share of the message).
	Verify(keys [][]byte, message []byte, sig []byte) bool
}

// Transaction is the atomic unit submitted to the federation: a set of
// Inputs being spent and a set of Outputs being created, balanced by
// validate_funding and authorized by a single aggregate Signature, per
// spec §3 and §4.A.
type Transaction struct {
	Inputs    []Input
	Outputs   []Output
	Signature []byte
}

// TxHash is the transaction's identity: the canonical encoding of its
// Inputs and Outputs (Signature excluded, matching the sign-then-hash
// convention of most UTXO schemes so the hash commits to what was signed,
// not the signature bytes themselves).
func (tx *Transaction) TxHash() (ids.ID, error) {
	enc, err := EncodeTxBody(tx)
	if err != nil {
		return ids.Empty, err
	}
	return ids.ID(Hash32(enc)), nil
}

// ValidateFunding checks that total input value equals total output value
// plus CoinsInputFee per Coins input and CoinsOutputFee per Coins output,
// per spec §4.A. It does not check signatures.
func (tx *Transaction) ValidateFunding(fees FeeConsensus) error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}

	var inTotal Amount
	for _, in := range tx.Inputs {
		inTotal += in.Amount()
	}

	var outTotal Amount
	for _, out := range tx.Outputs {
		outTotal += out.Amount()
		if _, ok := out.(*CoinsOutput); ok {
			outTotal += fees.CoinsOutputFee
		}
	}
	for _, in := range tx.Inputs {
		if _, ok := in.(*CoinsInput); ok {
			outTotal += fees.CoinsInputFee
		}
	}

	if inTotal != outTotal {
		return ErrUnbalancedTransaction
	}
	return nil
}

// ConflictTokens collects every conflict token claimed by this
// transaction's inputs, for the conflict filter in spec §4.B.
func (tx *Transaction) ConflictTokens() []ids.ID {
	var tokens []ids.ID
	for _, in := range tx.Inputs {
		tokens = append(tokens, in.ConflictTokens()...)
	}
	return tokens
}

// ValidateSignature checks the transaction's aggregate Signature against
// every input's spending keys over the transaction's signed body, per spec
// §4.A.
func (tx *Transaction) ValidateSignature(scheme SignatureScheme) error {
	var keys [][]byte
	for _, in := range tx.Inputs {
		keys = append(keys, in.SpendingKeys()...)
	}

	enc, err := EncodeTxBody(tx)
	if err != nil {
		return err
	}

	if !scheme.Verify(keys, enc, tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
