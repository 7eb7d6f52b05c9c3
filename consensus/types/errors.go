package types

import "errors"

// Funding/signature classification errors from spec §4.A.
var (
	ErrUnbalancedTransaction = errors.New("unbalanced transaction: inputs do not equal outputs plus fees")
	ErrInvalidSignature      = errors.New("invalid aggregate signature")
	ErrNoInputs              = errors.New("transaction has no inputs")
	ErrNoOutputs             = errors.New("transaction has no outputs")
)
