package types

// Amount is a quantity of value denominated in milli-satoshi, matching §6's
// "Amount as u64 satoshi"-adjacent framing — kept in milli-satoshi
// throughout the mint/transaction layer so token denominations can be finer
// than one satoshi, and only rounded down to whole satoshi at the wallet
// boundary when a peg-out actually hits the chain (see wallet.ToBTCAmount).
type Amount uint64

// Denomination is one of the mint's fixed token tiers, itself an Amount.
type Denomination = Amount

// MilliSatPerSat is the conversion factor between milli-satoshi and satoshi.
const MilliSatPerSat = 1000

// FeeConsensus is the fixed per-input/per-output fee schedule referenced by
// validate_funding in spec §4.A.
type FeeConsensus struct {
	CoinsInputFee  Amount
	CoinsOutputFee Amount
}
