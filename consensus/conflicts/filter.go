// Package conflicts implements the first-seen-wins double-spend filter
// from spec §4.B. This settles conflicts once, deterministically, within a
// single already-agreed-upon epoch: every peer replays the same ordered
// item list and must reach the same accept/reject partition without
// further communication, so there is no live DAG of processing/precluding/
// precluded-by transactions to maintain across rounds of network voting,
// and no blocker/dependents machinery to wake waiters once a decision
// lands. What carries over is the core idea of a precludes/precluded-by
// index keyed by ids.Set, generalized from single tx IDs to arbitrary
// conflict tokens (spent serials, peg-in outpoints).
package conflicts

import "github.com/ava-labs/fedimint/ids"

// Item is anything the filter can adjudicate: an entry in the epoch's
// transaction stream plus the conflict tokens it claims.
type Item struct {
	ID     ids.ID
	Tokens []ids.ID
}

// Filter partitions a single epoch's ordered transaction stream into
// accepted and rejected items by first-seen-wins over conflict tokens. A
// Filter is single-use: construct a fresh one per epoch.
type Filter struct {
	claimed  ids.Set
	claimant map[ids.ID]ids.ID // conflict token -> claiming item ID
}

func New() *Filter {
	return &Filter{
		claimed:  make(ids.Set),
		claimant: make(map[ids.ID]ids.ID),
	}
}

// Admit decides whether item may be accepted: it is rejected if any of its
// conflict tokens were already claimed by an earlier item in this epoch's
// ordering. On acceptance, all of item's tokens become claimed so that any
// later item sharing one of them is rejected in turn. Every peer running
// the same epoch's items through Admit in the same order reaches the same
// partition, independent of how the items were computed or gathered.
func (f *Filter) Admit(item Item) bool {
	for _, tok := range item.Tokens {
		if f.claimed.Contains(tok) {
			return false
		}
	}
	for _, tok := range item.Tokens {
		f.claimed.Add(tok)
		f.claimant[tok] = item.ID
	}
	return true
}

// ConflictsWith returns the ID of the already-accepted item that claims
// tok, if any. Useful for building a FaultReport when a conflicting
// contribution indicates a double-spend attempt (spec §4.E).
func (f *Filter) ConflictsWith(tok ids.ID) (ids.ID, bool) {
	id, ok := f.claimant[tok]
	return id, ok
}

// Run admits every item in order and returns the accepted subsequence,
// preserving input order.
func Run(items []Item) []Item {
	f := New()
	accepted := make([]Item, 0, len(items))
	for _, item := range items {
		if f.Admit(item) {
			accepted = append(accepted, item)
		}
	}
	return accepted
}
