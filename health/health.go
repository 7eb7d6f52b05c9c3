// Package health exposes the engine's go-sundheit health-check registry:
// DB reachability, wallet sync lag, and mint threshold reachability, per
// SPEC_FULL.md §4.G, built from small, named, independently pollable
// checks registered against a single go-sundheit Health instance.
package health

import (
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
)

// Registry wraps a go-sundheit Health instance with the three named checks
// the engine needs.
type Registry struct {
	health gosundheit.Health
}

// New constructs an empty registry. Call Register* to add checks.
func New() *Registry {
	return &Registry{health: gosundheit.New()}
}

// RegisterDBRoundTrip adds a check that fails if ping returns an error —
// intended to be a cheap Get/Has round trip against the KV store.
func (r *Registry) RegisterDBRoundTrip(ping func() error) error {
	c, err := checks.NewPingCheck("db_round_trip", pingerFunc(ping))
	if err != nil {
		return err
	}
	return r.health.RegisterCheck(&gosundheit.Config{
		Check:           c,
		InitialDelay:    time.Second,
		ExecutionPeriod: 15 * time.Second,
	})
}

// RegisterWalletSyncLag adds a check that fails once the wallet's observed
// chain tip falls maxLag blocks or more behind the externally reported
// chain height.
func (r *Registry) RegisterWalletSyncLag(syncHeight, chainHeight func() uint64, maxLag uint64) error {
	check := &funcCheck{name: "wallet_sync_lag", fn: func() (interface{}, error) {
		lag := chainHeight() - syncHeight()
		if lag >= maxLag {
			return lag, errLag
		}
		return lag, nil
	}}
	return r.health.RegisterCheck(&gosundheit.Config{
		Check:           check,
		InitialDelay:    time.Second,
		ExecutionPeriod: 15 * time.Second,
	})
}

// RegisterMintThreshold adds a check that fails if the federation no
// longer has enough live peers to ever reach tbs_threshold+1 shares.
func (r *Registry) RegisterMintThreshold(livePeers func() int, threshold int) error {
	check := &funcCheck{name: "mint_threshold_reachable", fn: func() (interface{}, error) {
		live := livePeers()
		if live <= threshold {
			return live, errThresholdUnreachable
		}
		return live, nil
	}}
	return r.health.RegisterCheck(&gosundheit.Config{
		Check:           check,
		InitialDelay:    time.Second,
		ExecutionPeriod: 30 * time.Second,
	})
}

// Results returns the current pass/fail state of every registered check.
func (r *Registry) Results() (map[string]gosundheit.Result, bool) {
	return r.health.Results()
}

type pingerFunc func() error

func (f pingerFunc) Ping() error { return f() }

type funcCheck struct {
	name string
	fn   func() (interface{}, error)
}

func (c *funcCheck) Name() string                   { return c.name }
func (c *funcCheck) Execute() (interface{}, error) { return c.fn() }

var (
	errLag                  = lagError{}
	errThresholdUnreachable = thresholdError{}
)

type lagError struct{}

func (lagError) Error() string { return "health: wallet sync lag exceeds threshold" }

type thresholdError struct{}

func (thresholdError) Error() string { return "health: not enough live peers to reach mint threshold" }
