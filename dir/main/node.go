// Command fedimintd bootstraps a single federation member: it loads
// configuration, opens the durable store, wires the mint and wallet
// reference subsystems to the consensus engine, and serves the submission
// API. The BFT transport that drives ProcessConsensusOutcome is external
// (spec §1's scope boundary) and is not started here; this wires exactly
// the collaborator stack a transport driver would call into.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/fedimint/api"
	"github.com/ava-labs/fedimint/config"
	"github.com/ava-labs/fedimint/consensus/engine"
	"github.com/ava-labs/fedimint/consensus/sigscheme"
	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/database/memdb"
	"github.com/ava-labs/fedimint/database/prefixdb"
	"github.com/ava-labs/fedimint/health"
	"github.com/ava-labs/fedimint/metrics"
	"github.com/ava-labs/fedimint/mint/reference"
	"github.com/ava-labs/fedimint/utils/logging"
	"github.com/ava-labs/fedimint/utils/rng"
	walletref "github.com/ava-labs/fedimint/wallet/reference"
)

// defaultTiers is the demo federation's denomination ladder; a production
// deployment would load these from the same Config this loads everything
// else from.
var defaultTiers = []types.Amount{1, 2, 5, 10, 20, 50, 100}

func main() {
	log := logging.New("fedimintd", "info")

	cfg, err := config.Load(log)
	if err != nil {
		log.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("fedimintd exiting: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	raw, err := memdb.OpenFile(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer raw.Close()
	// Namespace every consensus key under one prefix so the same on-disk
	// store can later host other peers' unrelated state (e.g. a second
	// fedimintd instance's Bitcoin wallet cache) without key collisions.
	db := prefixdb.New([]byte("fedimint/"), raw)

	reg, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	threshold := cfg.Threshold()

	mints, err := reference.GenerateFederation(int(cfg.PeerCount), threshold, defaultTiers)
	if err != nil {
		return fmt.Errorf("generate mint federation: %w", err)
	}
	m := mints[cfg.PeerID]

	w, err := buildWallet(cfg, threshold)
	if err != nil {
		return fmt.Errorf("build wallet: %w", err)
	}

	eng := engine.New(db, m, w, sigscheme.ECDSAConcat{}, engine.Config{
		Fees: types.FeeConsensus{CoinsInputFee: 0, CoinsOutputFee: 0},
	}, rng.CryptoGenerator{}, log.With("engine"), reg)

	healthReg := health.New()
	eng, err = eng.WithHealth(healthReg, func() uint64 { return 0 }, 0, func() int { return int(cfg.PeerCount) })
	if err != nil {
		return fmt.Errorf("register health checks: %w", err)
	}

	statusCache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(30*time.Second))
	if err != nil {
		return fmt.Errorf("init status cache: %w", err)
	}
	eng = eng.WithStatusCache(statusCache)

	feed := api.NewEventFeed(log)
	eng = eng.WithObserver(feed)

	svc := api.NewService(eng, log)
	server := api.NewServer(svc, feed, log)

	log.Info("fedimintd peer %d/%d listening on %s", cfg.PeerID, cfg.PeerCount, cfg.APIListenAddr)
	return api.ListenAndServe(cfg.APIListenAddr, server)
}

// buildWallet generates a demo peg-in/peg-out multisig key set via a
// trusted dealer, mirroring the mint reference's own GenerateFederation:
// a stand-in for the external key-generation ceremony a production
// deployment would run once and persist, not regenerate per process.
func buildWallet(cfg *config.Config, threshold int) (*walletref.Wallet, error) {
	pubKeys := make([]*btcec.PublicKey, cfg.PeerCount)
	var selfPriv *btcec.PrivateKey
	for i := range pubKeys {
		priv, err := randPrivKey()
		if err != nil {
			return nil, err
		}
		pubKeys[i] = priv.PubKey()
		if uint16(i) == cfg.PeerID {
			selfPriv = priv
		}
	}

	return walletref.New(walletref.Config{
		NetParams:       &chaincfg.TestNet3Params,
		FinalityDelay:   6,
		DustLimitSats:   546,
		FeeRatePerVByte: 10,
		PeerIndex:       cfg.PeerID,
		PeerPubKeys:     pubKeys,
		PrivKey:         selfPriv,
		BatchSize:       10,
	}, threshold+1)
}

func randPrivKey() (*btcec.PrivateKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}
