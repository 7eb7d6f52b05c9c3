// Package config loads federation member configuration from the environment,
// following the same .env-then-envconfig layering the rest of this corpus
// uses for its services.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/ava-labs/fedimint/utils/logging"
)

// Config holds one federation member's node configuration, loaded from
// environment variables (optionally seeded from a .env file).
type Config struct {
	PeerID    uint16 `envconfig:"FM_PEER_ID" required:"true"`
	PeerCount uint16 `envconfig:"FM_PEER_COUNT" required:"true"`
	MaxFaulty uint16 `envconfig:"FM_MAX_FAULTY" required:"true"`

	DBPath string `envconfig:"FM_DB_PATH" default:"./data/fedimint"`

	LogLevel string `envconfig:"FM_LOG_LEVEL" default:"info"`

	APIListenAddr string `envconfig:"FM_API_LISTEN_ADDR" default:":8080"`

	PluginPath string `envconfig:"FM_PLUGIN_PATH"`

	MetricsListenAddr string `envconfig:"FM_METRICS_LISTEN_ADDR" default:":9090"`
}

// Load reads a .env file if present, then environment variables (which take
// precedence over .env values, matching godotenv.Load's non-overriding
// behavior), into a Config, and validates the result.
func Load(log *logging.Logger) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Warn("failed to load .env file: %v", err)
		} else {
			log.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	expanded, err := homedir.Expand(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("config: expand db path: %w", err)
	}
	cfg.DBPath = expanded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the federation shape described by the config is sane:
// enough peers to tolerate the declared fault count under n = 3f+1.
func (c *Config) Validate() error {
	if c.PeerCount == 0 {
		return fmt.Errorf("%w: peer count must be positive", ErrInvalidConfig)
	}
	if c.PeerID >= c.PeerCount {
		return fmt.Errorf("%w: peer id %d out of range for %d peers", ErrInvalidConfig, c.PeerID, c.PeerCount)
	}
	if uint32(c.PeerCount) < 3*uint32(c.MaxFaulty)+1 {
		return fmt.Errorf("%w: %d peers cannot tolerate %d faulty under n=3f+1", ErrInvalidConfig, c.PeerCount, c.MaxFaulty)
	}
	return nil
}

// Threshold returns tbs_threshold, n-f-1: combining a threshold signature
// requires strictly more matching shares than this.
func (c *Config) Threshold() int {
	return int(c.PeerCount) - int(c.MaxFaulty) - 1
}
