// Package nodeconfig loads the executorctl binary's TOML configuration
// (SPEC_FULL.md §4.8): data directory, gas-schedule file path, worker-pool
// cap, and feature-flag overrides for test nets. Loaded once at process
// startup, consistent with the one-time-set discipline params.NodeRuntimeConfig
// applies to on-chain knobs (spec.md §5) — here applied to the node's own
// operational knobs instead.
package nodeconfig

import (
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/young-rocks/aptos-core/log"
)

// Config is the full TOML document cmd/executorctl reads at startup.
type Config struct {
	DataDir          string          `toml:"data_dir"`
	GasSchedulePath  string          `toml:"gas_schedule_path"`
	WorkerPoolCap    int             `toml:"worker_pool_cap"`
	ListenAddr       string          `toml:"listen_addr"`
	JWTSecret        string          `toml:"jwt_secret"`
	FeatureOverrides map[string]bool `toml:"feature_overrides"`
}

// Default returns the configuration executorctl falls back on when no file
// is given — a single-process local run against ./data.
func Default() Config {
	return Config{
		DataDir:       "./data",
		WorkerPoolCap: 8,
		ListenAddr:    "127.0.0.1:8551",
	}
}

// Load parses a TOML file at path into a Config, starting from Default() so
// an operator only needs to override the fields that matter to them.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	mu     sync.Mutex
	active Config
	isSet  bool
)

// SetActive installs cfg as the process-wide configuration. Only the first
// call takes effect; every later call is logged and discarded
// (SPEC_FULL.md §4.8 "the loader logs (not panics) on an attempt to
// reconfigure after startup").
func SetActive(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if isSet {
		log.Warn("ignoring attempt to reconfigure after startup", "data_dir", cfg.DataDir)
		return
	}
	active = cfg
	isSet = true
}

// Active returns the process-wide configuration SetActive installed, or
// Default() if SetActive was never called.
func Active() Config {
	mu.Lock()
	defer mu.Unlock()
	if !isSet {
		return Default()
	}
	return active
}
