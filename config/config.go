// Package config loads a process's view of the fixed cluster topology -
// every rank's TCP address and the world size - plus per-process
// tunables, the way the teacher's api/config.go builds its Config in two
// phases (a default-filled struct, then Init() to finalize
// environment-dependent fields). Here the TOML file stands in for the
// teacher's persisted node config, and urfave/cli flags stand in for its
// command-line overrides - both are dependencies the teacher's own go.mod
// already lists for exactly this purpose.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// DefaultDataDir is used when the config file gives no datadir value
// (there is no command-line flag for it).
const DefaultDataDir = "./chunkfabric-data"

// Config is the static, file-loaded description of the process group: who
// is rank 0 (the tracker), and where every rank can be reached.
type Config struct {
	// Addresses[r] is the TCP listen address of rank r. len(Addresses)
	// is the world size, N+1.
	Addresses []string `toml:"addresses"`

	// DataDir is where a client writes its output files (spec §6).
	DataDir string `toml:"datadir"`

	// MetricsEnabled makes the process call metrics.Setup; TracingEnabled
	// installs the Jaeger tracer (see tracing.Setup).
	MetricsEnabled bool `toml:"metrics_enabled"`
	TracingEnabled bool `toml:"tracing_enabled"`

	// HTTPAddr, if non-empty, is where the tracker's debug/inspection
	// HTTP surface listens (see tracker/http.go). Only meaningful for
	// rank 0.
	HTTPAddr string `toml:"http_addr"`
}

// NewConfig returns a Config with every field at its default value,
// mirroring api/config.go's NewConfig.
func NewConfig() *Config {
	return &Config{
		DataDir:        DefaultDataDir,
		MetricsEnabled: false,
		TracingEnabled: false,
	}
}

// Load reads a Config from a TOML file at path, starting from the
// defaults so a config file only needs to specify what it overrides.
func Load(path string) (*Config, error) {
	c := NewConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the invariants the rest of the system assumes hold:
// a world size of at least 2 (a tracker and at least one client), and one
// address per rank.
func (c *Config) Validate() error {
	if len(c.Addresses) < 2 {
		return fmt.Errorf("config: need at least 2 addresses (tracker + 1 client), got %d", len(c.Addresses))
	}
	for i, a := range c.Addresses {
		if a == "" {
			return fmt.Errorf("config: rank %d has no address", i)
		}
	}
	return nil
}

// WorldSize is the fixed number of processes in the group, N+1.
func (c *Config) WorldSize() int {
	return len(c.Addresses)
}
