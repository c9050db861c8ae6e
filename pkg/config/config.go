// Package config loads the YAML document that selects and wires the
// storage backends behind a cellar daemon: which blob.Store tiers make
// up the Multi, which refstore.Store backend to run, and (for the Raft
// backend) its cluster parameters.
//
// Grounded on the retrieval pack's pkg/config/loader.go convention of a
// typed config struct plus defaulting, simplified to cellar's single
// YAML document (no multi-tenant layering) and decoded with
// gopkg.in/yaml.v3 rather than JSON-as-YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BlobTierConfig describes one tier of the blob.Multi built by BuildBlobStore.
type BlobTierConfig struct {
	// Kind selects the adapter: "memory", "file", "bolt", or "postgres".
	Kind string `yaml:"kind"`
	// Path is the file path for "file"/"bolt" tiers.
	Path string `yaml:"path,omitempty"`
	// DSN is the connection string for a "postgres" tier.
	DSN string `yaml:"dsn,omitempty"`
}

// RefStoreConfig selects the single RefStore backend the daemon runs.
type RefStoreConfig struct {
	// Kind selects the adapter: "memory", "file", "bolt", "postgres", or "raft".
	Kind string `yaml:"kind"`
	// Path is the file path for "file"/"bolt" backends.
	Path string `yaml:"path,omitempty"`
	// DSN is the connection string for a "postgres" backend.
	DSN string `yaml:"dsn,omitempty"`
}

// RaftConfig configures the clustered RefStore backend. Only consulted
// when RefStoreConfig.Kind == "raft".
type RaftConfig struct {
	NodeID    string `yaml:"nodeID"`
	BindAddr  string `yaml:"bindAddr"`
	DataDir   string `yaml:"dataDir"`
	Bootstrap bool   `yaml:"bootstrap"`
	Join      string `yaml:"join"`
}

// ServerConfig configures the HTTP surface `cmd/cellar serve` exposes.
type ServerConfig struct {
	MetricsAddr string `yaml:"metricsAddr"`
	HealthAddr  string `yaml:"healthAddr"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"jsonOutput"`
}

// Config is the top-level daemon configuration document (spec.md §6's
// external-interfaces YAML shape).
type Config struct {
	BlobTiers []BlobTierConfig `yaml:"blobTiers"`
	RefStore  RefStoreConfig   `yaml:"refStore"`
	Raft      *RaftConfig      `yaml:"raft,omitempty"`
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log,omitempty"`
}

// Load reads and parses the YAML document at path, applies defaults,
// and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.BlobTiers) == 0 {
		c.BlobTiers = []BlobTierConfig{{Kind: "memory"}}
	}
	if c.RefStore.Kind == "" {
		c.RefStore.Kind = "memory"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "127.0.0.1:9090"
	}
	if c.Server.HealthAddr == "" {
		c.Server.HealthAddr = "127.0.0.1:9091"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.RefStore.Kind == "raft" && c.Raft != nil && c.Raft.DataDir == "" {
		c.Raft.DataDir = "./cellar-raft"
	}
}

// Validate reports structural errors defaulting cannot fix: unknown
// adapter kinds, and a "raft" RefStore selected without a raft: block.
func (c *Config) Validate() error {
	for i, t := range c.BlobTiers {
		if !isValidBlobKind(t.Kind) {
			return fmt.Errorf("config: blobTiers[%d]: unknown kind %q", i, t.Kind)
		}
		if t.Kind == "file" || t.Kind == "bolt" {
			if t.Path == "" {
				return fmt.Errorf("config: blobTiers[%d]: kind %q requires path", i, t.Kind)
			}
		}
		if t.Kind == "postgres" && t.DSN == "" {
			return fmt.Errorf("config: blobTiers[%d]: kind postgres requires dsn", i)
		}
	}
	if !isValidRefKind(c.RefStore.Kind) {
		return fmt.Errorf("config: refStore: unknown kind %q", c.RefStore.Kind)
	}
	if (c.RefStore.Kind == "file" || c.RefStore.Kind == "bolt") && c.RefStore.Path == "" {
		return fmt.Errorf("config: refStore: kind %q requires path", c.RefStore.Kind)
	}
	if c.RefStore.Kind == "postgres" && c.RefStore.DSN == "" {
		return fmt.Errorf("config: refStore: kind postgres requires dsn")
	}
	if c.RefStore.Kind == "raft" {
		if c.Raft == nil {
			return fmt.Errorf("config: refStore: kind raft requires a raft: block")
		}
		if c.Raft.NodeID == "" || c.Raft.BindAddr == "" {
			return fmt.Errorf("config: raft: nodeID and bindAddr are required")
		}
	}
	return nil
}

func isValidBlobKind(kind string) bool {
	switch kind {
	case "memory", "file", "bolt", "postgres":
		return true
	default:
		return false
	}
}

func isValidRefKind(kind string) bool {
	switch kind {
	case "memory", "file", "bolt", "postgres", "raft":
		return true
	default:
		return false
	}
}
