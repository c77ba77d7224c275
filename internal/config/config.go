package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dynastore/internal/clock"
	"dynastore/internal/storage"
)

// DefaultMaxClockEntries caps vector clock growth when the config leaves it
// unset.
const DefaultMaxClockEntries = 64

// Peer names one remote node of the cluster.
type Peer struct {
	ID   clock.NodeID `yaml:"id"`
	Addr string       `yaml:"addr"`
}

// StoreDef declares one store and the engine backing it.
type StoreDef struct {
	Name   string `yaml:"name"`
	Engine string `yaml:"engine"` // "memory" or "bolt"
}

// Handoff configures the deferred-write store.
type Handoff struct {
	Enabled bool   `yaml:"enabled"`
	Engine  string `yaml:"engine"` // "memory" or "bolt"
	Path    string `yaml:"path"`   // bolt file, defaults under data_dir
}

// Config holds the node configuration.
type Config struct {
	NodeID          clock.NodeID `yaml:"node_id"`
	DataDir         string       `yaml:"data_dir"`
	MaxClockEntries int          `yaml:"max_clock_entries"`
	Stores          []StoreDef   `yaml:"stores"`
	Handoff         Handoff      `yaml:"handoff"`
	Peers           []Peer       `yaml:"peers"`
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML config, applies defaults, and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxClockEntries == 0 {
		c.MaxClockEntries = DefaultMaxClockEntries
	}
	if c.Handoff.Enabled && c.Handoff.Engine == "" {
		c.Handoff.Engine = string(storage.KindMemory)
	}
}

// Validate checks the configuration for assembly-time mistakes.
func (c *Config) Validate() error {
	if c.NodeID < 0 {
		return fmt.Errorf("node_id %d must not be negative", c.NodeID)
	}
	if c.MaxClockEntries < 0 {
		return fmt.Errorf("max_clock_entries %d must not be negative", c.MaxClockEntries)
	}

	seen := make(map[string]bool, len(c.Stores))
	for _, def := range c.Stores {
		if def.Name == "" {
			return fmt.Errorf("store with empty name")
		}
		if def.Name == "handoff" {
			// The deferred-write engine claims this name in the repository
			// and its default file under data_dir.
			return fmt.Errorf("store name %q is reserved", def.Name)
		}
		if seen[def.Name] {
			return fmt.Errorf("store %q declared twice", def.Name)
		}
		seen[def.Name] = true
		if err := validEngine(def.Engine); err != nil {
			return fmt.Errorf("store %q: %w", def.Name, err)
		}
	}

	if c.Handoff.Enabled {
		if err := validEngine(c.Handoff.Engine); err != nil {
			return fmt.Errorf("handoff: %w", err)
		}
	}

	peerIDs := make(map[clock.NodeID]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID == c.NodeID {
			return fmt.Errorf("peer %d collides with node_id", p.ID)
		}
		if peerIDs[p.ID] {
			return fmt.Errorf("peer %d declared twice", p.ID)
		}
		peerIDs[p.ID] = true
		if p.Addr == "" {
			return fmt.Errorf("peer %d has no address", p.ID)
		}
	}
	return nil
}

func validEngine(kind string) error {
	switch storage.Kind(kind) {
	case storage.KindMemory, storage.KindBolt:
		return nil
	default:
		return fmt.Errorf("unknown engine kind %q", kind)
	}
}

// ParsePeers parses a comma-separated peer list in the format
// "1=addr1,2=addr2,3=addr3", the form taken on the command line.
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		idStr := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])
		if idStr == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		id, err := strconv.ParseInt(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid peer ID %q: %w", idStr, err)
		}

		peers = append(peers, Peer{
			ID:   clock.NodeID(id),
			Addr: addr,
		})
	}

	return peers, nil
}
