// Package config loads leapshard CLI configuration: the shard topology
// consumed once at boot to populate the registry, plus id-translation and
// state-store settings.
package config

import (
	"fmt"

	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// Defaults applied when neither file, env, nor flags set a value.
const (
	DefaultStateFile = ".leapshard/state.db"
	DefaultCategory  = string(shard.CategoryPrimary)
)

// ShardConfig describes one shard in the topology file.
type ShardConfig struct {
	ID       int64             `koanf:"id"`
	Name     string            `koanf:"name"`
	Category string            `koanf:"category"`
	Default  bool              `koanf:"default"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`
}

// Config holds all CLI configuration options.
type Config struct {
	IDWidth   int           `koanf:"id_width"`
	StatePath string        `koanf:"state_path"`
	Verbose   bool          `koanf:"verbose"`
	Shards    []ShardConfig `koanf:"shards"`
}

// Validate checks the topology for obvious configuration mistakes before
// any shard is registered.
func (c *Config) Validate() error {
	if c.IDWidth < 0 || c.IDWidth > shard.MaxIDWidth {
		return fmt.Errorf("id_width must be between 1 and %d, got %d", shard.MaxIDWidth, c.IDWidth)
	}
	seen := make(map[int64]struct{}, len(c.Shards))
	names := make(map[string]struct{}, len(c.Shards))
	for _, sc := range c.Shards {
		if sc.ID <= 0 {
			return fmt.Errorf("shard %q: id must be a positive integer", sc.Name)
		}
		if sc.Name == "" {
			return fmt.Errorf("shard %d: name is required", sc.ID)
		}
		if _, ok := seen[sc.ID]; ok {
			return fmt.Errorf("shard id %d appears more than once", sc.ID)
		}
		if _, ok := names[sc.Name]; ok {
			return fmt.Errorf("shard name %q appears more than once", sc.Name)
		}
		seen[sc.ID] = struct{}{}
		names[sc.Name] = struct{}{}
	}
	return nil
}

// BuildRegistry populates a fresh registry from the configured topology.
func (c *Config) BuildRegistry() (*shard.Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg := shard.NewRegistry()
	for _, sc := range c.Shards {
		s := &shard.Shard{
			ID:       shard.ID(sc.ID),
			Name:     sc.Name,
			Category: shard.Category(sc.Category),
			Descriptor: shard.Descriptor{
				Host:     sc.Host,
				Port:     sc.Port,
				Database: sc.Database,
				Username: sc.Username,
				Password: sc.Password,
				Options:  sc.Options,
			},
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	for _, sc := range c.Shards {
		if sc.Default {
			if err := reg.SetDefault(shard.ID(sc.ID)); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}
