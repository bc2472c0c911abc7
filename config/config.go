// Package config loads flowgate.yaml, the router's single configuration
// document: provider launch descriptors, default visit cap, graph library
// location, session idle TTL, and semantic-index tuning. Grounded on
// framework/manifest.go's "unmarshal via yaml.v3, then Validate" shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rixmerz/flowgate/rpcpool"
)

// ProviderEntry is one provider's subprocess launch descriptor.
type ProviderEntry struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// SemanticIndex tunes the optional keyword-weight tool index.
type SemanticIndex struct {
	WeightsPath  string  `yaml:"weights_path"`
	KeywordBonus float64 `yaml:"keyword_bonus"`
}

// Config is the root of flowgate.yaml.
type Config struct {
	ProjectRoot      string                   `yaml:"project_root"`
	Providers        map[string]ProviderEntry `yaml:"providers"`
	DefaultMaxVisits int                      `yaml:"default_max_visits"`
	GraphLibraryDir  string                   `yaml:"graph_library_dir"`
	SessionIdleTTL   time.Duration            `yaml:"session_idle_ttl"`
	SemanticIndex    SemanticIndex            `yaml:"semantic_index"`

	SourcePath string `yaml:"-"`
}

// Load reads and validates a flowgate.yaml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.SourcePath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects configurations that can never
// resolve a provider or graph library.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("config %s: project_root is required", c.SourcePath)
	}
	if c.DefaultMaxVisits <= 0 {
		c.DefaultMaxVisits = 10
	}
	if c.GraphLibraryDir == "" {
		c.GraphLibraryDir = c.ProjectRoot + "/graphs"
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = 24 * time.Hour
	}
	for name, entry := range c.Providers {
		if entry.Command == "" {
			return fmt.Errorf("config %s: provider %q missing command", c.SourcePath, name)
		}
	}
	return nil
}

// providerConfigAdapter satisfies rpcpool.ProviderConfig by looking
// providers up in a loaded Config.
type providerConfigAdapter struct {
	cfg *Config
}

// ProviderResolver adapts Config into rpcpool.ProviderConfig.
func (c *Config) ProviderResolver() rpcpool.ProviderConfig {
	return providerConfigAdapter{cfg: c}
}

func (p providerConfigAdapter) Resolve(provider string) (rpcpool.LaunchConfig, bool) {
	entry, ok := p.cfg.Providers[provider]
	if !ok {
		return rpcpool.LaunchConfig{}, false
	}
	return rpcpool.LaunchConfig{
		Provider: provider,
		Command:  entry.Command,
		Args:     entry.Args,
		Env:      entry.Env,
		Dir:      p.cfg.ProjectRoot,
	}, true
}
