package sieve

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultPlayerAllowlist holds the players whose inventories are never
// reported.
var DefaultPlayerAllowlist = []string{
	"c6307390-acda-48f8-8584-42087ad918f4",
	"9cc444cd-47cf-4660-96b7-17a7bfef302c",
	"8f3aa7d8-b258-4e5f-a55b-4733f8b86a51",
}

// Config is the configuration file of the scanner. Fields left out of the
// file take their default value; an explicitly empty list stays empty.
type Config struct {
	Threads         int            `yaml:"threads"`
	BlockDenylist   []string       `yaml:"block_denylist"`
	ItemDenylist    []string       `yaml:"item_denylist"`
	ItemGraylist    map[string]int `yaml:"item_graylist"`
	PlayerAllowlist []string       `yaml:"player_allowlist"`
	Sections        []PlanSection  `yaml:"sections,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	var c Config
	c.Normalize()
	return c
}

// LoadConfig reads the configuration file at path. An empty path returns the
// default configuration.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills the fields missing from c with their defaults.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.BlockDenylist == nil {
		c.BlockDenylist = append([]string(nil), DefaultBlockDenylist...)
	}
	if c.ItemDenylist == nil {
		c.ItemDenylist = append([]string(nil), DefaultItemDenylist...)
	}
	if c.ItemGraylist == nil {
		c.ItemGraylist = make(map[string]int, len(DefaultItemGraylist))
		for k, v := range DefaultItemGraylist {
			c.ItemGraylist[k] = v
		}
	}
	if c.PlayerAllowlist == nil {
		c.PlayerAllowlist = append([]string(nil), DefaultPlayerAllowlist...)
	}
}

// Validate checks that every pattern compiles, every threshold and UUID is
// valid and the stacking sections are well formed.
func (c Config) Validate() error {
	if _, err := c.Classifier(); err != nil {
		return fmt.Errorf("block_denylist: %w", err)
	}
	if _, err := c.ItemRules(); err != nil {
		return err
	}
	if _, err := c.Allowlist(); err != nil {
		return err
	}
	return c.Plan().Validate()
}

// Classifier compiles the block denylist.
func (c Config) Classifier() (*Classifier, error) {
	return NewClassifier(c.BlockDenylist)
}

// ItemRules compiles the item denylist and graylist.
func (c Config) ItemRules() (*ItemRules, error) {
	return NewItemRules(c.ItemDenylist, c.ItemGraylist)
}

// Allowlist parses the player allowlist.
func (c Config) Allowlist() ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(c.PlayerAllowlist))
	for _, s := range c.PlayerAllowlist {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("player_allowlist: %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Plan returns the stacking plan formed by the configured sections.
func (c Config) Plan() *Plan {
	return &Plan{Sections: c.Sections}
}
