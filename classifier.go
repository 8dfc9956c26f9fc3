package sieve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oriumgames/sieve/format"
)

// DefaultBlockDenylist holds the block patterns flagged when no configuration
// overrides them.
var DefaultBlockDenylist = []string{
	"minecraft:beacon",
	"minecraft:command_block.*",
	"minecraft:.*command_block",
	"minecraft:conduit",
	"minecraft:end_portal_frame",
	"minecraft:dragon_egg",
	"minecraft:dragon_head",
	"minecraft:vault",
	"minecraft:ominous_vault",
	"minecraft:spawner",
	"minecraft:trial_spawner",
	"minecraft:structure_block",
	"minecraft:jigsaw",
	"minecraft:heavy_core",
	"minecraft:wither_skeleton_skull",
	"minecraft:copper_grate",
}

// Classifier decides whether a block type is disallowed. It holds only
// compiled patterns and is safe for concurrent use.
type Classifier struct {
	patterns []*regexp.Regexp
}

// NewClassifier compiles a denylist. Each pattern is a case-sensitive regular
// expression that must match the whole identifier; plain identifiers match
// only themselves.
func NewClassifier(patterns []string) (*Classifier, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	return &Classifier{patterns: compiled}, nil
}

// MustClassifier is like NewClassifier but panics on an invalid pattern.
func MustClassifier(patterns []string) *Classifier {
	c, err := NewClassifier(patterns)
	if err != nil {
		panic(err)
	}
	return c
}

// Disallowed reports whether typ matches any pattern of the denylist. Air is
// never disallowed.
func (c *Classifier) Disallowed(typ string) bool {
	if isAir(typ) {
		return false
	}
	return matchAny(c.patterns, typ)
}

// Patterns returns the source of the compiled patterns.
func (c *Classifier) Patterns() []string {
	out := make([]string, len(c.patterns))
	for i, p := range c.patterns {
		out[i] = strings.TrimSuffix(strings.TrimPrefix(p.String(), "^(?:"), ")$")
	}
	return out
}

func isAir(typ string) bool {
	switch typ {
	case format.Air, "minecraft:cave_air", "minecraft:void_air":
		return true
	}
	return false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
