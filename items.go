package sieve

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultItemDenylist holds the item patterns that are offending in any
// quantity.
var DefaultItemDenylist = []string{
	"minecraft:beacon",
	"minecraft:totem_of_undying",
	"minecraft:trident",
	"minecraft:reinforced_deepslate",
	"minecraft:wither_skeleton_skull",
	"minecraft:dragon_egg",
	"minecraft:dragon_head",
	"minecraft:nether_star",
	"minecraft:elytra",
	"minecraft:phantom_membrane",
	"minecraft:command_block.*",
	"minecraft:.*command_block",
	"minecraft:light",
	"minecraft:.*spawn_egg",
	"minecraft:debug_stick",
	"minecraft:jigsaw",
	"minecraft:structure_block",
	"minecraft:barrier",
	"minecraft:structure_void",
	"minecraft:spawner",
	"minecraft:tadpole_bucket",
}

// DefaultItemGraylist maps item patterns to the count from which a player's
// holdings become offending.
var DefaultItemGraylist = map[string]int{
	"minecraft:enchanted_golden_apple": 200,
	"minecraft:wither_rose":            100,
	"minecraft:netherite_pickaxe":      10,
}

// GrayRule flags an item once a player holds at least Threshold of it.
type GrayRule struct {
	Pattern   *regexp.Regexp
	Threshold int
}

// ItemRules classifies inventory items by identifier and count.
type ItemRules struct {
	deny []*regexp.Regexp
	gray []GrayRule
}

// NewItemRules compiles the item denylist and graylist. Patterns follow the
// same rules as NewClassifier.
func NewItemRules(deny []string, gray map[string]int) (*ItemRules, error) {
	d, err := compilePatterns(deny)
	if err != nil {
		return nil, fmt.Errorf("item denylist: %w", err)
	}

	// Graylist patterns are evaluated in sorted order.
	keys := make([]string, 0, len(gray))
	for k := range gray {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rules := &ItemRules{deny: d}
	for _, k := range keys {
		re, err := compilePatterns([]string{k})
		if err != nil {
			return nil, fmt.Errorf("item graylist: %w", err)
		}
		if len(re) == 0 {
			continue
		}
		if gray[k] < 1 {
			return nil, fmt.Errorf("item graylist: threshold for %q must be at least 1, got %d", k, gray[k])
		}
		rules.gray = append(rules.gray, GrayRule{Pattern: re[0], Threshold: gray[k]})
	}
	return rules, nil
}

// Offending reports whether holding count of the item id breaks a rule.
func (r *ItemRules) Offending(id string, count int) bool {
	if matchAny(r.deny, id) {
		return true
	}
	for _, g := range r.gray {
		if g.Pattern.MatchString(id) && count >= g.Threshold {
			return true
		}
	}
	return false
}
