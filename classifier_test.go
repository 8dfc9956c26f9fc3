package sieve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifierSpawnEgg(t *testing.T) {
	c, err := NewClassifier([]string{"minecraft:.*_spawn_egg"})
	require.NoError(t, err)

	require.True(t, c.Disallowed("minecraft:zombie_spawn_egg"))
	require.False(t, c.Disallowed("minecraft:egg"))
}

func TestClassifierMatchesWholeIdentifier(t *testing.T) {
	c := MustClassifier([]string{"minecraft:spawner", "minecraft:beacon"})

	require.True(t, c.Disallowed("minecraft:spawner"))
	require.False(t, c.Disallowed("minecraft:spawner_frame"))
	require.False(t, c.Disallowed("xminecraft:beacon"))
	require.False(t, c.Disallowed("minecraft:Beacon"))
}

func TestClassifierNeverFlagsAir(t *testing.T) {
	c := MustClassifier([]string{".*"})

	require.True(t, c.Disallowed("minecraft:stone"))
	for _, air := range []string{"minecraft:air", "minecraft:cave_air", "minecraft:void_air"} {
		require.False(t, c.Disallowed(air), air)
	}
}

func TestClassifierDefaults(t *testing.T) {
	c := MustClassifier(DefaultBlockDenylist)

	for _, typ := range []string{
		"minecraft:command_block",
		"minecraft:chain_command_block",
		"minecraft:command_block_minecart",
		"minecraft:spawner",
		"minecraft:trial_spawner",
		"minecraft:copper_grate",
	} {
		require.True(t, c.Disallowed(typ), typ)
	}
	for _, typ := range []string{"minecraft:stone", "minecraft:exposed_copper_grate", "minecraft:player_head"} {
		require.False(t, c.Disallowed(typ), typ)
	}
}

func TestClassifierInvalidPattern(t *testing.T) {
	_, err := NewClassifier([]string{"minecraft:(unclosed"})
	require.Error(t, err)
	require.Panics(t, func() { MustClassifier([]string{"["}) })
}

func TestClassifierPatterns(t *testing.T) {
	c := MustClassifier([]string{"minecraft:beacon", "", "minecraft:.*_bed"})
	require.Equal(t, []string{"minecraft:beacon", "minecraft:.*_bed"}, c.Patterns())
}

func TestItemRules(t *testing.T) {
	r, err := NewItemRules(DefaultItemDenylist, DefaultItemGraylist)
	require.NoError(t, err)

	require.True(t, r.Offending("minecraft:elytra", 1))
	require.True(t, r.Offending("minecraft:pig_spawn_egg", 3))
	require.False(t, r.Offending("minecraft:egg", 16))

	require.False(t, r.Offending("minecraft:enchanted_golden_apple", 199))
	require.True(t, r.Offending("minecraft:enchanted_golden_apple", 200))
	require.False(t, r.Offending("minecraft:netherite_pickaxe", 9))
	require.True(t, r.Offending("minecraft:netherite_pickaxe", 10))
}

func TestItemRulesInvalid(t *testing.T) {
	_, err := NewItemRules([]string{"("}, nil)
	require.Error(t, err)

	_, err = NewItemRules(nil, map[string]int{"minecraft:diamond": 0})
	require.ErrorContains(t, err, "threshold")

	_, err = NewItemRules(nil, map[string]int{"[": 3})
	require.Error(t, err)
}
