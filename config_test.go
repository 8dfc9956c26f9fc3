package sieve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sieve.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, DefaultThreads, cfg.Threads)
	require.Equal(t, DefaultBlockDenylist, cfg.BlockDenylist)
	require.Equal(t, DefaultItemGraylist, cfg.ItemGraylist)
	require.Empty(t, cfg.Sections)

	ids, err := cfg.Allowlist()
	require.NoError(t, err)
	require.Len(t, ids, len(DefaultPlayerAllowlist))
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
threads: 8
block_denylist: ["minecraft:bedrock"]
item_denylist: []
item_graylist:
  minecraft:diamond: 64
player_allowlist: []
sections:
  - name: top
    region: {start: "0,0,0", end: "15,15,15"}
    offset: 16
`))
	require.NoError(t, err)

	require.Equal(t, 8, cfg.Threads)
	require.Equal(t, []string{"minecraft:bedrock"}, cfg.BlockDenylist)
	require.Empty(t, cfg.ItemDenylist)
	require.NotNil(t, cfg.ItemDenylist)
	require.Equal(t, map[string]int{"minecraft:diamond": 64}, cfg.ItemGraylist)
	require.Empty(t, cfg.PlayerAllowlist)

	c, err := cfg.Classifier()
	require.NoError(t, err)
	require.True(t, c.Disallowed("minecraft:bedrock"))
	require.False(t, c.Disallowed("minecraft:spawner"))

	rules, err := cfg.ItemRules()
	require.NoError(t, err)
	require.False(t, rules.Offending("minecraft:elytra", 1))
	require.True(t, rules.Offending("minecraft:diamond", 64))

	off, ok := cfg.Plan().Offset("any", [3]int{3, 3, 3})
	require.True(t, ok)
	require.Equal(t, 16, off)
}

func TestLoadConfigPartial(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "threads: 0\nblock_denylist: [\"minecraft:tnt\"]\n"))
	require.NoError(t, err)
	require.Equal(t, DefaultThreads, cfg.Threads)
	require.Equal(t, []string{"minecraft:tnt"}, cfg.BlockDenylist)
	require.Equal(t, DefaultItemDenylist, cfg.ItemDenylist)
	require.Equal(t, DefaultPlayerAllowlist, cfg.PlayerAllowlist)
}

func TestLoadConfigInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"pattern":   "block_denylist: [\"minecraft:(\"]\n",
		"threshold": "item_graylist: {\"minecraft:diamond\": 0}\n",
		"uuid":      "player_allowlist: [\"not-a-uuid\"]\n",
		"section":   "sections: [{name: a}, {name: a}]\n",
		"yaml":      "threads: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigAllowlistTrimsSpace(t *testing.T) {
	cfg := Config{PlayerAllowlist: []string{" " + DefaultPlayerAllowlist[0] + " "}}
	ids, err := cfg.Allowlist()
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{uuid.MustParse(DefaultPlayerAllowlist[0])}, ids)
}
