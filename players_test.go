package sieve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/stretchr/testify/require"
)

func stack(id string, count, slot byte) map[string]any {
	return map[string]any{"id": id, "Count": count, "Slot": slot}
}

func writePlayer(t *testing.T, dir string, id uuid.UUID, data map[string]any) {
	t.Helper()
	path := filepath.Join(dir, "playerdata", id.String()+".dat")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := gzip.NewWriter(f)
	require.NoError(t, nbt.NewEncoderWithEncoding(zw, nbt.BigEndian).Encode(data))
	require.NoError(t, zw.Close())
}

func playerWorld(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "level.dat"))
	return dir
}

func TestScanPlayers(t *testing.T) {
	dir := playerWorld(t)
	cheater := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	clean := uuid.MustParse("66666666-7777-8888-9999-000000000000")
	admin := uuid.MustParse(DefaultPlayerAllowlist[0])

	writePlayer(t, dir, cheater, map[string]any{
		"Inventory": []map[string]any{
			stack("minecraft:netherite_pickaxe", 6, 0),
			stack("minecraft:stone", 64, 1),
			stack("minecraft:netherite_pickaxe", 4, 2),
			{
				"id": "minecraft:red_shulker_box", "Count": byte(1), "Slot": byte(3),
				"tag": map[string]any{"BlockEntityTag": map[string]any{"Items": []map[string]any{
					stack("minecraft:elytra", 1, 0),
					stack("minecraft:stone", 1, 1),
				}}},
			},
		},
		"EnderItems": []map[string]any{
			stack("minecraft:zombie_spawn_egg", 2, 5),
		},
	})
	writePlayer(t, dir, clean, map[string]any{
		"Inventory":  []map[string]any{stack("minecraft:netherite_pickaxe", 9, 0)},
		"EnderItems": []map[string]any{stack("minecraft:dirt", 1, 0)},
	})
	writePlayer(t, dir, admin, map[string]any{
		"Inventory": []map[string]any{stack("minecraft:elytra", 1, 0)},
	})
	touch(t, filepath.Join(dir, "playerdata", "not-a-player.dat"))
	broken := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playerdata", broken.String()+".dat"), []byte("garbage"), 0o644))

	res, err := ScanPlayers(context.Background(), dir, WithPlayerThreads(3))
	require.NoError(t, err)

	require.Equal(t, 2, res.Players)
	require.Equal(t, []uuid.UUID{admin}, res.Ignored)
	require.Len(t, res.Failed, 2)
	require.Equal(t, map[uuid.UUID][]PlayerItem{
		cheater: {
			{ID: "minecraft:netherite_pickaxe", Count: 10, Slots: []int{0, 2}},
			{ID: "minecraft:elytra", Count: 1, Slots: []int{0}},
			{ID: "minecraft:zombie_spawn_egg", Count: 2, Slots: []int{5}},
		},
	}, res.Offending)
}

func TestScanPlayersCustomRules(t *testing.T) {
	dir := playerWorld(t)
	admin := uuid.MustParse(DefaultPlayerAllowlist[0])
	writePlayer(t, dir, admin, map[string]any{
		"Inventory": []map[string]any{stack("minecraft:diamond", 32, 0), stack("minecraft:diamond", 32, 1)},
	})

	rules, err := NewItemRules(nil, map[string]int{"minecraft:diamond": 64})
	require.NoError(t, err)
	res, err := ScanPlayers(context.Background(), dir, WithItemRules(rules), WithAllowlist(nil))
	require.NoError(t, err)

	require.Empty(t, res.Ignored)
	require.Equal(t, []PlayerItem{{ID: "minecraft:diamond", Count: 64, Slots: []int{0, 1}}}, res.Offending[admin])
}

func TestScanPlayersNoPlayerData(t *testing.T) {
	res, err := ScanPlayers(context.Background(), playerWorld(t))
	require.NoError(t, err)
	require.Zero(t, res.Players)
	require.Empty(t, res.Offending)

	_, err = ScanPlayers(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNotWorld)
}

func TestScanPlayersCancelled(t *testing.T) {
	dir := playerWorld(t)
	writePlayer(t, dir, uuid.New(), map[string]any{
		"Inventory": []map[string]any{stack("minecraft:elytra", 1, 0)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ScanPlayers(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, res.Players)
}
