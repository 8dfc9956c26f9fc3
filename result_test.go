package sieve

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/stretchr/testify/require"
)

func TestResultSorted(t *testing.T) {
	res := newResult()
	res.add([]Occurrence{
		{File: "r.1.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{40, 1, 0}},
		{File: "r.0.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{3, 9, 1}},
		{File: "r.0.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{3, -2, 1}},
		{File: "r.0.0.mca", Type: "minecraft:beacon", Pos: cube.Pos{7, 7, 7}},
	})

	require.Equal(t, 4, res.Count())
	require.Equal(t, []string{"minecraft:beacon", "minecraft:spawner"}, res.Types())
	require.Equal(t, []Occurrence{
		{File: "r.0.0.mca", Type: "minecraft:beacon", Pos: cube.Pos{7, 7, 7}},
		{File: "r.0.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{3, -2, 1}},
		{File: "r.0.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{3, 9, 1}},
		{File: "r.1.0.mca", Type: "minecraft:spawner", Pos: cube.Pos{40, 1, 0}},
	}, res.Sorted())
}

func TestChunkError(t *testing.T) {
	cause := errors.New("disk full")
	err := &ChunkError{File: "r.0.-1.mca", Chunk: world.ChunkPos{4, -20}, Err: cause}
	require.Equal(t, "r.0.-1.mca: chunk 4,-20: disk full", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	p := LogProgress{Log: slog.New(slog.NewTextHandler(&buf, nil))}
	p.Update(Update{File: "world/region/r.0.0.mca", FileChunks: 12, Done: 3, Total: 8})

	out := buf.String()
	require.Contains(t, out, `msg="scan progress"`)
	require.Contains(t, out, "file=r.0.0.mca")
	require.Contains(t, out, "done=3")
	require.Contains(t, out, "total=8")
}
