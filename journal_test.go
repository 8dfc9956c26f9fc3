package sieve

import (
	"path/filepath"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)

	file := filepath.Join("world", "region", "r.-1.2.mca")
	_, ok, err := j.Lookup(file)
	require.NoError(t, err)
	require.False(t, ok)

	rec := RegionRecord{Chunks: 812, Findings: []Occurrence{
		{File: file, Type: "minecraft:spawner", Pos: cube.Pos{-20, -60, 1030}},
		{File: file, Type: "minecraft:beacon", Pos: cube.Pos{-1, 319, 1023}},
	}}
	require.NoError(t, j.Record(file, rec))

	got, ok, err := j.Lookup(file)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	_, ok, err = j.Lookup(filepath.Join("world", "region", "..", "region", "r.-1.2.mca"))
	require.NoError(t, err)
	require.True(t, ok)

	// Records survive reopening.
	require.NoError(t, j.Close())
	j, err = OpenJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	got, ok, err = j.Lookup(file)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Findings, got.Findings)

	require.NoError(t, j.Forget(file))
	_, ok, err = j.Lookup(file)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJournalEmptyRecord(t *testing.T) {
	j, err := OpenJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record("r.0.0.mca", RegionRecord{Chunks: 3}))
	got, ok, err := j.Lookup("r.0.0.mca")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, got.Chunks)
	require.Empty(t, got.Findings)
}
