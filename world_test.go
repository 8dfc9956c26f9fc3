package sieve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestWorldFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "level.dat"))
	touch(t, filepath.Join(dir, "region", "r.1.0.mca"))
	touch(t, filepath.Join(dir, "region", "r.0.0.mca"))
	touch(t, filepath.Join(dir, "region", "r.0.0.mca.bak"))
	touch(t, filepath.Join(dir, "entities", "r.0.0.mca"))
	touch(t, filepath.Join(dir, "playerdata", "c6307390-acda-48f8-8584-42087ad918f4.dat"))
	touch(t, filepath.Join(dir, "playerdata", "c6307390-acda-48f8-8584-42087ad918f4.dat_old"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "region", "sub.mca"), 0o755))

	require.True(t, IsWorld(dir))

	files, err := RegionFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "region", "r.0.0.mca"),
		filepath.Join(dir, "region", "r.1.0.mca"),
	}, files)

	files, err = EntityRegionFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "entities", "r.0.0.mca")}, files)

	files, err = PlayerDataFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestWorldFilesMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "level.dat"))

	files, err := RegionFiles(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestWorldFilesNotWorld(t *testing.T) {
	_, err := RegionFiles(t.TempDir())
	require.ErrorIs(t, err, ErrNotWorld)
	require.False(t, IsWorld(t.TempDir()))
}
