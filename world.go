package sieve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotWorld is returned for a directory that holds no level.dat.
var ErrNotWorld = errors.New("not a world folder")

// IsWorld reports whether dir is a world folder.
func IsWorld(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "level.dat"))
	return err == nil && !info.IsDir()
}

// RegionFiles returns the block region files of the world in dir.
func RegionFiles(dir string) ([]string, error) {
	return worldFiles(dir, "region", ".mca")
}

// EntityRegionFiles returns the entity region files of the world in dir.
func EntityRegionFiles(dir string) ([]string, error) {
	return worldFiles(dir, "entities", ".mca")
}

// PlayerDataFiles returns the player data files of the world in dir.
func PlayerDataFiles(dir string) ([]string, error) {
	return worldFiles(dir, "playerdata", ".dat")
}

// worldFiles lists the files of a world subdirectory with the given
// extension, sorted by name. A missing subdirectory holds no files.
func worldFiles(dir, sub, ext string) ([]string, error) {
	if !IsWorld(dir) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotWorld)
	}
	entries, err := os.ReadDir(filepath.Join(dir, sub))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sub, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, sub, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}
