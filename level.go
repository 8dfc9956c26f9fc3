package sieve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/klauspost/compress/gzip"
	"github.com/oriumgames/sieve/format"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// AlignedDataVersion is the first data version storing block data without
// indices straddling words.
const AlignedDataVersion = 2529

// Level is the part of a world's level.dat the scanner reports on.
type Level struct {
	Name        string
	DataVersion int
	// Version is the name of the game version that last saved the world.
	Version    string
	Spawn      cube.Pos
	LastPlayed time.Time
}

// Layout returns the word layout the world's chunks are expected to use.
func (l Level) Layout() format.Layout {
	if l.DataVersion >= AlignedDataVersion {
		return format.LayoutAligned
	}
	return format.LayoutPacked
}

// ErrLayoutConflict is returned by ChooseLayout when a forced layout disagrees
// with the world's level.dat and chunks would be written back.
var ErrLayoutConflict = errors.New("block data layout conflicts with level.dat")

// ChooseLayout picks the word layout to read a world with. level is nil when
// the world's level.dat could not be read. The layout implied by level wins
// over requested unless forced is set. A forced layout that disagrees with
// level is refused when the world is to be written.
func ChooseLayout(level *Level, requested format.Layout, forced, writing bool) (format.Layout, error) {
	if level == nil {
		return requested, nil
	}
	expected := level.Layout()
	if !forced {
		return expected, nil
	}
	if requested != expected && writing {
		return requested, fmt.Errorf("%v requested, data version %d uses %v: %w", requested, level.DataVersion, expected, ErrLayoutConflict)
	}
	return requested, nil
}

// ReadLevel reads the level.dat of the world in dir.
func ReadLevel(dir string) (Level, error) {
	f, err := os.Open(filepath.Join(dir, "level.dat"))
	if err != nil {
		return Level{}, err
	}
	defer f.Close()
	return decodeLevel(bufio.NewReader(f))
}

func decodeLevel(r io.Reader) (Level, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return Level{}, fmt.Errorf("create gzip reader: %w", err)
	}
	defer zr.Close()

	var m map[string]any
	if err := nbt.NewDecoderWithEncoding(zr, nbt.BigEndian).Decode(&m); err != nil {
		return Level{}, fmt.Errorf("decode level.dat: %w", err)
	}
	data, ok := format.Child(m, "Data")
	if !ok {
		return Level{}, fmt.Errorf("decode level.dat: no Data compound")
	}

	var l Level
	l.Name, _ = format.String(data, "LevelName")
	l.DataVersion, _ = format.Int(data, "DataVersion")
	if v, ok := format.Child(data, "Version"); ok {
		l.Version, _ = format.String(v, format.TagName)
	}
	if x, ok := format.Int(data, "SpawnX"); ok {
		if y, ok := format.Int(data, "SpawnY"); ok {
			if z, ok := format.Int(data, "SpawnZ"); ok {
				l.Spawn = cube.Pos{x, y, z}
			}
		}
	}
	if ms, ok := format.Int(data, "LastPlayed"); ok {
		l.LastPlayed = time.UnixMilli(int64(ms))
	}
	return l, nil
}
