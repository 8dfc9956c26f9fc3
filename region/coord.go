package region

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/df-mc/dragonfly/server/world"
)

// Size is the number of chunks along each horizontal edge of a region.
const Size = 32

// ChunkCount is the number of chunks a region file can hold.
const ChunkCount = Size * Size

// Coord is the grid coordinate of a region file.
type Coord struct {
	X, Z int
}

// String returns the coordinate in "x,z" form.
func (c Coord) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Z)
}

// FileName returns the region file name for the coordinate, r.<x>.<z>.mca.
func (c Coord) FileName() string {
	return fmt.Sprintf("r.%d.%d.mca", c.X, c.Z)
}

// Chunk returns the global position of the chunk at local offset (x, z) in the
// region.
func (c Coord) Chunk(x, z int) world.ChunkPos {
	return world.ChunkPos{int32(c.X*Size + x), int32(c.Z*Size + z)}
}

// Chunks returns the global positions of all chunks of the region, X-major.
func (c Coord) Chunks() []world.ChunkPos {
	chunks := make([]world.ChunkPos, 0, ChunkCount)
	for x := range Size {
		for z := range Size {
			chunks = append(chunks, c.Chunk(x, z))
		}
	}
	return chunks
}

// Contains reports whether the chunk at pos is stored in the region.
func (c Coord) Contains(pos world.ChunkPos) bool {
	return CoordOf(pos) == c
}

// CoordOf returns the coordinate of the region holding the chunk at pos.
func CoordOf(pos world.ChunkPos) Coord {
	return Coord{X: int(pos[0]) >> 5, Z: int(pos[1]) >> 5}
}

// local returns the offset of pos inside its region.
func local(pos world.ChunkPos) (x, z int) {
	return int(pos[0]) & (Size - 1), int(pos[1]) & (Size - 1)
}

// ParseFileName extracts the region coordinate embedded in a region file name
// such as r.-1.3.mca. Directories in path are ignored.
func ParseFileName(path string) (Coord, error) {
	name := filepath.Base(path)
	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), ".")
	if len(parts) != 3 {
		return Coord{}, fmt.Errorf("region file name %q: want r.<x>.<z>.mca", name)
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return Coord{}, fmt.Errorf("region file name %q: parse x: %w", name, err)
	}
	z, err := strconv.Atoi(parts[2])
	if err != nil {
		return Coord{}, fmt.Errorf("region file name %q: parse z: %w", name, err)
	}
	return Coord{X: x, Z: z}, nil
}
