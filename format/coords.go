package format

import "github.com/df-mc/dragonfly/server/block/cube"

const (
	// SectionSize is the edge length of a section in blocks.
	SectionSize = 16
	// SectionVolume is the number of blocks, and so of packed indices, in a
	// section.
	SectionVolume = SectionSize * SectionSize * SectionSize
)

// IndexPos returns the section-local position of flat index i. X varies
// fastest, then Z, then Y.
func IndexPos(i int) cube.Pos {
	return cube.Pos{i & 0xF, (i >> 8) & 0xF, (i >> 4) & 0xF}
}

// PosIndex returns the flat index of a section-local position. It is the
// inverse of IndexPos.
func PosIndex(pos cube.Pos) int {
	return (pos[1]&0xF)<<8 | (pos[2]&0xF)<<4 | pos[0]&0xF
}

// FloorDiv16 returns v divided by 16, rounded towards negative infinity.
func FloorDiv16(v int) int {
	return v >> 4
}
