package sieve

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
)

// Occurrence is a disallowed block found during a scan.
type Occurrence struct {
	// File is the region file the block was read from.
	File string
	// Type is the block's identifier, for example minecraft:spawner.
	Type string
	// Pos is the global block position.
	Pos cube.Pos
}

// ChunkError is a failure tied to a single chunk of a region file.
type ChunkError struct {
	File  string
	Chunk world.ChunkPos
	Err   error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s: chunk %d,%d: %v", e.File, e.Chunk[0], e.Chunk[1], e.Err)
}

// Unwrap returns the underlying error.
func (e *ChunkError) Unwrap() error { return e.Err }

// Result is the aggregate outcome of a scan.
type Result struct {
	// Findings maps a block type to every position it was found at.
	Findings map[string][]Occurrence
	// Failed lists region files that could not be opened or that held at
	// least one unreadable chunk. Each file is listed once.
	Failed []string
	// WriteFailures lists chunks whose mutated document could not be written
	// back.
	WriteFailures []*ChunkError

	// Regions is the number of region files fully processed.
	Regions int
	// Chunks is the number of chunks read.
	Chunks int
	// Mutated is the number of chunks written back after mutation.
	Mutated int
	// MalformedSections is the number of sections skipped because their
	// block data could not be decoded.
	MalformedSections int
}

func newResult() *Result {
	return &Result{Findings: make(map[string][]Occurrence)}
}

// Count returns the total number of occurrences.
func (r *Result) Count() int {
	n := 0
	for _, occ := range r.Findings {
		n += len(occ)
	}
	return n
}

// Sorted returns every occurrence ordered by type, file and position.
func (r *Result) Sorted() []Occurrence {
	out := make([]Occurrence, 0, r.Count())
	for _, occ := range r.Findings {
		out = append(out, occ...)
	}
	slices.SortFunc(out, compareOccurrence)
	return out
}

// Types returns the block types that were found, sorted.
func (r *Result) Types() []string {
	types := make([]string, 0, len(r.Findings))
	for t := range r.Findings {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *Result) add(occ []Occurrence) {
	for _, o := range occ {
		r.Findings[o.Type] = append(r.Findings[o.Type], o)
	}
}

func compareOccurrence(a, b Occurrence) int {
	return cmp.Or(
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.File, b.File),
		cmp.Compare(a.Pos[0], b.Pos[0]),
		cmp.Compare(a.Pos[1], b.Pos[1]),
		cmp.Compare(a.Pos[2], b.Pos[2]),
	)
}
