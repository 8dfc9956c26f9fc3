package sieve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/oriumgames/sieve/format"
	"github.com/oriumgames/sieve/region"
)

// memRegion is an in-memory region.Region. Documents are copied on every read
// and write, like a region file that decodes and encodes them.
type memRegion struct {
	mu       sync.Mutex
	chunks   map[world.ChunkPos]format.Compound
	broken   map[world.ChunkPos]bool
	failSave bool
	writes   int
	closed   bool
}

func newMemRegion() *memRegion {
	return &memRegion{chunks: make(map[world.ChunkPos]format.Compound), broken: make(map[world.ChunkPos]bool)}
}

func (r *memRegion) ReadChunk(pos world.ChunkPos) (format.Compound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken[pos] {
		return nil, fmt.Errorf("chunk %v: corrupt sector", pos)
	}
	doc, ok := r.chunks[pos]
	if !ok {
		return nil, region.ErrChunkNotFound
	}
	return cloneCompound(doc), nil
}

func (r *memRegion) WriteChunk(pos world.ChunkPos, doc format.Compound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave {
		return errors.New("disk full")
	}
	r.chunks[pos] = cloneCompound(doc)
	r.writes++
	return nil
}

func (r *memRegion) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *memRegion) put(pos world.ChunkPos, doc format.Compound) {
	r.chunks[pos] = doc
}

// memOpener opens memRegions by path. Paths without a region fail to open.
type memOpener struct {
	mu       sync.Mutex
	regions  map[string]*memRegion
	writable map[string]bool
	opens    int
}

func newMemOpener() *memOpener {
	return &memOpener{regions: make(map[string]*memRegion), writable: make(map[string]bool)}
}

func (o *memOpener) Open(path string, writable bool) (region.Region, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	r, ok := o.regions[path]
	if !ok {
		return nil, fmt.Errorf("open %s: corrupt header", path)
	}
	o.writable[path] = o.writable[path] || writable
	return r, nil
}

func (o *memOpener) region(path string) *memRegion {
	r, ok := o.regions[path]
	if !ok {
		r = newMemRegion()
		o.regions[path] = r
	}
	return r
}

// memSink collects composite chunks.
type memSink struct {
	mu     sync.Mutex
	chunks map[world.ChunkPos]format.Compound
	fail   bool
}

func newMemSink() *memSink {
	return &memSink{chunks: make(map[world.ChunkPos]format.Compound)}
}

func (s *memSink) WriteChunk(pos world.ChunkPos, doc format.Compound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink closed")
	}
	s.chunks[pos] = doc
	return nil
}

func cloneCompound(c format.Compound) format.Compound {
	out := make(format.Compound, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneCompound(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []int64:
		return append([]int64(nil), v...)
	default:
		return v
	}
}

// blocks describes the non-air blocks of a section by local position.
type blocks map[cube.Pos]string

// sectionOf builds a section compound at height y holding the given blocks
// over air.
func sectionOf(y int, b blocks) format.Compound {
	names := []string{format.Air}
	index := map[string]int{format.Air: 0}
	indices := make([]int, format.SectionVolume)
	for pos, name := range b {
		i, ok := index[name]
		if !ok {
			i = len(names)
			index[name] = i
			names = append(names, name)
		}
		indices[format.PosIndex(pos)] = i
	}
	return format.NewSection(y, names, indices).Encode()
}

// chunkOf builds a chunk document at pos with the given sections.
func chunkOf(pos world.ChunkPos, sections ...format.Compound) format.Compound {
	list := make([]any, len(sections))
	for i, s := range sections {
		list[i] = s
	}
	return format.Compound{
		"DataVersion":      int32(3953),
		format.TagXPos:     pos[0],
		format.TagZPos:     pos[1],
		"Status":           "minecraft:full",
		format.TagSections: list,
	}
}

// wideSection builds a section at height y whose 32 entry palette needs five
// bits per index, so its data length differs between layouts. Cell i holds
// palette entry i%32; entry 31 is persistent=false oak leaves.
func wideSection(y int, layout format.Layout) format.Compound {
	names := make([]string, 32)
	names[0] = format.Air
	for i := 1; i < 31; i++ {
		names[i] = fmt.Sprintf("minecraft:test_block_%d", i)
	}
	names[31] = "minecraft:oak_leaves"
	indices := make([]int, format.SectionVolume)
	for i := range indices {
		indices[i] = i % len(names)
	}
	sec := format.NewSection(y, names, indices)
	sec.Layout = layout
	sec.Palette[31][format.TagProperties] = format.Compound{"persistent": "false"}
	return sec.Encode()
}
