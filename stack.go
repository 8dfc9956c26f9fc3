package sieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/oriumgames/sieve/format"
	"github.com/oriumgames/sieve/region"
	"golang.org/x/sync/errgroup"
)

// Source is a region file taking part in a stacking run.
type Source struct {
	// World is the name of the world the file belongs to, matched against
	// PlanSection.World.
	World string
	// Path is the path of the region file.
	Path string
	// Layout is the word layout the file's block data was written with.
	Layout format.Layout
}

// Sink receives the composite chunk documents produced by a Stacker. It is
// called from several goroutines at once.
type Sink interface {
	WriteChunk(pos world.ChunkPos, doc format.Compound) error
}

// StackResult is the outcome of a stacking run.
type StackResult struct {
	// Chunks is the number of composite chunks handed to the sink.
	Chunks int
	// Placed is the number of blocks placed in composite chunks.
	Placed int
	// Dropped is the number of source blocks outside every plan section, or
	// moved outside the representable height range.
	Dropped int
	// FailedSources lists source files that could not be opened.
	FailedSources []string
	// ReadFailures lists source chunks that could not be read.
	ReadFailures []*ChunkError
	// WriteFailures lists composite chunks the sink rejected.
	WriteFailures []*ChunkError
}

// StackOption configures a Stacker.
type StackOption func(*Stacker)

// WithStackThreads sets the number of regions stacked at the same time.
func WithStackThreads(n int) StackOption {
	return func(s *Stacker) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithStackLogger sets the logger failures are reported to.
func WithStackLogger(l *slog.Logger) StackOption {
	return func(s *Stacker) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStackMetrics sets the metrics updated by the run.
func WithStackMetrics(m *Metrics) StackOption {
	return func(s *Stacker) {
		s.metrics = m
	}
}

// WithStackLayout sets the word layout composite sections are written with.
// Sources are read with their own Source.Layout.
func WithStackLayout(l format.Layout) StackOption {
	return func(s *Stacker) {
		s.layout = l
	}
}

// Stacker merges several worlds into one by moving the blocks of each source
// region vertically according to a Plan.
type Stacker struct {
	opener region.Opener
	plan   *Plan
	sink   Sink

	threads int
	log     *slog.Logger
	metrics *Metrics
	layout  format.Layout
}

// NewStacker creates a Stacker reading sources through opener and writing
// composite chunks to sink.
func NewStacker(opener region.Opener, plan *Plan, sink Sink, opts ...StackOption) *Stacker {
	s := &Stacker{
		opener:  opener,
		plan:    plan,
		sink:    sink,
		threads: DefaultThreads,
		log:     slog.Default(),
		layout:  format.LayoutPacked,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stack stacks the sources. Sources sharing a region coordinate are merged
// chunk by chunk in the order given, so a later source overwrites an earlier
// one where both place a block in the same cell. The returned error joins the
// sink's write failures and, if ctx was cancelled, ctx.Err().
func (s *Stacker) Stack(ctx context.Context, sources []Source) (*StackResult, error) {
	res := &StackResult{}

	// Group sources by region
	groups := make(map[region.Coord][]Source)
	var coords []region.Coord
	for _, src := range sources {
		coord, err := region.ParseFileName(src.Path)
		if err != nil {
			s.log.Warn("skip source", "file", src.Path, "err", err)
			res.FailedSources = append(res.FailedSources, src.Path)
			continue
		}
		if _, ok := groups[coord]; !ok {
			coords = append(coords, coord)
		}
		groups[coord] = append(groups[coord], src)
	}

	outcomes := make([]*StackResult, len(coords))
	var g errgroup.Group
	g.SetLimit(s.threads)
	for i, coord := range coords {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = s.stackRegion(ctx, coord, groups[coord])
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		res.Chunks += o.Chunks
		res.Placed += o.Placed
		res.Dropped += o.Dropped
		res.FailedSources = append(res.FailedSources, o.FailedSources...)
		res.ReadFailures = append(res.ReadFailures, o.ReadFailures...)
		res.WriteFailures = append(res.WriteFailures, o.WriteFailures...)
	}
	slices.Sort(res.FailedSources)

	var errs []error
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range res.WriteFailures {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

type openSource struct {
	Source
	r region.Region
}

// stackRegion stacks all sources of one region coordinate. Only the calling
// goroutine touches the returned result.
func (s *Stacker) stackRegion(ctx context.Context, coord region.Coord, sources []Source) *StackResult {
	out := &StackResult{}

	opened := make([]openSource, 0, len(sources))
	for _, src := range sources {
		r, err := s.opener.Open(src.Path, false)
		if err != nil {
			s.log.Warn("open source failed", "file", src.Path, "err", err)
			out.FailedSources = append(out.FailedSources, src.Path)
			continue
		}
		opened = append(opened, openSource{Source: src, r: r})
	}
	defer func() {
		for _, o := range opened {
			if err := o.r.Close(); err != nil {
				s.log.Warn("close source failed", "file", o.Path, "err", err)
			}
		}
	}()
	if len(opened) == 0 {
		return out
	}

	for _, pos := range coord.Chunks() {
		if ctx.Err() != nil {
			break
		}
		col := newColumn(pos)
		for _, o := range opened {
			doc, err := o.r.ReadChunk(pos)
			if errors.Is(err, region.ErrChunkNotFound) {
				continue
			}
			if err != nil {
				s.log.Warn("read chunk failed", "file", o.Path, "chunk", pos, "err", err)
				out.ReadFailures = append(out.ReadFailures, &ChunkError{File: o.Path, Chunk: pos, Err: err})
				continue
			}
			if col.dataVersion == nil {
				col.dataVersion = doc["DataVersion"]
			}
			s.place(col, o.Source, pos, doc, out)
		}
		if len(col.bands) == 0 {
			continue
		}

		err := s.sink.WriteChunk(pos, col.document(s.layout))
		s.metrics.chunkWritten(err)
		if err != nil {
			s.log.Error("write chunk failed", "chunk", pos, "err", err)
			out.WriteFailures = append(out.WriteFailures, &ChunkError{File: coord.FileName(), Chunk: pos, Err: err})
			continue
		}
		out.Chunks++
	}
	return out
}

// place remaps every block of a source chunk into col.
func (s *Stacker) place(col *column, src Source, pos world.ChunkPos, doc format.Compound, out *StackResult) {
	for _, c := range format.ChunkSections(doc) {
		sec, err := format.ReadSection(c, src.Layout)
		if err != nil {
			if !errors.Is(err, format.ErrSectionAbsent) {
				s.log.Debug("skip malformed section", "file", src.Path, "chunk", pos, "err", err)
			}
			continue
		}

		names := sec.Names()
		base := cube.Pos{int(pos[0]) << 4, sec.Y << 4, int(pos[1]) << 4}
		for i, idx := range sec.Indices {
			p := base.Add(format.IndexPos(i))
			offset, ok := s.plan.Offset(src.World, p)
			if !ok {
				out.Dropped++
				continue
			}
			targetY := p[1] + offset
			band := format.FloorDiv16(targetY)
			if band < math.MinInt8 || band > math.MaxInt8 {
				out.Dropped++
				continue
			}
			local := cube.Pos{p[0] & 0xF, targetY - band<<4, p[2] & 0xF}
			col.band(band).set(format.PosIndex(local), names[idx])
			out.Placed++
		}
	}
}

// column accumulates the composite blocks of one chunk, split in 16 block
// high bands.
type column struct {
	pos         world.ChunkPos
	dataVersion any
	bands       map[int]*band
}

func newColumn(pos world.ChunkPos) *column {
	return &column{pos: pos, bands: make(map[int]*band)}
}

func (c *column) band(y int) *band {
	b, ok := c.bands[y]
	if !ok {
		b = &band{seen: make(map[string]bool)}
		c.bands[y] = b
	}
	return b
}

// document builds the composite chunk document, one section per band in
// ascending order.
func (c *column) document(layout format.Layout) format.Compound {
	ys := make([]int, 0, len(c.bands))
	for y := range c.bands {
		ys = append(ys, y)
	}
	slices.Sort(ys)

	sections := make([]any, len(ys))
	for i, y := range ys {
		sec := c.bands[y].section(y)
		sec.Layout = layout
		sections[i] = sec.Encode()
	}
	doc := format.Compound{
		format.TagXPos:     c.pos[0],
		format.TagZPos:     c.pos[1],
		"yPos":             int32(ys[0]),
		"Status":           "minecraft:full",
		format.TagSections: sections,
	}
	if c.dataVersion != nil {
		doc["DataVersion"] = c.dataVersion
	}
	return doc
}

// band is one 16x16x16 cube of a composite column. Unset cells hold "".
type band struct {
	cells [format.SectionVolume]string
	order []string
	seen  map[string]bool
}

func (b *band) set(i int, typ string) {
	b.cells[i] = typ
	if !b.seen[typ] {
		b.seen[typ] = true
		b.order = append(b.order, typ)
	}
}

// section converts the band to a section. The palette lists the block types
// still present in first-seen order, followed by air if a cell was never set
// and air is not already in the palette.
func (b *band) section(y int) *format.Section {
	present := make(map[string]bool, len(b.order))
	unset := false
	for _, typ := range b.cells {
		if typ == "" {
			unset = true
			continue
		}
		present[typ] = true
	}

	index := make(map[string]int, len(present)+1)
	names := make([]string, 0, len(present)+1)
	for _, typ := range b.order {
		if present[typ] {
			index[typ] = len(names)
			names = append(names, typ)
		}
	}
	if _, ok := index[format.Air]; unset && !ok {
		index[format.Air] = len(names)
		names = append(names, format.Air)
	}

	indices := make([]int, format.SectionVolume)
	for i, typ := range b.cells {
		if typ == "" {
			typ = format.Air
		}
		indices[i] = index[typ]
	}
	return format.NewSection(y, names, indices)
}

// RegionSink writes composite chunks to region files in a directory,
// creating one file per region coordinate.
type RegionSink struct {
	dir      string
	provider region.Provider

	mu    sync.Mutex
	files map[region.Coord]*region.File
}

// NewRegionSink creates a sink writing region files to dir.
func NewRegionSink(dir string, provider region.Provider) (*RegionSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &RegionSink{dir: dir, provider: provider, files: make(map[region.Coord]*region.File)}, nil
}

// WriteChunk writes doc to the region file holding pos.
func (s *RegionSink) WriteChunk(pos world.ChunkPos, doc format.Compound) error {
	coord := region.CoordOf(pos)

	s.mu.Lock()
	f, ok := s.files[coord]
	if !ok {
		var err error
		f, err = s.provider.Create(filepath.Join(s.dir, coord.FileName()))
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.files[coord] = f
	}
	s.mu.Unlock()

	return f.WriteChunk(pos, doc)
}

// Close closes every region file the sink created.
func (s *RegionSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for coord, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, coord)
	}
	return errors.Join(errs...)
}
