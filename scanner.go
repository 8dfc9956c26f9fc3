package sieve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/oriumgames/sieve/format"
	"github.com/oriumgames/sieve/region"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrLayoutMismatch is recorded for a mutated chunk whose block data would be
// written back with a different number of words than it was read with.
var ErrLayoutMismatch = errors.New("block data does not match the scan layout")

// DefaultThreads is the number of chunks decoded concurrently when no thread
// budget is configured.
const DefaultThreads = 2

// ScanOption configures a Scanner.
type ScanOption func(*Scanner)

// WithThreads sets the thread budget: the maximum number of chunks read and
// decoded at the same time, across all regions.
func WithThreads(n int) ScanOption {
	return func(s *Scanner) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithLogger sets the logger read and write failures are reported to.
func WithLogger(l *slog.Logger) ScanOption {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProgress sets the observer notified as the scan advances.
func WithProgress(p Progress, mode ProgressMode) ScanOption {
	return func(s *Scanner) {
		if p != nil {
			s.progress = p
			s.mode = mode
		}
	}
}

// WithMutators enables the mutation pipeline. Region files are opened for
// writing and every chunk changed by one of the mutators is written back.
func WithMutators(m ...Mutator) ScanOption {
	return func(s *Scanner) {
		s.mutators = append(s.mutators, m...)
	}
}

// WithMetrics sets the metrics updated by the scan.
func WithMetrics(m *Metrics) ScanOption {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithJournal makes the scan skip regions completed in an earlier run
// recorded in j, replaying their findings instead, and record every region
// it completes.
func WithJournal(j *Journal) ScanOption {
	return func(s *Scanner) {
		s.journal = j
	}
}

// WithLayout sets the word layout of the packed block data.
func WithLayout(l format.Layout) ScanOption {
	return func(s *Scanner) {
		s.layout = l
	}
}

// Scanner scans region files for disallowed blocks and optionally mutates
// the chunks it reads.
type Scanner struct {
	opener     region.Opener
	classifier *Classifier

	threads  int
	log      *slog.Logger
	progress Progress
	mode     ProgressMode
	mutators []Mutator
	metrics  *Metrics
	journal  *Journal
	layout   format.Layout
}

// NewScanner creates a Scanner reading regions through opener. A nil
// classifier disables classification, which is useful to only run mutators.
func NewScanner(opener region.Opener, classifier *Classifier, opts ...ScanOption) *Scanner {
	s := &Scanner{
		opener:     opener,
		classifier: classifier,
		threads:    DefaultThreads,
		log:        slog.Default(),
		progress:   NopProgress{},
		layout:     format.LayoutPacked,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan scans the region files and returns the aggregate result. Unreadable
// files and chunks are recorded in the result and never stop the scan. The
// returned error joins the chunk write failures of the mutation pipeline and,
// if ctx was cancelled, ctx.Err(). On cancellation, chunks already being
// processed are finished and the partial result is returned.
func (s *Scanner) Scan(ctx context.Context, files []string) (*Result, error) {
	events := make(chan event, s.threads*4)
	sem := semaphore.NewWeighted(int64(s.threads))

	agg := newAggregator(s, len(files))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			agg.handle(e)
		}
	}()

	var g errgroup.Group
	g.SetLimit(s.threads)
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.scanRegion(ctx, file, sem, events)
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	<-done

	res := agg.res
	slices.Sort(res.Failed)
	slices.SortFunc(res.WriteFailures, func(a, b *ChunkError) int {
		return cmp.Or(cmp.Compare(a.File, b.File), cmp.Compare(a.Chunk[0], b.Chunk[0]), cmp.Compare(a.Chunk[1], b.Chunk[1]))
	})

	var errs []error
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	for _, err := range res.WriteFailures {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// scanRegion processes every chunk of one region file and reports the
// outcome to the coordinator through events.
func (s *Scanner) scanRegion(ctx context.Context, file string, sem *semaphore.Weighted, events chan<- event) {
	if ctx.Err() != nil {
		return
	}

	// Replay journal
	if s.journal != nil {
		rec, ok, err := s.journal.Lookup(file)
		if err != nil {
			s.log.Warn("read journal failed", "file", file, "err", err)
		} else if ok {
			events <- event{kind: eventRegionReplayed, file: file, chunks: rec.Chunks, findings: rec.Findings}
			return
		}
	}

	// Open region
	coord, err := region.ParseFileName(file)
	if err != nil {
		events <- event{kind: eventRegionFailed, file: file, err: err}
		return
	}
	r, err := s.opener.Open(file, len(s.mutators) > 0)
	if err != nil {
		events <- event{kind: eventRegionFailed, file: file, err: err}
		return
	}

	// Scan chunks
	var g errgroup.Group
	for _, pos := range coord.Chunks() {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			events <- s.scanChunk(r, file, pos)
			return nil
		})
	}
	_ = g.Wait()

	if err := r.Close(); err != nil {
		s.log.Warn("close region failed", "file", file, "err", err)
	}
	events <- event{kind: eventRegionDone, file: file, cancelled: ctx.Err() != nil}
}

// scanChunk reads, classifies and mutates one chunk. Everything it decodes is
// owned by the calling goroutine until the returned event is sent.
func (s *Scanner) scanChunk(r region.Region, file string, pos world.ChunkPos) event {
	doc, err := r.ReadChunk(pos)
	if errors.Is(err, region.ErrChunkNotFound) {
		return event{kind: eventChunkAbsent, file: file, chunk: pos}
	}
	if err != nil {
		return event{kind: eventChunkFailed, file: file, chunk: pos, err: err}
	}

	e := event{kind: eventChunk, file: file, chunk: pos}
	sections, malformed := s.readSections(doc, file, pos)
	e.malformed = malformed
	if s.classifier != nil {
		e.findings = s.classify(file, pos, sections)
	}
	if len(s.mutators) == 0 {
		return e
	}

	changed := false
	for _, m := range s.mutators {
		if m.Mutate(doc) {
			changed = true
		}
	}
	if !changed {
		return e
	}
	e.mutated = true
	for _, d := range sections {
		want := d.section.Layout.WordCount(format.BitLength(len(d.section.Palette)), len(d.section.Indices))
		if d.words != want {
			e.err = fmt.Errorf("section %d: %d words read, %d would be written: %w", d.section.Y, d.words, want, ErrLayoutMismatch)
			return e
		}
	}
	for _, d := range sections {
		d.section.Write(d.compound)
	}
	e.err = r.WriteChunk(pos, doc)
	return e
}

// decodedSection pairs a decoded section with the compound it was read from
// and the length of its data array.
type decodedSection struct {
	compound format.Compound
	section  *format.Section
	words    int
}

// readSections decodes the sections of doc that carry block data and returns
// them with the number of malformed sections skipped.
func (s *Scanner) readSections(doc format.Compound, file string, pos world.ChunkPos) ([]decodedSection, int) {
	compounds := format.ChunkSections(doc)
	sections := make([]decodedSection, 0, len(compounds))
	malformed := 0
	for _, c := range compounds {
		sec, err := format.ReadSection(c, s.layout)
		if errors.Is(err, format.ErrSectionAbsent) {
			continue
		}
		if err != nil {
			s.log.Debug("skip malformed section", "file", file, "chunk", pos, "err", err)
			malformed++
			continue
		}
		states, _ := format.Child(c, format.TagBlockStates)
		data, _ := format.LongArray(states, format.TagData)
		sections = append(sections, decodedSection{compound: c, section: sec, words: len(data)})
	}
	return sections, malformed
}

// classify returns the disallowed blocks of the decoded sections at their
// global positions.
func (s *Scanner) classify(file string, pos world.ChunkPos, sections []decodedSection) []Occurrence {
	var found []Occurrence
	for _, d := range sections {
		sec := d.section
		names := sec.Names()
		denied := make([]bool, len(names))
		hit := false
		for i, name := range names {
			denied[i] = s.classifier.Disallowed(name)
			hit = hit || denied[i]
		}
		if !hit {
			continue
		}

		base := cube.Pos{int(pos[0]) << 4, sec.Y << 4, int(pos[1]) << 4}
		for i, idx := range sec.Indices {
			if !denied[idx] {
				continue
			}
			found = append(found, Occurrence{File: file, Type: names[idx], Pos: base.Add(format.IndexPos(i))})
		}
	}
	return found
}

// eventKind tells the aggregator what an event reports.
type eventKind int

const (
	eventChunk eventKind = iota
	eventChunkAbsent
	eventChunkFailed
	eventRegionFailed
	eventRegionDone
	eventRegionReplayed
)

// event is a message from a worker to the scan coordinator.
type event struct {
	kind  eventKind
	file  string
	chunk world.ChunkPos

	findings  []Occurrence
	malformed int
	mutated   bool
	err       error
	chunks    int
	cancelled bool
}

// aggregator owns the result of a scan. Only the coordinator goroutine calls
// its methods.
type aggregator struct {
	s      *Scanner
	res    *Result
	files  map[string]*fileState
	failed map[string]bool
	done   int
	total  int
}

// fileState tracks a region file while its chunks are being processed.
type fileState struct {
	processed     int
	chunks        int
	writeFailures int
	findings      []Occurrence
}

// newAggregator creates the aggregator of a scan over the given number of
// files.
func newAggregator(s *Scanner, files int) *aggregator {
	total := files
	if s.mode == ProgressPerChunk {
		total = files * region.ChunkCount
	}
	return &aggregator{
		s:      s,
		res:    newResult(),
		files:  make(map[string]*fileState),
		failed: make(map[string]bool),
		total:  total,
	}
}

// state returns the state of file, creating it on first use.
func (a *aggregator) state(file string) *fileState {
	st, ok := a.files[file]
	if !ok {
		st = &fileState{}
		a.files[file] = st
	}
	return st
}

// handle merges one event into the result and reports progress.
func (a *aggregator) handle(e event) {
	switch e.kind {
	case eventChunk:
		st := a.state(e.file)
		st.processed++
		st.chunks++
		st.findings = append(st.findings, e.findings...)
		a.res.Chunks++
		a.res.MalformedSections += e.malformed
		a.res.add(e.findings)
		a.s.metrics.chunkScanned(e.findings)
		if e.mutated {
			a.s.metrics.chunkWritten(e.err)
			if e.err != nil {
				a.s.log.Error("write chunk failed", "file", e.file, "chunk", e.chunk, "err", e.err)
				a.res.WriteFailures = append(a.res.WriteFailures, &ChunkError{File: e.file, Chunk: e.chunk, Err: e.err})
				st.writeFailures++
			} else {
				a.res.Mutated++
			}
		}
		a.chunkProgress(e.file, st)
	case eventChunkAbsent:
		st := a.state(e.file)
		st.processed++
		a.chunkProgress(e.file, st)
	case eventChunkFailed:
		st := a.state(e.file)
		st.processed++
		a.s.log.Warn("read chunk failed", "file", e.file, "chunk", e.chunk, "err", e.err)
		a.s.metrics.chunkReadFailed()
		a.markFailed(e.file)
		a.chunkProgress(e.file, st)
	case eventRegionFailed:
		a.s.log.Warn("open region failed", "file", e.file, "err", e.err)
		a.markFailed(e.file)
		a.regionProgress(e.file, 0)
	case eventRegionReplayed:
		a.res.Regions++
		a.res.Chunks += e.chunks
		a.res.add(e.findings)
		a.regionProgress(e.file, region.ChunkCount)
	case eventRegionDone:
		st := a.state(e.file)
		delete(a.files, e.file)
		if e.cancelled {
			return
		}
		a.res.Regions++
		if a.s.journal != nil && !a.failed[e.file] && st.writeFailures == 0 {
			rec := RegionRecord{Chunks: st.chunks, Findings: st.findings}
			if err := a.s.journal.Record(e.file, rec); err != nil {
				a.s.log.Warn("write journal failed", "file", e.file, "err", err)
			}
		}
		if a.s.mode == ProgressPerRegion {
			a.done++
			a.s.progress.Update(Update{File: e.file, FileChunks: st.processed, Done: a.done, Total: a.total})
		}
	}
}

// markFailed lists file in Result.Failed once.
func (a *aggregator) markFailed(file string) {
	if a.failed[file] {
		return
	}
	a.failed[file] = true
	a.res.Failed = append(a.res.Failed, file)
	a.s.metrics.regionFailed()
}

// chunkProgress reports a processed chunk in ProgressPerChunk mode.
func (a *aggregator) chunkProgress(file string, st *fileState) {
	if a.s.mode != ProgressPerChunk {
		return
	}
	a.done++
	a.s.progress.Update(Update{File: file, FileChunks: st.processed, Done: a.done, Total: a.total})
}

// regionProgress reports a region handled without reading its chunks.
func (a *aggregator) regionProgress(file string, chunks int) {
	if a.s.mode == ProgressPerChunk {
		a.done += region.ChunkCount
	} else {
		a.done++
	}
	a.s.progress.Update(Update{File: file, FileChunks: chunks, Done: a.done, Total: a.total})
}
