package sieve

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics updated by scans and stacking runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChunksScanned      prometheus.Counter
	ChunkReadFailures  prometheus.Counter
	RegionsFailed      prometheus.Counter
	Findings           *prometheus.CounterVec
	ChunksWritten      prometheus.Counter
	ChunkWriteFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	chunksScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sieve_chunks_scanned_total",
		Help: "Total chunks read and classified",
	})

	chunkReadFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sieve_chunk_read_failures_total",
		Help: "Total chunks that could not be read",
	})

	regionsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sieve_regions_failed_total",
		Help: "Total region files recorded as failed",
	})

	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_findings_total",
		Help: "Total disallowed blocks found per block type",
	}, []string{"type"})

	chunksWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sieve_chunks_written_total",
		Help: "Total chunk documents written back or emitted",
	})

	chunkWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sieve_chunk_write_failures_total",
		Help: "Total chunk documents that could not be written",
	})

	reg.MustRegister(chunksScanned, chunkReadFailures, regionsFailed, findings, chunksWritten, chunkWriteFailures)

	return &Metrics{
		ChunksScanned:      chunksScanned,
		ChunkReadFailures:  chunkReadFailures,
		RegionsFailed:      regionsFailed,
		Findings:           findings,
		ChunksWritten:      chunksWritten,
		ChunkWriteFailures: chunkWriteFailures,
	}
}

func (m *Metrics) chunkScanned(occ []Occurrence) {
	if m == nil {
		return
	}
	m.ChunksScanned.Inc()
	for _, o := range occ {
		m.Findings.WithLabelValues(o.Type).Inc()
	}
}

func (m *Metrics) chunkReadFailed() {
	if m != nil {
		m.ChunkReadFailures.Inc()
	}
}

func (m *Metrics) regionFailed() {
	if m != nil {
		m.RegionsFailed.Inc()
	}
}

func (m *Metrics) chunkWritten(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ChunkWriteFailures.Inc()
		return
	}
	m.ChunksWritten.Inc()
}
