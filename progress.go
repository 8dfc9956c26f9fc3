package sieve

import (
	"log/slog"
	"path/filepath"
)

// ProgressMode selects how often a scan reports progress.
type ProgressMode int

const (
	// ProgressPerRegion reports once per region file, when it is done.
	ProgressPerRegion ProgressMode = iota
	// ProgressPerChunk reports once per chunk processed.
	ProgressPerChunk
)

// Update is a progress notification. Counts never decrease between two
// updates of the same scan, neither overall nor for a single file.
type Update struct {
	// File is the region file the update is about.
	File string
	// FileChunks is the number of chunks of File processed so far.
	FileChunks int
	// Done is the number of units processed overall: regions in
	// ProgressPerRegion mode, chunks in ProgressPerChunk mode.
	Done int
	// Total is the number of units the scan was started with.
	Total int
}

// Progress observes the progress of a scan. Updates are delivered from a
// single goroutine, one at a time.
type Progress interface {
	Update(u Update)
}

// ProgressFunc adapts a function to the Progress interface.
type ProgressFunc func(u Update)

// Update calls f(u).
func (f ProgressFunc) Update(u Update) { f(u) }

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) Update(Update) {}

// LogProgress writes updates to a logger at info level.
type LogProgress struct {
	Log *slog.Logger
}

// Update logs u.
func (p LogProgress) Update(u Update) {
	p.Log.Info("scan progress",
		"file", filepath.Base(u.File),
		"chunks", u.FileChunks,
		"done", u.Done,
		"total", u.Total,
	)
}
