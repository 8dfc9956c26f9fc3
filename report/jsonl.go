// Package report persists the outcome of a scan: a JSON lines dump, plain or
// zstd compressed, and a SQLite index of findings across runs.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/oriumgames/sieve"
)

// Report groups the results written by a single run. Either field may be nil.
type Report struct {
	Scan    *sieve.Result
	Players *sieve.PlayerResult
}

// Entry is one line of a JSON lines report. Kind selects which of the other
// fields are set: finding, failed_region, write_failure, player_item,
// failed_player, ignored_player or summary.
type Entry struct {
	Kind string `json:"kind"`

	File  string `json:"file,omitempty"`
	Type  string `json:"type,omitempty"`
	X     *int   `json:"x,omitempty"`
	Y     *int   `json:"y,omitempty"`
	Z     *int   `json:"z,omitempty"`
	Error string `json:"error,omitempty"`

	Player string `json:"player,omitempty"`
	Item   string `json:"item,omitempty"`
	Count  int    `json:"count,omitempty"`
	Slots  []int  `json:"slots,omitempty"`

	Summary *Summary `json:"summary,omitempty"`
}

// Summary holds the counters of a run.
type Summary struct {
	Regions           int `json:"regions"`
	Chunks            int `json:"chunks"`
	Mutated           int `json:"mutated"`
	MalformedSections int `json:"malformed_sections"`
	Findings          int `json:"findings"`
	FailedRegions     int `json:"failed_regions"`
	WriteFailures     int `json:"write_failures"`
	Players           int `json:"players"`
	OffendingPlayers  int `json:"offending_players"`
	FailedPlayers     int `json:"failed_players"`
}

// Entries flattens r into report lines in a deterministic order, ending with
// the summary.
func Entries(r Report) []Entry {
	var entries []Entry
	var sum Summary

	if res := r.Scan; res != nil {
		for _, o := range res.Sorted() {
			x, y, z := o.Pos[0], o.Pos[1], o.Pos[2]
			entries = append(entries, Entry{Kind: "finding", File: o.File, Type: o.Type, X: &x, Y: &y, Z: &z})
		}
		for _, f := range res.Failed {
			entries = append(entries, Entry{Kind: "failed_region", File: f})
		}
		for _, wf := range res.WriteFailures {
			x, z := int(wf.Chunk[0]), int(wf.Chunk[1])
			entries = append(entries, Entry{Kind: "write_failure", File: wf.File, X: &x, Z: &z, Error: wf.Err.Error()})
		}
		sum.Regions = res.Regions
		sum.Chunks = res.Chunks
		sum.Mutated = res.Mutated
		sum.MalformedSections = res.MalformedSections
		sum.Findings = res.Count()
		sum.FailedRegions = len(res.Failed)
		sum.WriteFailures = len(res.WriteFailures)
	}

	if pr := r.Players; pr != nil {
		for _, id := range sortedPlayers(pr) {
			for _, item := range pr.Offending[id] {
				entries = append(entries, Entry{Kind: "player_item", Player: id.String(), Item: item.ID, Count: item.Count, Slots: item.Slots})
			}
		}
		for _, f := range pr.Failed {
			entries = append(entries, Entry{Kind: "failed_player", File: f})
		}
		for _, id := range pr.Ignored {
			entries = append(entries, Entry{Kind: "ignored_player", Player: id.String()})
		}
		sum.Players = pr.Players
		sum.OffendingPlayers = len(pr.Offending)
		sum.FailedPlayers = len(pr.Failed)
	}

	return append(entries, Entry{Kind: "summary", Summary: &sum})
}

// WriteJSONL writes r to w as JSON lines.
func WriteJSONL(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	for _, e := range Entries(r) {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode %s entry: %w", e.Kind, err)
		}
	}
	return nil
}

// WriteJSONLZstd writes r as zstd compressed JSON lines to the file at path,
// replacing it.
func WriteJSONLZstd(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 128*1024)
	if err := WriteJSONL(bw, r); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadJSONLZstd reads the entries of a report written by WriteJSONLZstd.
func ReadJSONLZstd(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	jd := json.NewDecoder(dec)
	for jd.More() {
		var e Entry
		if err := jd.Decode(&e); err != nil {
			return entries, fmt.Errorf("decode entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func sortedPlayers(pr *sieve.PlayerResult) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(pr.Offending))
	for id := range pr.Offending {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
