package sieve

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// Journal records the regions a scan has completed, together with their
// findings, so that an interrupted scan can be resumed without reading those
// regions again. A Journal is safe for concurrent use.
type Journal struct {
	db *leveldb.DB
}

// RegionRecord is the journal entry of a completed region.
type RegionRecord struct {
	Chunks   int
	Findings []Occurrence
}

// journalEntry is the on-disk form of a RegionRecord.
type journalEntry struct {
	Chunks   int32          `nbt:"chunks"`
	Findings []journalBlock `nbt:"findings"`
}

type journalBlock struct {
	Type string `nbt:"type"`
	X    int32  `nbt:"x"`
	Y    int32  `nbt:"y"`
	Z    int32  `nbt:"z"`
}

// OpenJournal opens the journal database in dir, creating it if needed.
func OpenJournal(dir string) (*Journal, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Lookup returns the record of a completed region file.
func (j *Journal) Lookup(file string) (RegionRecord, bool, error) {
	data, err := j.db.Get(journalKey(file), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return RegionRecord{}, false, nil
	}
	if err != nil {
		return RegionRecord{}, false, fmt.Errorf("read journal entry %s: %w", file, err)
	}

	var e journalEntry
	if err := nbt.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return RegionRecord{}, false, fmt.Errorf("decode journal entry %s: %w", file, err)
	}
	rec := RegionRecord{Chunks: int(e.Chunks), Findings: make([]Occurrence, len(e.Findings))}
	for i, b := range e.Findings {
		rec.Findings[i] = Occurrence{
			File: file,
			Type: b.Type,
			Pos:  cube.Pos{int(b.X), int(b.Y), int(b.Z)},
		}
	}
	return rec, true, nil
}

// Record stores rec as the record of a completed region file.
func (j *Journal) Record(file string, rec RegionRecord) error {
	e := journalEntry{Chunks: int32(rec.Chunks), Findings: make([]journalBlock, len(rec.Findings))}
	for i, o := range rec.Findings {
		e.Findings[i] = journalBlock{Type: o.Type, X: int32(o.Pos[0]), Y: int32(o.Pos[1]), Z: int32(o.Pos[2])}
	}

	buf := new(bytes.Buffer)
	if err := nbt.NewEncoder(buf).Encode(e); err != nil {
		return fmt.Errorf("encode journal entry %s: %w", file, err)
	}
	if err := j.db.Put(journalKey(file), buf.Bytes(), nil); err != nil {
		return fmt.Errorf("write journal entry %s: %w", file, err)
	}
	return nil
}

// Forget removes the record of a region file so that it is scanned again.
func (j *Journal) Forget(file string) error {
	if err := j.db.Delete(journalKey(file), nil); err != nil {
		return fmt.Errorf("delete journal entry %s: %w", file, err)
	}
	return nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func journalKey(file string) []byte {
	return []byte("region/" + filepath.Clean(file))
}
