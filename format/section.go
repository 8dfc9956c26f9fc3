package format

import (
	"errors"
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// ErrSectionAbsent is returned by ReadSection for a section without block
// data: no block_states, an empty palette or no packed data array.
var ErrSectionAbsent = errors.New("section has no block data")

// DecodeError reports a malformed section.
type DecodeError struct {
	Y   int
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode section %d: %v", e.Y, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// BlockRecord is a single decoded block: its type identifier and its position
// local to the section it was read from.
type BlockRecord struct {
	Type string
	Pos  cube.Pos
}

// Section is the decoded block data of one 16x16x16 section of a chunk.
type Section struct {
	// Y is the section's vertical index in its chunk.
	Y int
	// Palette holds the palette entry compounds as found in the document.
	// Entries are shared with the document, so changes to them are visible
	// to both.
	Palette []Compound
	// Indices holds one palette index per block, in IndexPos order.
	Indices []int
	// Layout is the word layout used to read, and to write back, the data.
	Layout Layout
}

// NewSection creates a section at height y with a palette of plain block
// names and one index per block.
func NewSection(y int, names []string, indices []int) *Section {
	palette := make([]Compound, len(names))
	for i, name := range names {
		palette[i] = Compound{TagName: name}
	}
	return &Section{Y: y, Palette: palette, Indices: indices}
}

// ReadSection decodes the block palette and packed indices of a section
// compound. It returns ErrSectionAbsent when the section carries no block
// data and a *DecodeError when the data is malformed.
func ReadSection(section Compound, layout Layout) (*Section, error) {
	y, _ := Int(section, TagY)

	// Read block states
	states, ok := Child(section, TagBlockStates)
	if !ok {
		return nil, ErrSectionAbsent
	}
	palette := Compounds(states, TagPalette)
	if len(palette) == 0 {
		return nil, ErrSectionAbsent
	}
	data, ok := LongArray(states, TagData)
	if !ok {
		return nil, ErrSectionAbsent
	}

	// Decode indices
	indices, err := layout.Decode(data, BitLength(len(palette)), SectionVolume)
	if err != nil {
		return nil, &DecodeError{Y: y, Err: err}
	}
	for i, idx := range indices {
		if idx >= len(palette) {
			return nil, &DecodeError{Y: y, Err: fmt.Errorf("index %d at %v outside palette of %d", idx, IndexPos(i), len(palette))}
		}
	}

	return &Section{Y: y, Palette: palette, Indices: indices, Layout: layout}, nil
}

// PaletteName returns the block name of a palette entry, defaulting to air.
func PaletteName(entry Compound) string {
	if name, ok := String(entry, TagName); ok {
		return name
	}
	return Air
}

// Names returns the block names of the section's palette.
func (s *Section) Names() []string {
	names := make([]string, len(s.Palette))
	for i, entry := range s.Palette {
		names[i] = PaletteName(entry)
	}
	return names
}

// Blocks returns one record per block of the section, in IndexPos order.
func (s *Section) Blocks() []BlockRecord {
	names := s.Names()
	records := make([]BlockRecord, len(s.Indices))
	for i, idx := range s.Indices {
		records[i] = BlockRecord{Type: names[idx], Pos: IndexPos(i)}
	}
	return records
}

// Write encodes the section's palette and indices into the block_states of a
// section compound, replacing only the palette and data fields. Every other
// field of the section is left untouched. Write panics with an
// *InvariantError if the section does not hold SectionVolume indices or an
// index is outside the palette.
func (s *Section) Write(section Compound) {
	if len(s.Indices) != SectionVolume {
		violate("write section", "%d indices, want %d", len(s.Indices), SectionVolume)
	}
	for i, idx := range s.Indices {
		if idx < 0 || idx >= len(s.Palette) {
			violate("write section", "index %d at %v outside palette of %d", idx, IndexPos(i), len(s.Palette))
		}
	}

	states, ok := Child(section, TagBlockStates)
	if !ok {
		states = Compound{}
		section[TagBlockStates] = states
	}

	// Write palette
	palette := make([]any, len(s.Palette))
	for i, entry := range s.Palette {
		palette[i] = entry
	}
	states[TagPalette] = palette

	// Write data
	states[TagData] = s.Layout.Encode(s.Indices, BitLength(len(s.Palette)))
}

// Encode returns a new section compound holding the section's height and
// block states.
func (s *Section) Encode() Compound {
	c := Compound{TagY: int8(s.Y)}
	s.Write(c)
	return c
}
