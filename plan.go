package sieve

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"gopkg.in/yaml.v3"
)

// Plan describes how source worlds are stacked on top of each other: each
// section maps a box of source blocks to a vertical offset in the composite
// world.
type Plan struct {
	Sections []PlanSection `yaml:"sections"`
}

// PlanSection is one entry of a Plan.
type PlanSection struct {
	Name string `yaml:"name"`
	// World restricts the section to sources of the named world. An empty
	// World matches every source.
	World  string `yaml:"world"`
	Region Bounds `yaml:"region"`
	// Offset is added to the Y coordinate of every block inside Region.
	Offset int `yaml:"offset"`
}

// Bounds is a box of block positions. Start and End are both inclusive and
// may be given in any order on every axis.
type Bounds struct {
	Start, End cube.Pos
}

// Contains reports whether pos lies inside the box.
func (b Bounds) Contains(pos cube.Pos) bool {
	for i := range 3 {
		lo, hi := min(b.Start[i], b.End[i]), max(b.Start[i], b.End[i])
		if pos[i] < lo || pos[i] > hi {
			return false
		}
	}
	return true
}

type boundsYAML struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// UnmarshalYAML reads bounds written as {start: "x,y,z", end: "x,y,z"}.
func (b *Bounds) UnmarshalYAML(value *yaml.Node) error {
	var raw boundsYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	start, err := ParseCoordinates(raw.Start)
	if err != nil {
		return fmt.Errorf("line %d: start: %w", value.Line, err)
	}
	end, err := ParseCoordinates(raw.End)
	if err != nil {
		return fmt.Errorf("line %d: end: %w", value.Line, err)
	}
	b.Start, b.End = start, end
	return nil
}

// MarshalYAML writes the bounds in the form read by UnmarshalYAML.
func (b Bounds) MarshalYAML() (any, error) {
	return boundsYAML{Start: FormatCoordinates(b.Start), End: FormatCoordinates(b.End)}, nil
}

// ParseCoordinates parses a block position written as "x,y,z".
func ParseCoordinates(s string) (cube.Pos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return cube.Pos{}, fmt.Errorf("coordinates %q: want x,y,z", s)
	}
	var pos cube.Pos
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cube.Pos{}, fmt.Errorf("coordinates %q: %w", s, err)
		}
		pos[i] = v
	}
	return pos, nil
}

// FormatCoordinates formats pos as "x,y,z".
func FormatCoordinates(pos cube.Pos) string {
	return fmt.Sprintf("%d,%d,%d", pos[0], pos[1], pos[2])
}

// Offset returns the vertical offset of the first section of the plan whose
// world and region contain the source block at pos. It returns false if no
// section does.
func (p *Plan) Offset(world string, pos cube.Pos) (int, bool) {
	for _, s := range p.Sections {
		if s.World != "" && s.World != world {
			continue
		}
		if s.Region.Contains(pos) {
			return s.Offset, true
		}
	}
	return 0, false
}

// Validate checks that every section is named, uniquely.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Sections))
	for i, s := range p.Sections {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sections[%d] name must not be empty", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate section name: %s", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// LoadPlan reads a stacking plan from a YAML file with a top-level sections
// list.
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}
