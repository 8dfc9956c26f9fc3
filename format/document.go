package format

// Compound is a decoded NBT compound: a tree of typed fields where nested
// compounds are Compound values, lists are []any and long arrays are []int64.
type Compound = map[string]any

// Tag names used by chunk documents.
const (
	TagSections      = "sections"
	TagBlockStates   = "block_states"
	TagPalette       = "palette"
	TagData          = "data"
	TagName          = "Name"
	TagProperties    = "Properties"
	TagY             = "Y"
	TagXPos          = "xPos"
	TagZPos          = "zPos"
	TagBlockEntities = "block_entities"
)

// Air is the identifier of an empty block.
const Air = "minecraft:air"

// CompoundOf returns v as a Compound.
func CompoundOf(v any) (Compound, bool) {
	c, ok := v.(map[string]any)
	return c, ok && c != nil
}

// Child returns the compound stored under key in c.
func Child(c Compound, key string) (Compound, bool) {
	if c == nil {
		return nil, false
	}
	return CompoundOf(c[key])
}

// List returns the list stored under key in c. Typed slices of compounds are
// returned as []any sharing the same elements.
func List(c Compound, key string) ([]any, bool) {
	if c == nil {
		return nil, false
	}
	switch l := c[key].(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, v := range l {
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// Compounds returns the compound elements of the list stored under key,
// skipping elements of any other type.
func Compounds(c Compound, key string) []Compound {
	l, ok := List(c, key)
	if !ok {
		return nil
	}
	out := make([]Compound, 0, len(l))
	for _, v := range l {
		if child, ok := CompoundOf(v); ok {
			out = append(out, child)
		}
	}
	return out
}

// String returns the string stored under key in c.
func String(c Compound, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	s, ok := c[key].(string)
	return s, ok
}

// Int returns the integer stored under key in c, whatever its width.
func Int(c Compound, key string) (int, bool) {
	if c == nil {
		return 0, false
	}
	switch v := c[key].(type) {
	case int8:
		return int(v), true
	case uint8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// LongArray returns the long array stored under key in c.
func LongArray(c Compound, key string) ([]int64, bool) {
	if c == nil {
		return nil, false
	}
	switch v := c[key].(type) {
	case []int64:
		return v, true
	case []uint64:
		out := make([]int64, len(v))
		for i, w := range v {
			out[i] = int64(w)
		}
		return out, true
	default:
		return nil, false
	}
}

// ChunkSections returns the section compounds of a chunk document.
func ChunkSections(doc Compound) []Compound {
	return Compounds(doc, TagSections)
}
