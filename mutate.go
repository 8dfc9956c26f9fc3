package sieve

import (
	"strings"

	"github.com/oriumgames/sieve/format"
)

// Mutator edits a chunk document in place. Mutate reports whether the
// document changed and so must be written back. Mutators may change
// auxiliary properties of palette entries but never which palette entry a
// block refers to.
type Mutator interface {
	Mutate(doc format.Compound) bool
}

// MutatorFunc adapts a function to the Mutator interface.
type MutatorFunc func(doc format.Compound) bool

// Mutate calls f(doc).
func (f MutatorFunc) Mutate(doc format.Compound) bool { return f(doc) }

// PersistentLeaves marks every leaves block of a chunk as persistent so that
// it does not decay once the chunk is loaded again.
type PersistentLeaves struct{}

// Mutate sets Properties.persistent to "true" on every palette entry whose
// name ends in leaves. Entries without a Properties compound are left alone.
func (PersistentLeaves) Mutate(doc format.Compound) bool {
	changed := false
	for _, section := range format.ChunkSections(doc) {
		states, ok := format.Child(section, format.TagBlockStates)
		if !ok {
			continue
		}
		for _, entry := range format.Compounds(states, format.TagPalette) {
			if !strings.HasSuffix(format.PaletteName(entry), "leaves") {
				continue
			}
			props, ok := format.Child(entry, format.TagProperties)
			if !ok {
				continue
			}
			if v, _ := format.String(props, "persistent"); v != "true" {
				props["persistent"] = "true"
				changed = true
			}
		}
	}
	return changed
}

// GearyComponents is the bukkit value key marking items managed by the geary
// plugin.
const GearyComponents = "geary:components"

// StripDisplayNames removes the custom display name of plugin-managed items
// stored in container block entities, including items nested in shulker
// boxes.
type StripDisplayNames struct{}

// Mutate walks block_entities[*].Items and drops tag.display from every item
// carrying PublicBukkitValues["geary:components"].
func (StripDisplayNames) Mutate(doc format.Compound) bool {
	changed := false
	for _, be := range format.Compounds(doc, format.TagBlockEntities) {
		for _, item := range format.Compounds(be, "Items") {
			if stripDisplayName(item) {
				changed = true
			}
		}
	}
	return changed
}

func stripDisplayName(item format.Compound) bool {
	tag, ok := format.Child(item, "tag")
	if !ok {
		return false
	}
	changed := false
	if isShulker(item) {
		if bet, ok := format.Child(tag, "BlockEntityTag"); ok {
			for _, nested := range format.Compounds(bet, "Items") {
				if stripDisplayName(nested) {
					changed = true
				}
			}
		}
	}

	values, ok := format.Child(tag, "PublicBukkitValues")
	if !ok {
		return changed
	}
	if _, ok := values[GearyComponents]; !ok {
		return changed
	}
	display, ok := format.Child(tag, "display")
	if !ok {
		return changed
	}
	if _, ok := format.String(display, format.TagName); !ok {
		return changed
	}
	delete(tag, "display")
	return true
}

func isShulker(item format.Compound) bool {
	id, _ := format.String(item, "id")
	return strings.Contains(id, "shulker")
}
