package sieve

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/oriumgames/sieve/format"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"golang.org/x/sync/errgroup"
)

// PlayerItem is an item stack of a player's inventory or ender chest, merged
// with every other stack of the same item.
type PlayerItem struct {
	ID    string
	Count int
	// Slots lists the slots the merged stacks were found in.
	Slots []int
}

// PlayerResult is the outcome of a player data scan.
type PlayerResult struct {
	// Offending maps a player to the items breaking the item rules.
	Offending map[uuid.UUID][]PlayerItem
	// Failed lists player data files that could not be read.
	Failed []string
	// Ignored lists allowlisted players.
	Ignored []uuid.UUID
	// Players is the number of player data files read.
	Players int
}

// PlayerOption configures ScanPlayers.
type PlayerOption func(*playerScan)

type playerScan struct {
	rules     *ItemRules
	allowlist map[uuid.UUID]bool
	threads   int
	log       *slog.Logger
}

// WithItemRules sets the rules items are checked against.
func WithItemRules(r *ItemRules) PlayerOption {
	return func(s *playerScan) {
		s.rules = r
	}
}

// WithAllowlist sets the players that are skipped.
func WithAllowlist(ids []uuid.UUID) PlayerOption {
	return func(s *playerScan) {
		s.allowlist = make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			s.allowlist[id] = true
		}
	}
}

// WithPlayerThreads sets the number of player files read at the same time.
func WithPlayerThreads(n int) PlayerOption {
	return func(s *playerScan) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithPlayerLogger sets the logger read failures are reported to.
func WithPlayerLogger(l *slog.Logger) PlayerOption {
	return func(s *playerScan) {
		if l != nil {
			s.log = l
		}
	}
}

// ScanPlayers checks the inventory and ender chest of every player of the
// world in dir. The default rules are the default item lists, and the
// default allowlist is DefaultPlayerAllowlist.
func ScanPlayers(ctx context.Context, dir string, opts ...PlayerOption) (*PlayerResult, error) {
	files, err := PlayerDataFiles(dir)
	if err != nil {
		return nil, err
	}

	s := &playerScan{threads: DefaultThreads, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		if s.rules, err = NewItemRules(DefaultItemDenylist, DefaultItemGraylist); err != nil {
			return nil, err
		}
	}
	if s.allowlist == nil {
		ids, err := DefaultConfig().Allowlist()
		if err != nil {
			return nil, err
		}
		WithAllowlist(ids)(s)
	}

	outcomes := make([]playerOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(s.threads)
	for i, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = s.scanFile(file)
			return nil
		})
	}
	_ = g.Wait()

	res := &PlayerResult{Offending: make(map[uuid.UUID][]PlayerItem)}
	for i, o := range outcomes {
		switch {
		case !o.done:
		case o.err != nil:
			s.log.Warn("read player data failed", "file", files[i], "err", o.err)
			res.Failed = append(res.Failed, files[i])
		case o.ignored:
			res.Ignored = append(res.Ignored, o.id)
		default:
			res.Players++
			if len(o.items) > 0 {
				res.Offending[o.id] = o.items
			}
		}
	}
	return res, ctx.Err()
}

type playerOutcome struct {
	done    bool
	id      uuid.UUID
	ignored bool
	items   []PlayerItem
	err     error
}

func (s *playerScan) scanFile(file string) playerOutcome {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	id, err := uuid.Parse(name)
	if err != nil {
		return playerOutcome{done: true, err: fmt.Errorf("player file name: %w", err)}
	}
	if s.allowlist[id] {
		return playerOutcome{done: true, id: id, ignored: true}
	}

	data, err := readPlayerData(file)
	if err != nil {
		return playerOutcome{done: true, id: id, err: err}
	}
	stacks := append(format.Compounds(data, "Inventory"), format.Compounds(data, "EnderItems")...)

	var offending []PlayerItem
	for _, item := range mergeItems(flattenShulkers(stacks)) {
		if s.rules.Offending(item.ID, item.Count) {
			offending = append(offending, item)
		}
	}
	return playerOutcome{done: true, id: id, items: offending}
}

// readPlayerData decodes a gzip compressed, big endian NBT player file.
func readPlayerData(file string) (format.Compound, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer zr.Close()

	var data map[string]any
	if err := nbt.NewDecoderWithEncoding(zr, nbt.BigEndian).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode player data: %w", err)
	}
	return data, nil
}

// flattenShulkers replaces every shulker box stack holding items with the
// items it holds.
func flattenShulkers(items []format.Compound) []format.Compound {
	out := make([]format.Compound, 0, len(items))
	for _, item := range items {
		if isShulker(item) {
			if tag, ok := format.Child(item, "tag"); ok {
				if bet, ok := format.Child(tag, "BlockEntityTag"); ok {
					if nested, ok := format.List(bet, "Items"); ok {
						for _, v := range nested {
							if c, ok := format.CompoundOf(v); ok {
								out = append(out, c)
							}
						}
						continue
					}
				}
			}
		}
		out = append(out, item)
	}
	return out
}

// mergeItems sums the stacks of each item id, in first-seen order.
func mergeItems(items []format.Compound) []PlayerItem {
	var merged []PlayerItem
	index := make(map[string]int)
	for _, item := range items {
		id, ok := format.String(item, "id")
		if !ok {
			continue
		}
		count, ok := format.Int(item, "Count")
		if !ok {
			count, _ = format.Int(item, "count")
		}
		slot, hasSlot := format.Int(item, "Slot")

		i, ok := index[id]
		if !ok {
			i = len(merged)
			index[id] = i
			merged = append(merged, PlayerItem{ID: id})
		}
		merged[i].Count += count
		if hasSlot {
			merged[i].Slots = append(merged[i].Slots, slot)
		}
	}
	for i := range merged {
		slices.Sort(merged[i].Slots)
	}
	return merged
}
