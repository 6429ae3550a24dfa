package policy

import (
	"cmp"
	"fmt"
	"slices"
)

// Entry is one stored value in a snapshot.
type Entry struct {
	Slot
	Value Value
}

// Snapshot is a copy of the directory contents, used for persistence.
type Snapshot struct {
	Factions []string // Creation order
	Entries  []Entry
}

// Export copies the directory. Entries are sorted by kind, type and
// factions so that snapshots of equal directories compare equal.
func (d *Directory) Export() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := Snapshot{Factions: make([]string, len(d.order))}
	copy(snap.Factions, d.order)
	d.data.each(func(sl Slot, v Value) {
		snap.Entries = append(snap.Entries, Entry{Slot: sl, Value: v.Clone()})
	})
	slices.SortFunc(snap.Entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.First, b.First),
			cmp.Compare(a.Second, b.Second),
		)
	})
	return snap
}

// Import creates the snapshot's missing factions, then overwrites stored
// values with its entries. Subscribers are not notified. Entries for
// unregistered types, kind mismatches or unknown factions are skipped and
// logged. Import returns the number of entries applied.
func (d *Directory) Import(snap Snapshot) (int, error) {
	for _, f := range snap.Factions {
		if d.HasFaction(f) {
			continue
		}
		if err := d.CreateFaction(f); err != nil {
			return 0, fmt.Errorf("import: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	applied := 0
	for _, e := range snap.Entries {
		if e.Value == nil {
			continue
		}
		factions := []string{e.First}
		if e.Kind != Internal {
			factions = append(factions, e.Second)
		}
		_, sl, err := d.resolveLocked(e.Type, e.Kind, factions)
		if err != nil {
			d.logger.Warn("skipping snapshot entry", "slot", e.Slot.String(), "error", err)
			continue
		}
		d.data.put(sl, e.Value.Clone(), true)
		applied++
	}
	return applied, nil
}
