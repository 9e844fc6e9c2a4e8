package compositor

import (
	"slices"
	"strings"
)

const (
	DefaultIdentityPrefix = "Cmb:"

	defaultStateX = 32
	defaultStateY = 32
)

// PersistedState is the placement remembered for one client identity.
type PersistedState struct {
	X          int  `yaml:"x"`
	Y          int  `yaml:"y"`
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Maximized  bool `yaml:"maximized"`
	Fullscreen bool `yaml:"fullscreen"`
}

// StateTable maps client identities to their last placement. It lives as
// long as the compositor that owns it.
type StateTable struct {
	prefix  string
	entries map[string]*PersistedState
}

func NewStateTable(prefix string) *StateTable {
	return &StateTable{
		prefix:  prefix,
		entries: make(map[string]*PersistedState),
	}
}

// Tracked reports whether identities like id get an entry at all.
func (t *StateTable) Tracked(id string) bool {
	return t.prefix != "" && strings.HasPrefix(id, t.prefix)
}

// Attach returns the entry for id, creating it on first use. It returns
// nil for identities without the prefix.
func (t *StateTable) Attach(id string) *PersistedState {
	if !t.Tracked(id) {
		return nil
	}
	st, ok := t.entries[id]
	if !ok {
		st = &PersistedState{X: defaultStateX, Y: defaultStateY}
		t.entries[id] = st
	}
	return st
}

func (t *StateTable) Lookup(id string) (PersistedState, bool) {
	st, ok := t.entries[id]
	if !ok {
		return PersistedState{}, false
	}
	return *st, true
}

func (t *StateTable) Len() int { return len(t.entries) }

// Identities lists every known identity, sorted.
func (t *StateTable) Identities() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear forgets every entry.
func (t *StateTable) Clear() {
	clear(t.entries)
}
