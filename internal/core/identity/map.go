// Package identity links objects of one document to their counterparts in
// another document that does not share its numbering.
package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zeusync/playsync/internal/core/document"
)

var (
	ErrDuplicateRegistration = errors.New("identity already registered")
	ErrLeaked                = errors.New("identity map not empty after teardown")
)

// DuplicateError describes an Insert that collided with an existing pair.
type DuplicateError struct {
	Local    document.ObjectID
	Foreign  document.ObjectID
	Existing document.ObjectID
	// Side is "local" or "foreign", whichever id was already present.
	Side string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s id of pair (%s, %s) already mapped to %s",
		ErrDuplicateRegistration, e.Side, e.Local, e.Foreign, e.Existing)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateRegistration }

// Pair is one bidirectional entry.
type Pair struct {
	Local   document.ObjectID
	Foreign document.ObjectID
}

// Map is a bijection between local (master) ids and foreign (replica) ids.
// Both directions are always updated together.
type Map struct {
	localToForeign map[document.ObjectID]document.ObjectID
	foreignToLocal map[document.ObjectID]document.ObjectID
}

func New() *Map {
	return &Map{
		localToForeign: make(map[document.ObjectID]document.ObjectID),
		foreignToLocal: make(map[document.ObjectID]document.ObjectID),
	}
}

// Insert adds a pair. It refuses the pair if either id is already mapped,
// leaving the map unchanged.
func (m *Map) Insert(local, foreign document.ObjectID) error {
	if existing, ok := m.localToForeign[local]; ok {
		return &DuplicateError{Local: local, Foreign: foreign, Existing: existing, Side: "local"}
	}
	if existing, ok := m.foreignToLocal[foreign]; ok {
		return &DuplicateError{Local: local, Foreign: foreign, Existing: existing, Side: "foreign"}
	}
	m.localToForeign[local] = foreign
	m.foreignToLocal[foreign] = local
	return nil
}

// Translate maps a local id to its foreign counterpart.
func (m *Map) Translate(local document.ObjectID) (document.ObjectID, bool) {
	id, ok := m.localToForeign[local]
	return id, ok
}

// Inverse maps a foreign id back to its local counterpart.
func (m *Map) Inverse(foreign document.ObjectID) (document.ObjectID, bool) {
	id, ok := m.foreignToLocal[foreign]
	return id, ok
}

// RemoveLocal drops the pair containing the local id.
func (m *Map) RemoveLocal(local document.ObjectID) bool {
	foreign, ok := m.localToForeign[local]
	if !ok {
		return false
	}
	delete(m.localToForeign, local)
	delete(m.foreignToLocal, foreign)
	return true
}

// RemoveForeign drops the pair containing the foreign id.
func (m *Map) RemoveForeign(foreign document.ObjectID) bool {
	local, ok := m.foreignToLocal[foreign]
	if !ok {
		return false
	}
	delete(m.foreignToLocal, foreign)
	delete(m.localToForeign, local)
	return true
}

// Remove drops the pair containing id on either side. The local side is
// tried first.
func (m *Map) Remove(id document.ObjectID) bool {
	return m.RemoveLocal(id) || m.RemoveForeign(id)
}

func (m *Map) Len() int {
	return len(m.localToForeign)
}

func (m *Map) Clear() {
	clear(m.localToForeign)
	clear(m.foreignToLocal)
}

// Pairs returns every entry sorted by local id.
func (m *Map) Pairs() []Pair {
	out := make([]Pair, 0, len(m.localToForeign))
	for l, f := range m.localToForeign {
		out = append(out, Pair{Local: l, Foreign: f})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Local.Pack() < out[j].Local.Pack()
	})
	return out
}

// CheckEmpty reports leaked entries. Called after a replica teardown, where
// every object must already have been unregistered.
func (m *Map) CheckEmpty() error {
	if n := len(m.localToForeign); n > 0 || len(m.foreignToLocal) > 0 {
		return fmt.Errorf("%w: %d local, %d foreign entries", ErrLeaked, n, len(m.foreignToLocal))
	}
	return nil
}
