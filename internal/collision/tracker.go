package collision

import (
	"github.com/arloliu/eelsfit/errs"
)

// Tracker records component names and their 64-bit IDs while an archive is
// written. Duplicate names are rejected; two different names sharing an ID are
// allowed but flagged so the writer can note it in the header.
type Tracker struct {
	names        map[uint64]string // ID → name
	ordered      []string          // insertion order
	hasCollision bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		names:   make(map[uint64]string),
		ordered: make([]string, 0),
	}
}

// Track records name under id.
//
// Returns errs.ErrInvalidName for an empty name and errs.ErrDuplicateComponent
// when the same name is tracked twice.
func (t *Tracker) Track(name string, id uint64) error {
	if name == "" {
		return errs.ErrInvalidName
	}

	if existing, ok := t.names[id]; ok {
		if existing == name {
			return errs.ErrDuplicateComponent
		}
		t.hasCollision = true
	}

	t.names[id] = name
	t.ordered = append(t.ordered, name)

	return nil
}

// HasCollision reports whether two distinct names produced the same ID.
func (t *Tracker) HasCollision() bool {
	return t.hasCollision
}

// Names returns tracked names in the order Track was called.
func (t *Tracker) Names() []string {
	return t.ordered
}

// Count returns the number of tracked names.
func (t *Tracker) Count() int {
	return len(t.ordered)
}

// Reset clears the tracker for reuse.
func (t *Tracker) Reset() {
	clear(t.names)
	t.ordered = t.ordered[:0]
	t.hasCollision = false
}
