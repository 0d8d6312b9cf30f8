package store

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when an operation references a recording id that is
// not (or no longer) in the store.
var ErrNotFound = errors.New("recording not found")

// Recording is one finalized capture. The artifact is never mutated after the
// entity is built; the store only ever removes entities, it does not edit them.
type Recording struct {
	ID        string    `json:"id"`
	Artifact  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Size returns the artifact size in bytes.
func (r *Recording) Size() int {
	return len(r.Artifact)
}

// Store holds the ordered collection of finalized recordings, most recent
// first, together with the current selection. All mutation is expected to be
// funneled through the session orchestrator; the lock exists so that display
// readers can run concurrently with that single mutating path.
type Store struct {
	mu       sync.RWMutex
	recs     []*Recording
	selected string
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Insert prepends a finalized recording and selects it.
func (s *Store) Insert(rec *Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = append([]*Recording{rec}, s.recs...)
	s.selected = rec.ID
}

// Select marks the recording with the given id as selected.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.recs {
		if rec.ID == id {
			s.selected = id
			return nil
		}
	}
	return ErrNotFound
}

// Deselect clears the selection.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// Delete removes the recording with the given id. Deleting an unknown id is a
// no-op. If the deleted recording was selected, the selection becomes empty.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.recs {
		if rec.ID == id {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			if s.selected == id {
				s.selected = ""
			}
			return
		}
	}
}

// Clear removes all recordings and clears the selection.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = nil
	s.selected = ""
}

// List returns the recordings in most-recent-first order. The returned slice
// is a copy; the entities themselves are shared and must not be mutated.
func (s *Store) List() []*Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Recording, len(s.recs))
	copy(out, s.recs)
	return out
}

// Get returns the recording with the given id.
func (s *Store) Get(id string) (*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// Selected returns the currently selected recording, if any.
func (s *Store) Selected() (*Recording, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == "" {
		return nil, false
	}
	for _, rec := range s.recs {
		if rec.ID == s.selected {
			return rec, true
		}
	}
	return nil, false
}

// Len returns the number of stored recordings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
