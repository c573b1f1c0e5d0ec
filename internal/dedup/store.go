// Package dedup tracks accepted record identifiers in a bounded FIFO set and
// keeps the session and all-time acceptance counters.
package dedup

import "xtap/internal/record"

// Store is a bounded identity set with FIFO eviction. It is owned by the
// pipeline driver and is not safe for concurrent use.
type Store struct {
	capacity int
	ids      map[string]struct{}
	order    []string

	sessionAccepted   int64
	sessionDuplicates int64
	allTime           int64
}

// NewStore returns a store bounded to capacity identifiers. Once full, the
// oldest inserted identifier is evicted first.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 50000
	}
	return &Store{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity/4),
	}
}

// Admit decides whether a record is new. A record is a duplicate iff its id
// was already accepted and it carries no article overlay; article records
// are always accepted so the enriched version reaches the persistence layer
// again for reconciliation.
func (s *Store) Admit(rec *record.Record) bool {
	if rec.ID == "" {
		return false
	}
	_, seen := s.ids[rec.ID]
	if seen && !rec.HasArticle() {
		s.sessionDuplicates++
		return false
	}
	if !seen {
		s.insert(rec.ID)
	}
	s.sessionAccepted++
	s.allTime++
	return true
}

// Seen reports whether id has been accepted this session.
func (s *Store) Seen(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of tracked identifiers.
func (s *Store) Len() int {
	return len(s.ids)
}

// SessionAccepted returns the number of records accepted this session.
func (s *Store) SessionAccepted() int64 { return s.sessionAccepted }

// SessionDuplicates returns the number of records rejected as duplicates
// this session.
func (s *Store) SessionDuplicates() int64 { return s.sessionDuplicates }

// AllTime returns the all-time acceptance counter.
func (s *Store) AllTime() int64 { return s.allTime }

// Restore seeds the set from persisted state, oldest first, and sets the
// all-time counter. Existing contents are replaced.
func (s *Store) Restore(ids []string, allTime int64) {
	s.ids = make(map[string]struct{}, len(ids))
	s.order = s.order[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.insert(id)
	}
	s.allTime = allTime
}

// Snapshot returns tracked identifiers oldest first, for persistence.
func (s *Store) Snapshot() []string {
	return append([]string(nil), s.order...)
}

func (s *Store) insert(id string) {
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	for len(s.ids) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
}
