package activity

import (
	"sync"
	"time"
)

// Store keeps a bounded window of recent events in memory. Unlike a
// state table there is no keying: every event is appended, old ones
// fall off by count and by age.
type Store struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	data []Event
}

func NewStore(ttl time.Duration, max int) *Store {
	if max <= 0 {
		max = 64
	}
	return &Store{ttl: ttl, max: max}
}

func (s *Store) Add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, e)
	if len(s.data) > s.max {
		s.data = s.data[len(s.data)-s.max:]
	}
}

// Recent returns the retained events newest first, dropping any older
// than the TTL.
func (s *Store) Recent(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 {
		kept := s.data[:0]
		for _, e := range s.data {
			if now.Sub(e.TS) <= s.ttl {
				kept = append(kept, e)
			}
		}
		s.data = kept
	}
	result := make([]Event, len(s.data))
	for i, e := range s.data {
		result[len(s.data)-1-i] = e
	}
	return result
}
