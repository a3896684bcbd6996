package reconcile

import "sync"

// seenSet suppresses reprocessing of entities and events by identity. It is
// a set, not a counter: marking the same identity twice has no further
// effect. The set grows monotonically for the lifetime of a round
// subscription and is cleared only on explicit reset.
type seenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{ids: map[string]struct{}{}}
}

// mark records an identity, reporting whether this was its first sighting.
func (s *seenSet) mark(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *seenSet) reset() {
	s.mu.Lock()
	s.ids = map[string]struct{}{}
	s.mu.Unlock()
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
