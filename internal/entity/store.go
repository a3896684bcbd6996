package entity

import "sync"

// Store is the process-shared entity cache. It is mutated from two paths:
// optimistically by the local transaction path and authoritatively by the
// indexer subscription; everything else reads snapshots.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewStore creates an empty entity store.
func NewStore() *Store {
	return &Store{entities: map[string]*Entity{}}
}

// Snapshot returns a deep copy of the entity, or false if absent.
func (s *Store) Snapshot(id string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return ent.Clone(), true
}

// Put replaces the stored entity with a copy of ent.
func (s *Store) Put(ent *Entity) {
	if ent == nil || ent.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[ent.ID] = ent.Clone()
}

// Update applies fn to a copy-on-write draft of the entity, creating it if
// absent, and commits the draft atomically. The prior record is returned so
// callers can retain a before-image.
func (s *Store) Update(id string, fn func(draft *Entity) error) (before *Entity, existed bool, err error) {
	if id == "" || fn == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entities[id]
	var draft *Entity
	if ok {
		before = current.Clone()
		draft = current.Clone()
	} else {
		draft = New(id)
	}
	if err := fn(draft); err != nil {
		return nil, ok, err
	}
	s.entities[id] = draft
	return before, ok, nil
}

// Restore puts back a before-image captured by Update, or deletes the entity
// when the before-image is nil (the entity did not exist).
func (s *Store) Restore(id string, before *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if before == nil {
		delete(s.entities, id)
		return
	}
	s.entities[id] = before.Clone()
}

// Delete removes an entity.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

// All returns deep copies of every stored entity, in unspecified order.
func (s *Store) All() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.entities))
	for _, ent := range s.entities {
		out = append(out, ent.Clone())
	}
	return out
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
