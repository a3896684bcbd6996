// Package journal provides a local append-only record of reconciled domain
// events, so a session can be inspected or replayed after a reconnect. The
// journal is an observer of reconciliation, never an input to consensus.
package journal

import (
	"context"
	"fmt"
	"time"
)

// Event is one journal entry.
type Event struct {
	// RoundID groups events by round.
	RoundID string
	// Seq is the entry sequence number within the round (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event was accepted by the reconciler.
	Timestamp time.Time
	// Type is the domain event type (e.g. "player.answered").
	Type string
	// Actor is the normalized player address the event is attributed to,
	// empty for round-level events.
	Actor string
	// EntityID is the indexed entity or event identity the entry derives
	// from.
	EntityID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// Store persists journal entries.
type Store interface {
	AppendEvent(ctx context.Context, evt Event) (Event, error)
	ListEvents(ctx context.Context, roundID string, afterSeq uint64, limit int) ([]Event, error)
	Close() error
}

// Recorder appends events to a journal store. A nil recorder or a recorder
// without a store is a no-op, so journaling stays optional.
type Recorder struct {
	store Store
	clock func() time.Time
}

// NewRecorder creates a recorder over a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, clock: time.Now}
}

// Record appends one event. Missing timestamps are filled from the clock.
func (r *Recorder) Record(ctx context.Context, evt Event) error {
	if r == nil || r.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if r.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = r.clock().UTC()
		}
	}
	if _, err := r.store.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}
