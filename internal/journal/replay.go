package journal

import (
	"context"
	"fmt"
	"strings"
)

const replayPageSize = 200

// ReplayOptions configures journal replay behavior.
type ReplayOptions struct {
	AfterSeq uint64
	UntilSeq uint64
	Filter   func(Event) bool
}

// Replay folds a round's journal entries through apply in sequence order and
// returns the last sequence number visited.
func Replay(ctx context.Context, store Store, roundID string, apply func(Event) error) (uint64, error) {
	return ReplayWith(ctx, store, roundID, apply, ReplayOptions{})
}

// ReplayWith replays with additional filtering and bounds.
func ReplayWith(ctx context.Context, store Store, roundID string, apply func(Event) error, options ReplayOptions) (uint64, error) {
	if store == nil {
		return 0, fmt.Errorf("journal store is not configured")
	}
	if strings.TrimSpace(roundID) == "" {
		return 0, fmt.Errorf("round id is required")
	}
	if apply == nil {
		return 0, fmt.Errorf("apply function is required")
	}

	lastSeq := options.AfterSeq
	for {
		events, err := store.ListEvents(ctx, roundID, lastSeq, replayPageSize)
		if err != nil {
			return lastSeq, err
		}
		if len(events) == 0 {
			return lastSeq, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return lastSeq, nil
			}
			lastSeq = evt.Seq
			if options.Filter != nil && !options.Filter(evt) {
				continue
			}
			if err := apply(evt); err != nil {
				return lastSeq, err
			}
		}
	}
}
