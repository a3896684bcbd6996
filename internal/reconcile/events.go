// Package reconcile maintains one canonical view of the round and its
// players despite indexed updates arriving out of order, duplicated, or via
// two different subscription mechanisms (entity diffs and typed events).
package reconcile

import (
	"fmt"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

// EventType identifies the kind of a domain event.
type EventType string

// Domain events published on the bus.
const (
	// EventRoundCreated records the first sighting of a round.
	EventRoundCreated EventType = "round.created"
	// EventRoundUpdated records a change to a known round.
	EventRoundUpdated EventType = "round.updated"
	// EventPlayerJoined records a player joining the round.
	EventPlayerJoined EventType = "player.joined"
	// EventPlayerReady records a player signalling readiness.
	EventPlayerReady EventType = "player.ready"
	// EventPlayerAnswered records a scored answer for a card.
	EventPlayerAnswered EventType = "player.answered"
	// EventRoundCompleted records the round reaching its terminal state.
	EventRoundCompleted EventType = "round.completed"
)

// Answer describes a scored player answer. Correctness is only ever known
// from the indexer event, never computed client-side from card data.
type Answer struct {
	RoundID   round.ID
	Player    chain.Address
	CardIndex uint64
	IsCorrect bool
	TimeTaken uint64
}

// Identity is the dedup key for an answer: round, card, and player.
func (a Answer) Identity() string {
	return fmt.Sprintf("answer-%s-%d-%s", a.RoundID, a.CardIndex, a.Player.Normalize())
}

// Event is one reconciled domain event.
type Event struct {
	Type      EventType
	RoundID   round.ID
	Player    chain.Address
	Round     *round.Round
	Answer    *Answer
	Timestamp time.Time
}

// IndexedEvent is a typed event frame as delivered by the indexer event
// subscription, before reconciliation.
type IndexedEvent struct {
	// Key identifies the event type on the wire.
	Key string
	// ID is the indexer-assigned event identity used for deduplication.
	ID string
	// RoundID, Player, CardIndex, IsCorrect, TimeTaken carry the payload for
	// answer and ready events.
	RoundID   string
	Player    string
	CardIndex uint64
	IsCorrect bool
	TimeTaken uint64
	Timestamp time.Time
}

// Wire keys for typed indexer events.
const (
	IndexedPlayerAnswer = "PlayerAnswer"
	IndexedPlayerReady  = "PlayerReady"
	IndexedRoundCreated = "RoundCreated"
)
