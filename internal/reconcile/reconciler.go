package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	"github.com/lyricsflip/lyricsflip-go/internal/journal"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

// DefaultNamespace is the contract model namespace.
const DefaultNamespace = "lyricsflip"

// Model names inside the namespace.
const (
	ModelRound       = "Round"
	ModelRoundPlayer = "RoundPlayer"
	ModelRoundsCount = "RoundsCount"
)

// View is the canonical reconciled state of one round: the round projection,
// the local player's row, and every known player row keyed by normalized
// address.
type View struct {
	Round      round.Round
	Me         round.Player
	Players    map[chain.Address]round.Player
	LastAnswer *Answer

	answersByCard map[uint64]map[chain.Address]struct{}
}

// AnswersForCard reports how many distinct players have a scored answer for
// the given card index.
func (v View) AnswersForCard(cardIndex uint64) int {
	return len(v.answersByCard[cardIndex])
}

func (v View) clone() View {
	out := v
	out.Players = make(map[chain.Address]round.Player, len(v.Players))
	for k, p := range v.Players {
		out.Players[k] = p
	}
	out.answersByCard = make(map[uint64]map[chain.Address]struct{}, len(v.answersByCard))
	for card, set := range v.answersByCard {
		copied := make(map[chain.Address]struct{}, len(set))
		for addr := range set {
			copied[addr] = struct{}{}
		}
		out.answersByCard[card] = copied
	}
	if v.LastAnswer != nil {
		answer := *v.LastAnswer
		out.LastAnswer = &answer
	}
	return out
}

// Config wires a Reconciler. Store and Bus are required; the journal
// recorder is optional.
type Config struct {
	Namespace string
	Store     *entity.Store
	Bus       *Bus
	Journal   *journal.Recorder
	Account   chain.Address
	Logf      func(format string, args ...any)
	Clock     func() time.Time
}

// Reconciler folds entity diffs and typed indexer events into a single
// canonical round view, deduplicating by identity and publishing domain
// events on the bus.
type Reconciler struct {
	ns      string
	store   *entity.Store
	bus     *Bus
	journal *journal.Recorder
	account chain.Address
	logf    func(format string, args ...any)
	clock   func() time.Time

	mu    sync.Mutex
	bound round.ID
	seen  *seenSet
	view  View
}

// New creates a reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Reconciler{
		ns:      cfg.Namespace,
		store:   cfg.Store,
		bus:     cfg.Bus,
		journal: cfg.Journal,
		account: cfg.Account.Normalize(),
		logf:    cfg.Logf,
		clock:   cfg.Clock,
		seen:    newSeenSet(),
		view:    View{Players: map[chain.Address]round.Player{}, answersByCard: map[uint64]map[chain.Address]struct{}{}},
	}, nil
}

// Bind subscribes the reconciler to a specific round. Events for other
// rounds are stored but not folded into the view.
func (r *Reconciler) Bind(id round.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound == id {
		return
	}
	r.bound = id
	r.view = View{Players: map[chain.Address]round.Player{}, answersByCard: map[uint64]map[chain.Address]struct{}{}}
}

// Bound returns the currently bound round id.
func (r *Reconciler) Bound() round.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// View returns a copy of the canonical round view.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.clone()
}

// Close unbinds the round and clears the seen set. The seen set is cleared
// only here: for the lifetime of a subscription it grows monotonically.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.bound = ""
	r.view = View{Players: map[chain.Address]round.Player{}, answersByCard: map[uint64]map[chain.Address]struct{}{}}
	r.mu.Unlock()
	r.seen.reset()
}

// ApplyEntity folds one indexed entity record: the store is updated
// authoritatively, then any Round/RoundPlayer models are reconciled into the
// view. Batches may redeliver already-seen records; reprocessing is
// harmless by construction.
func (r *Reconciler) ApplyEntity(ctx context.Context, ent *entity.Entity) error {
	if ent == nil || ent.ID == "" {
		return nil
	}
	r.store.Put(ent)

	if m, ok := ent.Model(r.ns, ModelRound); ok {
		if err := r.applyRoundModel(ctx, ent.ID, m); err != nil {
			return err
		}
	}
	if m, ok := ent.Model(r.ns, ModelRoundPlayer); ok {
		if err := r.applyPlayerModel(ctx, ent.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyRoundModel(ctx context.Context, entityID string, m entity.Model) error {
	var incoming round.Round
	if err := entity.DecodeModel(m, &incoming); err != nil {
		return fmt.Errorf("decode round model on %s: %w", entityID, err)
	}
	if incoming.ID.IsZero() {
		return nil
	}

	created := r.seen.mark("round.created-" + string(incoming.ID))
	if created {
		r.publish(ctx, Event{
			Type:      EventRoundCreated,
			RoundID:   incoming.ID,
			Player:    incoming.Creator,
			Round:     &incoming,
			Timestamp: r.clock().UTC(),
		}, entityID)
	}

	r.mu.Lock()
	if r.bound == "" || incoming.ID != r.bound {
		r.mu.Unlock()
		return nil
	}
	previous := r.view.Round
	merged := round.Merge(previous, incoming)
	r.view.Round = merged
	changed := merged != previous
	completed := merged.State == round.StateEnded && previous.State != round.StateEnded
	r.mu.Unlock()

	if changed && !created {
		r.publish(ctx, Event{
			Type:      EventRoundUpdated,
			RoundID:   merged.ID,
			Round:     &merged,
			Timestamp: r.clock().UTC(),
		}, entityID)
	}
	if completed && r.seen.mark("round.completed-"+string(merged.ID)) {
		r.publish(ctx, Event{
			Type:      EventRoundCompleted,
			RoundID:   merged.ID,
			Round:     &merged,
			Timestamp: r.clock().UTC(),
		}, entityID)
	}
	return nil
}

func (r *Reconciler) applyPlayerModel(ctx context.Context, entityID string, m entity.Model) error {
	var incoming round.Player
	if err := entity.DecodeModel(m, &incoming); err != nil {
		return fmt.Errorf("decode player model on %s: %w", entityID, err)
	}
	if err := incoming.Validate(); err != nil {
		return fmt.Errorf("player model on %s: %w", entityID, err)
	}
	addr := incoming.Address.Normalize()
	if addr.IsZero() {
		return nil
	}

	r.mu.Lock()
	if r.bound == "" || (incoming.RoundID != "" && incoming.RoundID != r.bound) {
		r.mu.Unlock()
		return nil
	}
	current := r.view.Players[addr]
	merged := round.MergePlayer(current, incoming)
	r.view.Players[addr] = merged
	if addr.Equal(r.account) {
		r.view.Me = merged
	}
	rid := r.bound
	r.mu.Unlock()

	if merged.Joined && r.seen.mark(fmt.Sprintf("player.joined-%s-%s", rid, addr)) {
		r.publish(ctx, Event{
			Type:      EventPlayerJoined,
			RoundID:   rid,
			Player:    addr,
			Timestamp: r.clock().UTC(),
		}, entityID)
	}
	if merged.Ready && r.seen.mark(fmt.Sprintf("player.ready-%s-%s", rid, addr)) {
		r.publish(ctx, Event{
			Type:      EventPlayerReady,
			RoundID:   rid,
			Player:    addr,
			Timestamp: r.clock().UTC(),
		}, entityID)
	}
	return nil
}

// ApplyEvent folds one typed indexer event frame. Duplicate deliveries are
// suppressed by event identity.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev IndexedEvent) error {
	switch ev.Key {
	case IndexedPlayerAnswer:
		return r.applyAnswerEvent(ctx, ev)
	case IndexedPlayerReady:
		return r.applyReadyEvent(ctx, ev)
	case IndexedRoundCreated:
		// Round creation is reconciled from the entity model; the typed
		// frame only matters when it precedes the entity.
		return nil
	default:
		return nil
	}
}

func (r *Reconciler) applyAnswerEvent(ctx context.Context, ev IndexedEvent) error {
	rid, err := round.ParseID(ev.RoundID)
	if err != nil {
		return fmt.Errorf("answer event: %w", err)
	}
	answer := Answer{
		RoundID:   rid,
		Player:    chain.NormalizeAddress(ev.Player),
		CardIndex: ev.CardIndex,
		IsCorrect: ev.IsCorrect,
		TimeTaken: ev.TimeTaken,
	}
	identity := ev.ID
	if identity == "" {
		identity = answer.Identity()
	}

	r.mu.Lock()
	if r.bound == "" || rid != r.bound {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if !r.seen.mark(identity) {
		return nil
	}

	r.mu.Lock()
	set, ok := r.view.answersByCard[answer.CardIndex]
	if !ok {
		set = map[chain.Address]struct{}{}
		r.view.answersByCard[answer.CardIndex] = set
	}
	set[answer.Player] = struct{}{}
	if answer.Player.Equal(r.account) {
		copied := answer
		r.view.LastAnswer = &copied
	}
	r.mu.Unlock()

	r.publish(ctx, Event{
		Type:      EventPlayerAnswered,
		RoundID:   rid,
		Player:    answer.Player,
		Answer:    &answer,
		Timestamp: eventTime(ev, r.clock),
	}, identity)
	return nil
}

func (r *Reconciler) applyReadyEvent(ctx context.Context, ev IndexedEvent) error {
	rid, err := round.ParseID(ev.RoundID)
	if err != nil {
		return fmt.Errorf("ready event: %w", err)
	}
	addr := chain.NormalizeAddress(ev.Player)

	r.mu.Lock()
	if r.bound == "" || rid != r.bound {
		r.mu.Unlock()
		return nil
	}
	p := r.view.Players[addr]
	p.Address = addr
	p.RoundID = rid
	p.Ready = true
	r.view.Players[addr] = p
	if addr.Equal(r.account) {
		r.view.Me = p
	}
	r.mu.Unlock()

	if r.seen.mark(fmt.Sprintf("player.ready-%s-%s", rid, addr)) {
		r.publish(ctx, Event{
			Type:      EventPlayerReady,
			RoundID:   rid,
			Player:    addr,
			Timestamp: eventTime(ev, r.clock),
		}, ev.ID)
	}
	return nil
}

func eventTime(ev IndexedEvent, clock func() time.Time) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return clock().UTC()
}

// publish delivers the event on the bus and records it in the journal.
func (r *Reconciler) publish(ctx context.Context, evt Event, entityID string) {
	r.bus.Publish(evt)
	if r.journal == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logf("reconcile: marshal journal payload for %s: %v", evt.Type, err)
		return
	}
	if err := r.journal.Record(ctx, journal.Event{
		RoundID:     string(evt.RoundID),
		Timestamp:   evt.Timestamp,
		Type:        string(evt.Type),
		Actor:       string(evt.Player),
		EntityID:    entityID,
		PayloadJSON: payload,
	}); err != nil {
		r.logf("reconcile: journal %s: %v", evt.Type, err)
	}
}
