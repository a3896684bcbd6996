// Package game composes the contract client, the transaction serializer, the
// optimistic manager, the reconciler, and the phase machine into gameplay
// sessions. A session owns one round's client-side lifecycle from create or
// join through completion, and exposes a snapshot-plus-listener surface.
package game

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/optimistic"
	"github.com/lyricsflip/lyricsflip-go/internal/phase"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

// DefaultAnswerOption is what countdown expiry submits so a round never
// stalls on an absent player.
const DefaultAnswerOption uint8 = 0

// Bounded poll and retry budgets. All proceed-or-give-up, never unbounded.
const (
	DefaultAllAnsweredInterval = 500 * time.Millisecond
	DefaultAllAnsweredTries    = 10
	DefaultAdvanceTries        = 3
)

// Snapshot is the hook-shaped read surface of a session. It is a value; a
// listener may keep it without holding any session lock.
type Snapshot struct {
	GamePhase      phase.Phase
	RoundID        round.ID
	CurrentCard    *round.QuestionCard
	CardIndex      uint64
	TimeRemaining  time.Duration
	MyScore        uint64
	CorrectAnswers uint64
	TotalAnswers   uint64
	CanAnswer      bool
	Won            bool
	Err            error
}

// Config wires a session. Chain and Account are required; nil collaborators
// are constructed with defaults so tests can inject only what they inspect.
type Config struct {
	Chain      chain.Client
	Store      *entity.Store
	Queue      *txqueue.Queue
	Bus        *reconcile.Bus
	Reconciler *reconcile.Reconciler
	Optimistic *optimistic.Manager
	Account    chain.Address
	Namespace  string

	Countdown    time.Duration
	TickInterval time.Duration

	AllAnsweredInterval time.Duration
	AllAnsweredTries    uint
	InferInterval       time.Duration
	InferTries          uint

	Logf  func(format string, args ...any)
	Clock func() time.Time
}

// session is the mode-independent core shared by solo and multiplayer play.
type session struct {
	chain   chain.Client
	store   *entity.Store
	queue   *txqueue.Queue
	bus     *reconcile.Bus
	rec     *reconcile.Reconciler
	opt     *optimistic.Manager
	machine *phase.Machine
	account chain.Address
	ns      string
	logf    func(format string, args ...any)
	clock   func() time.Time

	allAnsweredInterval time.Duration
	allAnsweredTries    uint
	inferOpts           reconcile.InferOptions

	mu           sync.Mutex
	roundID      round.ID
	card         *round.QuestionCard
	cardIndex    uint64
	cardsServed  uint64
	cardAnswered bool
	won          bool
	lastErr      error
	closed       bool
	listeners    map[int]func(Snapshot)
	nextListener int
	unsubs       []func()

	// onAnswered, onRoundUpdate, and afterSubmit hook mode-specific
	// advancement into the shared flow. Set once before binding, never
	// after.
	onAnswered    func(ev reconcile.Event)
	onRoundUpdate func(ev reconcile.Event)
	afterSubmit   func(cardIdx uint64)
}

func newSession(cfg Config) (*session, error) {
	if cfg.Chain == nil {
		return nil, fmt.Errorf("chain client is required")
	}
	if cfg.Account.IsZero() {
		return nil, flerrors.New(flerrors.CodeAccountMissing, "no account connected")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = reconcile.DefaultNamespace
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = entity.NewStore()
	}
	if cfg.Queue == nil {
		cfg.Queue = txqueue.New(txqueue.DefaultDelay)
	}
	if cfg.Bus == nil {
		cfg.Bus = reconcile.NewBus(cfg.Logf)
	}
	if cfg.Optimistic == nil {
		cfg.Optimistic = optimistic.NewManager(cfg.Store)
	}
	if cfg.Reconciler == nil {
		rec, err := reconcile.New(reconcile.Config{
			Namespace: cfg.Namespace,
			Store:     cfg.Store,
			Bus:       cfg.Bus,
			Account:   cfg.Account,
			Logf:      cfg.Logf,
			Clock:     cfg.Clock,
		})
		if err != nil {
			return nil, err
		}
		cfg.Reconciler = rec
	}
	if cfg.AllAnsweredInterval <= 0 {
		cfg.AllAnsweredInterval = DefaultAllAnsweredInterval
	}
	if cfg.AllAnsweredTries == 0 {
		cfg.AllAnsweredTries = DefaultAllAnsweredTries
	}

	s := &session{
		chain:               cfg.Chain,
		store:               cfg.Store,
		queue:               cfg.Queue,
		bus:                 cfg.Bus,
		rec:                 cfg.Reconciler,
		opt:                 cfg.Optimistic,
		account:             cfg.Account.Normalize(),
		ns:                  cfg.Namespace,
		logf:                cfg.Logf,
		clock:               cfg.Clock,
		allAnsweredInterval: cfg.AllAnsweredInterval,
		allAnsweredTries:    cfg.AllAnsweredTries,
		inferOpts:           reconcile.InferOptions{Interval: cfg.InferInterval, MaxTries: cfg.InferTries},
		listeners:           map[int]func(Snapshot){},
	}
	s.machine = phase.New(phase.Config{
		Countdown:    cfg.Countdown,
		TickInterval: cfg.TickInterval,
		Clock:        cfg.Clock,
		Logf:         cfg.Logf,
		Callbacks: phase.Callbacks{
			OnPhase:  func(phase.Phase) { s.notify() },
			OnTick:   func(time.Duration) { s.notify() },
			OnExpire: s.expireCard,
		},
	})
	return s, nil
}

// Subscribe registers a listener for snapshot changes. The returned function
// unsubscribes and is safe to call more than once.
func (s *session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns the current session state.
func (s *session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() Snapshot {
	ph := s.machine.Phase()
	me := s.myStatsLocked()
	var card *round.QuestionCard
	if s.card != nil {
		copied := *s.card
		card = &copied
	}
	return Snapshot{
		GamePhase:      ph,
		RoundID:        s.roundID,
		CurrentCard:    card,
		CardIndex:      s.cardIndex,
		TimeRemaining:  s.machine.TimeRemaining(),
		MyScore:        me.TotalScore,
		CorrectAnswers: me.CorrectAnswers,
		TotalAnswers:   me.TotalAnswers,
		CanAnswer:      ph == phase.CardActive && !s.cardAnswered,
		Won:            s.won,
		Err:            s.lastErr,
	}
}

// myStatsLocked folds the reconciled player row with whatever optimistic
// state sits in the store, so counters never appear to move backwards while
// a submission is in flight.
func (s *session) myStatsLocked() round.Player {
	me := s.rec.View().Me
	ent, ok := s.store.Snapshot(s.localPlayerEntityID())
	if !ok {
		return me
	}
	m, ok := ent.Model(s.ns, reconcile.ModelRoundPlayer)
	if !ok {
		return me
	}
	var local round.Player
	if err := entity.DecodeModel(m, &local); err != nil {
		return me
	}
	return round.MergePlayer(me, local)
}

// localPlayerEntityID is where optimistic player mutations land before the
// indexer assigns its own entity for the same row.
func (s *session) localPlayerEntityID() string {
	return fmt.Sprintf("local-player-%s-%s", s.roundID, s.account)
}

func (s *session) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

// bind attaches the session to a round: the reconciler starts folding its
// updates and the bus subscriptions go live.
func (s *session) bind(id round.ID) {
	s.mu.Lock()
	s.roundID = id
	s.mu.Unlock()
	s.rec.Bind(id)

	subs := []struct {
		t reconcile.EventType
		h reconcile.Handler
	}{
		{reconcile.EventRoundUpdated, s.handleRoundUpdated},
		{reconcile.EventRoundCompleted, s.handleRoundCompleted},
		{reconcile.EventPlayerAnswered, s.handlePlayerAnswered},
		{reconcile.EventPlayerJoined, func(reconcile.Event) error { s.notify(); return nil }},
		{reconcile.EventPlayerReady, func(reconcile.Event) error { s.notify(); return nil }},
	}
	s.mu.Lock()
	for _, sub := range subs {
		s.unsubs = append(s.unsubs, s.bus.Subscribe(sub.t, sub.h))
	}
	s.mu.Unlock()
}

func (s *session) handleRoundUpdated(ev reconcile.Event) error {
	s.mu.Lock()
	hook := s.onRoundUpdate
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	if ev.Round != nil && ev.Round.State == round.StateEnded {
		s.completeFromContract()
	}
	s.notify()
	return nil
}

func (s *session) handleRoundCompleted(ev reconcile.Event) error {
	s.completeFromContract()
	s.notify()
	return nil
}

func (s *session) handlePlayerAnswered(ev reconcile.Event) error {
	s.mu.Lock()
	hook := s.onAnswered
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	s.notify()
	return nil
}

// completeFromContract moves to completed on authoritative round-ended
// state, deciding the outcome from the reconciled scoreboard.
func (s *session) completeFromContract() {
	view := s.rec.View()
	won := true
	for addr, p := range view.Players {
		if addr == s.account {
			continue
		}
		if p.TotalScore > view.Me.TotalScore {
			won = false
			break
		}
	}
	s.complete(context.Background(), won)
}

// complete moves the machine to its terminal phase. Safe to call from any
// phase and idempotent once terminal.
func (s *session) complete(ctx context.Context, won bool) {
	s.mu.Lock()
	if s.machine.Phase().Terminal() {
		s.mu.Unlock()
		return
	}
	s.won = won
	s.mu.Unlock()
	if err := s.machine.Force(ctx, phase.Completed); err != nil {
		return
	}
	s.logf("game: round %s completed, won=%v", s.roundID, won)
}

// GetNextCard fetches the next question card. Concurrent calls are no-ops
// while one is already in flight.
func (s *session) GetNextCard(ctx context.Context) error {
	if !s.machine.BeginNextCard() {
		return nil
	}
	defer s.machine.EndNextCard()

	s.mu.Lock()
	rid := s.roundID
	s.mu.Unlock()
	if rid.IsZero() {
		return flerrors.New(flerrors.CodeRoundIDMissing, "no round bound")
	}
	if ph := s.machine.Phase(); ph.Terminal() {
		return nil
	} else if ph != phase.LoadingCard {
		if err := s.machine.Transition(ctx, phase.LoadingCard); err != nil {
			return err
		}
	}

	raw, err := txqueue.Do(ctx, s.queue, fmt.Sprintf("nextCard-%s-%s", rid, s.account),
		func(ctx context.Context) (chain.RawCard, error) {
			return s.chain.NextCard(ctx, rid.String())
		})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "get next card for round %s", rid)
		s.setErr(err)
		return err
	}

	card := round.DecodeCard(raw)
	s.mu.Lock()
	s.card = &card
	s.cardIndex = s.cardsServed
	s.cardsServed++
	s.cardAnswered = false
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.machine.Transition(ctx, phase.CardActive); err != nil {
		return err
	}
	return nil
}

// autoAdvance drives the starting phase forward with a bounded retry; after
// the budget the caller falls back to manual GetNextCard.
func (s *session) autoAdvance(ctx context.Context) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if s.machine.Phase().Terminal() {
			return struct{}{}, nil
		}
		return struct{}{}, s.GetNextCard(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(txqueue.DefaultDelay)),
		backoff.WithMaxTries(DefaultAdvanceTries),
	)
	if err != nil {
		s.logf("game: auto-advance for round %s gave up: %v", s.roundID, err)
	}
}

// SubmitAnswer submits the chosen option for the active card. Exactly one
// submission per card is accepted; duplicates and off-phase calls are
// rejected, concurrent calls are no-ops.
func (s *session) SubmitAnswer(ctx context.Context, option uint8) error {
	s.mu.Lock()
	rid := s.roundID
	answered := s.cardAnswered
	cardIdx := s.cardIndex
	s.mu.Unlock()

	if rid.IsZero() {
		return flerrors.New(flerrors.CodeRoundIDMissing, "no round bound")
	}
	if answered || s.machine.Phase() != phase.CardActive {
		return flerrors.New(flerrors.CodeNotAnswerable, "card %d is not accepting answers", cardIdx)
	}
	if !s.machine.BeginSubmit() {
		return nil
	}
	defer s.machine.EndSubmit()

	_, err := s.opt.Execute(ctx, s.queue, optimistic.ExecuteInput{
		Key:      fmt.Sprintf("submitAnswer-%s-%s", rid, s.account),
		EntityID: s.localPlayerEntityID(),
		Mutate: func(draft *entity.Entity) error {
			m := draft.EnsureNestedModel(s.ns, reconcile.ModelRoundPlayer, nil)
			m["player"] = s.account.String()
			m["round_id"] = rid.String()
			m["joined"] = true
			m["total_answers"] = entity.Uint(m, "total_answers") + 1
			return nil
		},
		Submit: func(ctx context.Context) (chain.TxResult, error) {
			return s.chain.SubmitAnswer(ctx, rid.String(), option)
		},
	})
	if err != nil {
		// The optimistic bump is already reverted; the card stays
		// answerable so the player can retry.
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "submit answer for round %s", rid)
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.cardAnswered = true
	s.lastErr = nil
	hook := s.afterSubmit
	s.mu.Unlock()

	if err := s.machine.Transition(ctx, phase.CardResults); err != nil {
		return err
	}
	if hook != nil {
		go hook(cardIdx)
	}
	return nil
}

// expireCard fires on countdown expiry: the default option is submitted so
// the round cannot stall on a stuck card.
func (s *session) expireCard() {
	if err := s.SubmitAnswer(context.Background(), DefaultAnswerOption); err != nil {
		s.logf("game: auto-submit on expiry failed: %v", err)
	}
}

// waitAllAnswered polls until every joined player has a scored answer for
// the card, then returns. Exhausting the budget proceeds rather than fails.
func (s *session) waitAllAnswered(ctx context.Context, cardIdx uint64) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		view := s.rec.View()
		players := int(view.Round.PlayersCount)
		if players == 0 {
			players = len(view.Players)
		}
		if players <= 1 || view.AnswersForCard(cardIdx) >= players {
			return struct{}{}, nil
		}
		return struct{}{}, flerrors.New(flerrors.CodeRoundSyncTimeout,
			"%d of %d answers for card %d", view.AnswersForCard(cardIdx), players, cardIdx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.allAnsweredInterval)),
		backoff.WithMaxTries(s.allAnsweredTries),
	)
	if err != nil {
		s.logf("game: proceeding without all answers for card %d: %v", cardIdx, err)
	}
}

// Close tears the session down: countdown and guards stopped, queue cleared,
// bus subscriptions dropped, reconciler seen-state reset. Idempotent.
func (s *session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.listeners = map[int]func(Snapshot){}
	s.mu.Unlock()

	s.machine.Close()
	s.queue.Clear()
	for _, unsub := range unsubs {
		unsub()
	}
	s.rec.Close()
}
