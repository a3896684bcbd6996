// Package phase drives the client-side gameplay lifecycle of a round. The
// machine owns the phase value, the per-card countdown timer, and the
// re-entrancy guards that keep timer races and event-driven re-triggers from
// issuing duplicate contract calls.
package phase

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
)

var tracer = otel.Tracer("lyricsflip/phase")

// Phase is the client-derived lifecycle state of a round.
type Phase string

const (
	// Waiting means the round exists but the contract has not started it.
	Waiting Phase = "waiting"
	// Starting means the contract reports the round in progress but no
	// card has been fetched yet. A round enters this phase exactly once.
	Starting Phase = "starting"
	// LoadingCard is the transient state while a next-card call is
	// outstanding.
	LoadingCard Phase = "loading_card"
	// CardActive means a card is displayed and exactly one answer is
	// accepted, under a countdown.
	CardActive Phase = "card_active"
	// CardResults means the answer is in and the machine waits for
	// scoring, or for the rest of the table, before advancing.
	CardResults Phase = "card_results"
	// Completed is terminal.
	Completed Phase = "completed"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case Waiting, Starting, LoadingCard, CardActive, CardResults, Completed:
		return true
	}
	return false
}

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool { return p == Completed }

func (p Phase) String() string { return string(p) }

// transitions is the full set of legal phase moves. Completed has no
// successors.
var transitions = map[Phase]map[Phase]struct{}{
	Waiting:     {Starting: {}, Completed: {}},
	Starting:    {LoadingCard: {}, CardActive: {}, Completed: {}},
	LoadingCard: {CardActive: {}, CardResults: {}, Completed: {}},
	CardActive:  {CardResults: {}, Completed: {}},
	CardResults: {LoadingCard: {}, CardActive: {}, Completed: {}},
	Completed:   {},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to Phase) bool {
	_, ok := transitions[from][to]
	return ok
}

// Countdown defaults. The tick interval drives how often remaining time is
// reported; expiry is checked against the deadline, not tick counts, so a
// late tick cannot extend a card.
const (
	DefaultCountdown    = 30 * time.Second
	DefaultTickInterval = time.Second
)

// Callbacks are invoked outside the machine lock. OnExpire fires at most
// once per countdown.
type Callbacks struct {
	OnPhase  func(Phase)
	OnTick   func(remaining time.Duration)
	OnExpire func()
}

// Config configures a Machine. Zero values take defaults.
type Config struct {
	Countdown    time.Duration
	TickInterval time.Duration
	Clock        func() time.Time
	Logf         func(format string, args ...any)
	Callbacks    Callbacks
}

// Machine is a guarded phase state machine for a single round. All methods
// are safe for concurrent use.
type Machine struct {
	mu        sync.Mutex
	phase     Phase
	countdown time.Duration
	tick      time.Duration
	clock     func() time.Time
	logf      func(string, ...any)
	cb        Callbacks

	// gen invalidates countdown callbacks scheduled against a phase that
	// has since moved on. Both starting and stopping a countdown bump it.
	gen      uint64
	deadline time.Time
	stop     chan struct{}

	nextCardInFlight bool
	submitInFlight   bool
}

// New builds a Machine in the waiting phase.
func New(cfg Config) *Machine {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return &Machine{
		phase:     Waiting,
		countdown: cfg.Countdown,
		tick:      cfg.TickInterval,
		clock:     cfg.Clock,
		logf:      cfg.Logf,
		cb:        cfg.Callbacks,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transition moves the machine to a new phase, enforcing the transition
// table. Entering card_active starts a fresh countdown; leaving it stops
// whatever countdown is live.
func (m *Machine) Transition(ctx context.Context, to Phase) error {
	m.mu.Lock()
	from := m.phase
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return flerrors.New(flerrors.CodePhaseTransition, "cannot move from %s to %s", from, to)
	}
	m.phase = to
	switch to {
	case CardActive:
		m.startCountdownLocked()
	case CardResults, Completed:
		m.stopCountdownLocked()
	}
	onPhase := m.cb.OnPhase
	m.mu.Unlock()

	_, span := tracer.Start(ctx, "phase.transition", trace.WithAttributes(
		attribute.String("phase.from", string(from)),
		attribute.String("phase.to", string(to)),
	))
	span.End()

	m.logf("phase: %s -> %s", from, to)
	if onPhase != nil {
		onPhase(to)
	}
	return nil
}

// Force moves to a phase without table validation. Reserved for reconciling
// against authoritative contract state, which may skip local intermediate
// phases. Completed stays terminal even here.
func (m *Machine) Force(ctx context.Context, to Phase) error {
	m.mu.Lock()
	from := m.phase
	if from.Terminal() || !to.Valid() {
		m.mu.Unlock()
		return flerrors.New(flerrors.CodePhaseTransition, "cannot force from %s to %s", from, to)
	}
	if from == to {
		m.mu.Unlock()
		return nil
	}
	m.phase = to
	switch to {
	case CardActive:
		m.startCountdownLocked()
	default:
		m.stopCountdownLocked()
	}
	onPhase := m.cb.OnPhase
	m.mu.Unlock()

	m.logf("phase: %s => %s (forced)", from, to)
	if onPhase != nil {
		onPhase(to)
	}
	return nil
}

// TimeRemaining returns how long the current card countdown has left, or
// zero when no countdown is live.
func (m *Machine) TimeRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil || m.phase != CardActive {
		return 0
	}
	rem := m.deadline.Sub(m.clock())
	if rem < 0 {
		return 0
	}
	return rem
}

// CountdownLive reports whether a countdown worker is running.
func (m *Machine) CountdownLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// BeginNextCard claims the get-next-card in-flight flag. It returns false
// when a homologous call is already outstanding.
func (m *Machine) BeginNextCard() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextCardInFlight {
		return false
	}
	m.nextCardInFlight = true
	return true
}

// EndNextCard releases the get-next-card flag.
func (m *Machine) EndNextCard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCardInFlight = false
}

// BeginSubmit claims the submit-answer in-flight flag. It returns false when
// a submission is already outstanding or the phase does not accept answers.
func (m *Machine) BeginSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitInFlight || m.phase != CardActive {
		return false
	}
	m.submitInFlight = true
	return true
}

// EndSubmit releases the submit-answer flag.
func (m *Machine) EndSubmit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitInFlight = false
}

// Close stops any live countdown and clears the in-flight flags. The phase
// itself is left as-is.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCountdownLocked()
	m.nextCardInFlight = false
	m.submitInFlight = false
}

func (m *Machine) startCountdownLocked() {
	m.stopCountdownLocked()
	m.gen++
	m.deadline = m.clock().Add(m.countdown)
	stop := make(chan struct{})
	m.stop = stop
	go m.runCountdown(m.gen, stop)
}

func (m *Machine) stopCountdownLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.gen++
}

func (m *Machine) runCountdown(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if done := m.fireTick(gen); done {
			return
		}
	}
}

// fireTick re-validates the generation and phase before touching state: the
// tick may have been scheduled against a countdown that was since replaced.
func (m *Machine) fireTick(gen uint64) bool {
	m.mu.Lock()
	if gen != m.gen || m.phase != CardActive {
		m.mu.Unlock()
		return true
	}
	rem := m.deadline.Sub(m.clock())
	if rem > 0 {
		onTick := m.cb.OnTick
		m.mu.Unlock()
		if onTick != nil {
			onTick(rem)
		}
		return false
	}
	m.stopCountdownLocked()
	onExpire := m.cb.OnExpire
	m.mu.Unlock()
	m.logf("phase: card countdown expired")
	if onExpire != nil {
		onExpire()
	}
	return true
}
