// Package testkit provides in-memory fakes for exercising gameplay without a
// network: a scripted contract that also plays the indexer, delivering the
// entity and event updates a real deployment would.
package testkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

// EntitySink receives simulated indexer entity diffs.
type EntitySink func(ctx context.Context, ent *entity.Entity) error

// EventSink receives simulated typed indexer events.
type EventSink func(ctx context.Context, ev reconcile.IndexedEvent) error

// FakeChain is a scripted LyricsFlip contract plus its indexer. Cards are
// served in order per player; Correct holds the winning option index per
// card. State changes are queued as indexer deliveries and reach the sinks
// on Flush, or automatically after AutoFlush when set.
type FakeChain struct {
	Namespace string
	Cards     []chain.RawCard
	Correct   []uint8
	// AutoFlush, when positive, delivers queued updates that long after
	// every transaction, imitating indexer lag.
	AutoFlush time.Duration
	Clock     func() time.Time

	mu      sync.Mutex
	rounds  map[round.ID]*fakeRound
	nextID  uint64
	seq     uint64
	pending []delivery
	sinks   []sinkPair
	fail    map[string]error
}

type sinkPair struct {
	entities EntitySink
	events   EventSink
}

type delivery struct {
	ent *entity.Entity
	ev  *reconcile.IndexedEvent
}

type fakeRound struct {
	id        round.ID
	creator   chain.Address
	mode      uint8
	state     round.State
	wager     uint64
	cardCount uint64
	createdAt time.Time
	startedAt time.Time
	players   map[chain.Address]*fakePlayer
}

type fakePlayer struct {
	joined   bool
	ready    bool
	served   uint64
	total    uint64
	correct  uint64
	score    uint64
	bestTime uint64
}

// NewFakeChain builds an empty fake. Cards and Correct should be set before
// play begins.
func NewFakeChain() *FakeChain {
	return &FakeChain{
		Namespace: reconcile.DefaultNamespace,
		Clock:     time.Now,
		rounds:    map[round.ID]*fakeRound{},
		fail:      map[string]error{},
	}
}

// AddSink registers a session's reconciler as an indexer subscriber.
func (f *FakeChain) AddSink(entities EntitySink, events EventSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sinkPair{entities: entities, events: events})
}

// FailNextCall makes the next invocation of the named operation return err.
// Operation names match the contract methods: createRound, joinRound,
// startRound, nextCard, submitAnswer.
func (f *FakeChain) FailNextCall(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Client returns a contract client bound to one signing account.
func (f *FakeChain) Client(addr chain.Address) chain.Client {
	return &accountClient{world: f, account: addr.Normalize()}
}

// Flush delivers all queued indexer updates to every sink, in order.
func (f *FakeChain) Flush(ctx context.Context) {
	f.mu.Lock()
	queued := f.pending
	f.pending = nil
	sinks := append([]sinkPair(nil), f.sinks...)
	f.mu.Unlock()

	for _, d := range queued {
		for _, sink := range sinks {
			if d.ent != nil && sink.entities != nil {
				_ = sink.entities(ctx, d.ent.Clone())
			}
			if d.ev != nil && sink.events != nil {
				_ = sink.events(ctx, *d.ev)
			}
		}
	}
}

// Rounds reports how many rounds have been created.
func (f *FakeChain) Rounds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rounds)
}

func (f *FakeChain) takeFail(op string) error {
	err := f.fail[op]
	if err != nil {
		delete(f.fail, op)
	}
	return err
}

func (f *FakeChain) scheduleFlush() {
	if f.AutoFlush <= 0 {
		return
	}
	delay := f.AutoFlush
	time.AfterFunc(delay, func() { f.Flush(context.Background()) })
}

func (f *FakeChain) txHash() string {
	f.seq++
	return fmt.Sprintf("0x%08x", f.seq)
}

// queueRound emits the round model in the nested encoding.
func (f *FakeChain) queueRound(r *fakeRound) {
	ent := entity.New(fmt.Sprintf("round-%s", r.id))
	m := ent.EnsureNestedModel(f.Namespace, reconcile.ModelRound, nil)
	m["round_id"] = string(r.id)
	m["creator"] = r.creator.String()
	m["mode"] = fmt.Sprintf("0x%x", r.mode)
	m["state"] = fmt.Sprintf("0x%x", uint8(r.state))
	m["wager_amount"] = fmt.Sprintf("0x%x", r.wager)
	m["players_count"] = fmt.Sprintf("0x%x", len(r.players))
	m["ready_players_count"] = fmt.Sprintf("0x%x", r.readyCount())
	m["next_card_index"] = fmt.Sprintf("0x%x", r.maxServed())
	m["creation_time"] = fmt.Sprintf("%d", r.createdAt.Unix())
	if !r.startedAt.IsZero() {
		m["start_time"] = fmt.Sprintf("%d", r.startedAt.Unix())
	}
	f.pending = append(f.pending, delivery{ent: ent})
}

// queuePlayer emits the player model in the flat encoding, so both entity
// shapes stay exercised.
func (f *FakeChain) queuePlayer(r *fakeRound, addr chain.Address) {
	p := r.players[addr]
	ent := entity.New(fmt.Sprintf("player-%s-%s", r.id, addr))
	ent.Data[fmt.Sprintf("%s-%s", f.Namespace, reconcile.ModelRoundPlayer)] = entity.Model{
		"player":          addr.String(),
		"round_id":        string(r.id),
		"joined":          boolFelt(p.joined),
		"ready_state":     boolFelt(p.ready),
		"next_card_index": fmt.Sprintf("0x%x", p.served),
		"correct_answers": fmt.Sprintf("0x%x", p.correct),
		"total_answers":   fmt.Sprintf("0x%x", p.total),
		"total_score":     fmt.Sprintf("0x%x", p.score),
		"best_time":       fmt.Sprintf("0x%x", p.bestTime),
	}
	f.pending = append(f.pending, delivery{ent: ent})
}

func (f *FakeChain) queueRoundsCount() {
	ent := entity.New("rounds-count")
	m := ent.EnsureNestedModel(f.Namespace, reconcile.ModelRoundsCount, nil)
	m["count"] = fmt.Sprintf("0x%x", f.nextID)
	f.pending = append(f.pending, delivery{ent: ent})
}

func (f *FakeChain) queueAnswerEvent(r *fakeRound, addr chain.Address, cardIdx uint64, correct bool) {
	f.seq++
	ev := reconcile.IndexedEvent{
		Key:       reconcile.IndexedPlayerAnswer,
		ID:        fmt.Sprintf("evt-%d", f.seq),
		RoundID:   string(r.id),
		Player:    addr.String(),
		CardIndex: cardIdx,
		IsCorrect: correct,
		Timestamp: f.Clock(),
	}
	f.pending = append(f.pending, delivery{ev: &ev})
}

func (r *fakeRound) readyCount() int {
	n := 0
	for _, p := range r.players {
		if p.ready {
			n++
		}
	}
	return n
}

func (r *fakeRound) maxServed() uint64 {
	var max uint64
	for _, p := range r.players {
		if p.served > max {
			max = p.served
		}
	}
	return max
}

func boolFelt(b bool) string {
	if b {
		return "0x1"
	}
	return "0x0"
}

// accountClient implements chain.Client for one signing account.
type accountClient struct {
	world   *FakeChain
	account chain.Address
}

func (c *accountClient) CreateRound(ctx context.Context, mode uint8, challengeType string, param1, param2 uint64) (chain.TxResult, error) {
	f := c.world
	f.mu.Lock()
	if err := f.takeFail("createRound"); err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	f.nextID++
	id := round.ID(fmt.Sprintf("0x%x", f.nextID))
	r := &fakeRound{
		id:        id,
		creator:   c.account,
		mode:      mode,
		state:     round.StateWaiting,
		wager:     param1,
		cardCount: param2,
		createdAt: f.Clock(),
		players:   map[chain.Address]*fakePlayer{c.account: {joined: true}},
	}
	f.rounds[id] = r
	f.queueRound(r)
	f.queuePlayer(r, c.account)
	f.queueRoundsCount()
	hash := f.txHash()
	f.mu.Unlock()
	f.scheduleFlush()
	return chain.TxResult{Hash: hash}, nil
}

func (c *accountClient) JoinRound(ctx context.Context, roundID string) (chain.TxResult, error) {
	f := c.world
	f.mu.Lock()
	if err := f.takeFail("joinRound"); err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	r, err := f.lookup(roundID)
	if err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	if _, ok := r.players[c.account]; !ok {
		r.players[c.account] = &fakePlayer{joined: true}
	}
	f.queueRound(r)
	f.queuePlayer(r, c.account)
	hash := f.txHash()
	f.mu.Unlock()
	f.scheduleFlush()
	return chain.TxResult{Hash: hash}, nil
}

func (c *accountClient) StartRound(ctx context.Context, roundID string) (chain.TxResult, error) {
	f := c.world
	f.mu.Lock()
	if err := f.takeFail("startRound"); err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	r, err := f.lookup(roundID)
	if err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	if r.state == round.StateWaiting || r.state == round.StatePending {
		r.state = round.StateInProgress
		r.startedAt = f.Clock()
	}
	f.queueRound(r)
	hash := f.txHash()
	f.mu.Unlock()
	f.scheduleFlush()
	return chain.TxResult{Hash: hash}, nil
}

func (c *accountClient) NextCard(ctx context.Context, roundID string) (chain.RawCard, error) {
	f := c.world
	f.mu.Lock()
	if err := f.takeFail("nextCard"); err != nil {
		f.mu.Unlock()
		return chain.RawCard{}, err
	}
	r, err := f.lookup(roundID)
	if err != nil {
		f.mu.Unlock()
		return chain.RawCard{}, err
	}
	p, ok := r.players[c.account]
	if !ok {
		f.mu.Unlock()
		return chain.RawCard{}, fmt.Errorf("account %s is not a player in round %s", c.account, roundID)
	}
	if int(p.served) >= len(f.Cards) {
		f.mu.Unlock()
		return chain.RawCard{}, fmt.Errorf("round %s has no cards left", roundID)
	}
	card := f.Cards[p.served]
	p.served++
	f.queueRound(r)
	f.queuePlayer(r, c.account)
	f.mu.Unlock()
	f.scheduleFlush()
	return card, nil
}

func (c *accountClient) SubmitAnswer(ctx context.Context, roundID string, answer uint8) (chain.TxResult, error) {
	f := c.world
	f.mu.Lock()
	if err := f.takeFail("submitAnswer"); err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	r, err := f.lookup(roundID)
	if err != nil {
		f.mu.Unlock()
		return chain.TxResult{}, err
	}
	p, ok := r.players[c.account]
	if !ok || p.served == 0 {
		f.mu.Unlock()
		return chain.TxResult{}, fmt.Errorf("no active card for %s in round %s", c.account, roundID)
	}
	cardIdx := p.served - 1
	correct := int(cardIdx) < len(f.Correct) && answer == f.Correct[cardIdx]
	p.total++
	if correct {
		p.correct++
		p.score++
	}
	f.queuePlayer(r, c.account)
	f.queueAnswerEvent(r, c.account, cardIdx, correct)
	hash := f.txHash()
	f.mu.Unlock()
	f.scheduleFlush()
	return chain.TxResult{Hash: hash}, nil
}

func (c *accountClient) IsRoundPlayer(ctx context.Context, roundID string, addr chain.Address) (bool, error) {
	f := c.world
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.lookup(roundID)
	if err != nil {
		return false, err
	}
	_, ok := r.players[addr.Normalize()]
	return ok, nil
}

func (f *FakeChain) lookup(roundID string) (*fakeRound, error) {
	id, err := round.ParseID(roundID)
	if err != nil {
		return nil, err
	}
	r, ok := f.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %s not found", roundID)
	}
	return r, nil
}
