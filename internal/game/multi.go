package game

import (
	"context"
	"fmt"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/optimistic"
	"github.com/lyricsflip/lyricsflip-go/internal/phase"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

// MultiConfig configures a multiplayer session.
type MultiConfig struct {
	Config

	// Wagered selects the wagered variant; WagerAmount is ignored
	// otherwise.
	Wagered     bool
	WagerAmount uint64
	// CardCount is how many cards the round runs for.
	CardCount uint64
	// ChallengeType selects the contract-side card selection strategy.
	ChallengeType string
}

// MultiSession plays a multiplayer round. The contract drives the round
// lifecycle; the session keeps local phase in step with indexed state and
// gates card advancement on the rest of the table having answered.
type MultiSession struct {
	*session
	mode      round.Mode
	wager     uint64
	cardCount uint64
	challenge string
}

// NewMulti builds a multiplayer session. Use Create to host a round or Join
// to enter an existing one.
func NewMulti(cfg MultiConfig) (*MultiSession, error) {
	base, err := newSession(cfg.Config)
	if err != nil {
		return nil, err
	}
	if cfg.CardCount == 0 {
		cfg.CardCount = DefaultMaxRounds
	}
	if cfg.ChallengeType == "" {
		cfg.ChallengeType = "Random"
	}
	mode := round.ModeMultiPlayer
	if cfg.Wagered {
		mode = round.ModeWageredMultiPlayer
	}
	s := &MultiSession{
		session:   base,
		mode:      mode,
		wager:     cfg.WagerAmount,
		cardCount: cfg.CardCount,
		challenge: cfg.ChallengeType,
	}
	base.onRoundUpdate = s.followRound
	base.afterSubmit = s.advanceAfterSubmit
	return s, nil
}

// Create hosts a new round and binds to it. The round stays in waiting
// until the host starts it.
func (s *MultiSession) Create(ctx context.Context) (round.ID, error) {
	if ph := s.machine.Phase(); ph != phase.Waiting {
		return "", flerrors.New(flerrors.CodePhaseTransition, "cannot create a round from %s", ph)
	}

	_, err := txqueue.Do(ctx, s.queue, fmt.Sprintf("createRound-%s", s.account),
		func(ctx context.Context) (struct{}, error) {
			_, err := s.chain.CreateRound(ctx, uint8(s.mode), s.challenge, s.wager, s.cardCount)
			return struct{}{}, err
		})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "create round")
		s.setErr(err)
		return "", err
	}

	id, err := s.rec.InferCreatedRound(ctx, s.account, s.inferOpts)
	if err != nil {
		s.setErr(err)
		return "", err
	}
	s.bind(id)
	return id, nil
}

// Join enters an existing round. Joining twice is caught before any
// transaction is issued.
func (s *MultiSession) Join(ctx context.Context, id round.ID) error {
	if id.IsZero() {
		return flerrors.New(flerrors.CodeRoundIDMissing, "no round id to join")
	}
	if ph := s.machine.Phase(); ph != phase.Waiting {
		return flerrors.New(flerrors.CodePhaseTransition, "cannot join a round from %s", ph)
	}

	already, err := s.chain.IsRoundPlayer(ctx, id.String(), s.account)
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "check membership in round %s", id)
		s.setErr(err)
		return err
	}
	if already {
		s.bind(id)
		return nil
	}

	s.bind(id)
	_, err = s.opt.Execute(ctx, s.queue, optimistic.ExecuteInput{
		Key:      fmt.Sprintf("joinRound-%s-%s", id, s.account),
		EntityID: s.localPlayerEntityID(),
		Mutate: func(draft *entity.Entity) error {
			m := draft.EnsureNestedModel(s.ns, reconcile.ModelRoundPlayer, nil)
			m["player"] = s.account.String()
			m["round_id"] = id.String()
			m["joined"] = true
			return nil
		},
		Submit: func(ctx context.Context) (chain.TxResult, error) {
			return s.chain.JoinRound(ctx, id.String())
		},
	})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "join round %s", id)
		s.setErr(err)
		return err
	}
	return nil
}

// StartRound asks the contract to start the bound round. Only meaningful
// for the host; the phase advances when the indexed round state follows.
func (s *MultiSession) StartRound(ctx context.Context) error {
	s.mu.Lock()
	id := s.roundID
	s.mu.Unlock()
	if id.IsZero() {
		return flerrors.New(flerrors.CodeRoundIDMissing, "no round bound")
	}

	_, err := txqueue.Do(ctx, s.queue, fmt.Sprintf("startRound-%s", id),
		func(ctx context.Context) (struct{}, error) {
			_, err := s.chain.StartRound(ctx, id.String())
			return struct{}{}, err
		})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "start round %s", id)
		s.setErr(err)
		return err
	}
	return nil
}

// Won reports the final outcome. Meaningful only once the phase is
// completed.
func (s *MultiSession) Won() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.won
}

// followRound keeps the local phase in step with the indexed round state:
// once the contract reports the round in progress, the session leaves
// waiting and fetches the first card.
func (s *MultiSession) followRound(ev reconcile.Event) {
	if ev.Round == nil {
		return
	}
	state := ev.Round.State
	if (state == round.StateInProgress || state == round.StatePending) && s.machine.Phase() == phase.Waiting {
		if err := s.machine.Transition(context.Background(), phase.Starting); err != nil {
			return
		}
		go s.autoAdvance(context.Background())
	}
}

// advanceAfterSubmit gates leaving card_results on the rest of the table:
// poll until every player answered the card, then move on or finish.
func (s *MultiSession) advanceAfterSubmit(cardIdx uint64) {
	ctx := context.Background()
	s.waitAllAnswered(ctx, cardIdx)

	view := s.rec.View()
	if view.Round.State == round.StateEnded || cardIdx+1 >= s.cardCount {
		s.completeFromContract()
		return
	}
	if s.machine.Phase() == phase.CardResults {
		s.autoAdvance(ctx)
	}
}
