package game

import (
	"context"
	"fmt"

	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/phase"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

// Solo play defaults: the wrong-answer budget and the score target.
const (
	DefaultOdds      uint64 = 3
	DefaultMaxRounds uint64 = 5
)

// SoloConfig configures a single-player session.
type SoloConfig struct {
	Config

	// Odds is the wrong-answer budget: the game is lost once this many
	// answers miss.
	Odds uint64
	// MaxRounds is the score target: the game is won once this many
	// answers hit.
	MaxRounds uint64
	// ChallengeType selects the contract-side card selection strategy.
	ChallengeType string
}

// SoloSession plays a solo round: the contract scores every answer and the
// session ends the round locally once the target or the budget is hit.
type SoloSession struct {
	*session
	odds      uint64
	maxRounds uint64
	challenge string
}

// NewSolo builds a solo session. The session is inert until Start.
func NewSolo(cfg SoloConfig) (*SoloSession, error) {
	base, err := newSession(cfg.Config)
	if err != nil {
		return nil, err
	}
	if cfg.Odds == 0 {
		cfg.Odds = DefaultOdds
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.ChallengeType == "" {
		cfg.ChallengeType = "Random"
	}
	s := &SoloSession{
		session:   base,
		odds:      cfg.Odds,
		maxRounds: cfg.MaxRounds,
		challenge: cfg.ChallengeType,
	}
	base.onAnswered = s.evaluate
	return s, nil
}

// Won reports the final outcome. Meaningful only once the phase is
// completed.
func (s *SoloSession) Won() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.won
}

// Start creates the round on chain, resolves its id from indexed state,
// starts it, and advances to the first card.
func (s *SoloSession) Start(ctx context.Context) error {
	if ph := s.machine.Phase(); ph != phase.Waiting {
		return flerrors.New(flerrors.CodePhaseTransition, "cannot start solo play from %s", ph)
	}

	_, err := txqueue.Do(ctx, s.queue, fmt.Sprintf("createRound-%s", s.account),
		func(ctx context.Context) (struct{}, error) {
			_, err := s.chain.CreateRound(ctx, uint8(round.ModeSolo), s.challenge, s.odds, s.maxRounds)
			return struct{}{}, err
		})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "create solo round")
		s.setErr(err)
		return err
	}

	// The create response carries no trustworthy round id; recover it from
	// indexed state instead.
	id, err := s.rec.InferCreatedRound(ctx, s.account, s.inferOpts)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.bind(id)

	_, err = txqueue.Do(ctx, s.queue, fmt.Sprintf("startRound-%s", id),
		func(ctx context.Context) (struct{}, error) {
			_, err := s.chain.StartRound(ctx, id.String())
			return struct{}{}, err
		})
	if err != nil {
		err = flerrors.Wrap(flerrors.CodeChainCall, err, "start round %s", id)
		s.setErr(err)
		return err
	}

	if err := s.machine.Transition(ctx, phase.Starting); err != nil {
		return err
	}
	s.autoAdvance(ctx)
	return nil
}

// evaluate runs on every scored answer of mine: it either ends the game or
// advances to the next card. Solo play does not wait on other players.
func (s *SoloSession) evaluate(ev reconcile.Event) {
	if ev.Answer == nil || !ev.Answer.Player.Equal(s.account) {
		return
	}
	me := s.rec.View().Me
	wrong := me.TotalAnswers - me.CorrectAnswers

	switch {
	case me.CorrectAnswers >= s.maxRounds:
		s.complete(context.Background(), true)
	case wrong >= s.odds:
		s.complete(context.Background(), false)
	default:
		if s.machine.Phase() == phase.CardResults {
			go s.autoAdvance(context.Background())
		}
	}
}
