package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

// Inference poll budget: the indexer is eventually consistent, so the new
// round may be transiently absent after the create transaction confirms.
const (
	DefaultInferInterval = 500 * time.Millisecond
	DefaultInferTries    = 10
)

// InferOptions tunes the created-round inference poll.
type InferOptions struct {
	Interval time.Duration
	MaxTries uint
}

// InferCreatedRound resolves the id of a round the given account just
// created. The contract's synchronous response is not trusted, so the id is
// recovered from indexed state through a ranked sequence of heuristics:
//
//  1. rounds created by the account, newest by creation timestamp,
//     ties broken by highest id;
//  2. the highest known round id, when attribution is unavailable;
//  3. the rounds-count model, as the id the contract assigned last.
//
// While the poll budget lasts, only attributed rounds resolve; the
// unattributed fallbacks would happily return someone else's round that was
// indexed before ours, so they run only on the final attempt, or from the
// start when the account is unknown.
func (r *Reconciler) InferCreatedRound(ctx context.Context, account chain.Address, opts InferOptions) (round.ID, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInferInterval
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = DefaultInferTries
	}

	var attempt uint
	id, err := backoff.Retry(ctx, func() (round.ID, error) {
		attempt++
		final := attempt >= opts.MaxTries
		if id, ok := r.inferOnce(account, final); ok {
			return id, nil
		}
		return "", flerrors.New(flerrors.CodeRoundNotFound, "created round not indexed yet")
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Interval)),
		backoff.WithMaxTries(opts.MaxTries),
	)
	if err != nil {
		return "", flerrors.Wrap(flerrors.CodeRoundSyncTimeout, err, "infer created round for %s", account)
	}
	return id, nil
}

func (r *Reconciler) inferOnce(account chain.Address, final bool) (round.ID, bool) {
	rounds := r.knownRounds()

	if !account.IsZero() {
		var best *round.Round
		for i := range rounds {
			rd := &rounds[i]
			if !rd.Creator.Equal(account) {
				continue
			}
			if best == nil || newerRound(*rd, *best) {
				best = rd
			}
		}
		if best != nil {
			return best.ID, true
		}
		if !final {
			return "", false
		}
	}

	var highest round.ID
	for _, rd := range rounds {
		if highest == "" || rd.ID.Cmp(highest) > 0 {
			highest = rd.ID
		}
	}
	if highest != "" {
		return highest, true
	}

	if id, ok := r.roundsCountID(); ok {
		return id, true
	}
	return "", false
}

// newerRound orders rounds by creation timestamp, ties broken by higher id.
func newerRound(a, b round.Round) bool {
	if !a.CreationTime.Equal(b.CreationTime) {
		return a.CreationTime.After(b.CreationTime)
	}
	return a.ID.Cmp(b.ID) > 0
}

func (r *Reconciler) knownRounds() []round.Round {
	var rounds []round.Round
	for _, ent := range r.store.All() {
		m, ok := ent.Model(r.ns, ModelRound)
		if !ok {
			continue
		}
		var rd round.Round
		if err := entity.DecodeModel(m, &rd); err != nil {
			r.logf("reconcile: skip malformed round model on %s: %v", ent.ID, err)
			continue
		}
		if rd.ID.IsZero() {
			continue
		}
		rounds = append(rounds, rd)
	}
	return rounds
}

// roundsCountID reads the rounds-count model, which the contract increments
// on every create; the count doubles as the last assigned id.
func (r *Reconciler) roundsCountID() (round.ID, bool) {
	for _, ent := range r.store.All() {
		m, ok := ent.Model(r.ns, ModelRoundsCount)
		if !ok {
			continue
		}
		var counter struct {
			Count uint64 `mapstructure:"count"`
		}
		if err := entity.DecodeModel(m, &counter); err != nil || counter.Count == 0 {
			continue
		}
		id, err := round.ParseID(fmt.Sprintf("%d", counter.Count))
		if err != nil {
			continue
		}
		return id, true
	}
	return "", false
}
