// Package chain defines the boundary to the LyricsFlip contract and its
// indexer. The contract is an opaque external collaborator: calls are
// asynchronous, not idempotent, and the synchronous create-round response is
// not trusted for round attribution.
package chain

import "context"

// TxResult describes an accepted transaction submission. Acceptance does not
// imply the indexer has observed the resulting state yet.
type TxResult struct {
	Hash string
}

// RawOption is one answer option as delivered by the contract: artist and
// title as compact-encoded felt values (hex strings).
type RawOption struct {
	Artist string
	Title  string
}

// RawCard is a question card as delivered by the contract, before client-side
// decoding.
type RawCard struct {
	Lyric   string
	Options [4]RawOption
}

// Client issues transactions against the LyricsFlip contract. Implementations
// must be safe for concurrent use; duplicate-submission prevention is the
// caller's responsibility.
type Client interface {
	CreateRound(ctx context.Context, mode uint8, challengeType string, param1, param2 uint64) (TxResult, error)
	JoinRound(ctx context.Context, roundID string) (TxResult, error)
	StartRound(ctx context.Context, roundID string) (TxResult, error)
	NextCard(ctx context.Context, roundID string) (RawCard, error)
	SubmitAnswer(ctx context.Context, roundID string, answer uint8) (TxResult, error)
	IsRoundPlayer(ctx context.Context, roundID string, addr Address) (bool, error)
}
