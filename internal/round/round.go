// Package round holds the domain model for a LyricsFlip round: the contract
// owns the authoritative state, the client holds a cached projection of it.
package round

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
)

// State is the contract-side round lifecycle state. The numeric values are
// fixed by the contract; PENDING is the transient started-but-not-fully-active
// hop between WAITING and IN_PROGRESS.
type State uint8

const (
	StateWaiting    State = 0
	StateInProgress State = 1
	StateEnded      State = 2
	StatePending    State = 3
)

// rank orders states along the only legal lifecycle:
// WAITING -> PENDING -> IN_PROGRESS -> ENDED.
func (s State) rank() int {
	switch s {
	case StateWaiting:
		return 0
	case StatePending:
		return 1
	case StateInProgress:
		return 2
	case StateEnded:
		return 3
	}
	return -1
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	return s.rank() >= 0
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// Staying in place is allowed; regression is not. PENDING may be skipped.
func (s State) CanTransition(next State) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StatePending:
		return "PENDING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateEnded:
		return "ENDED"
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// Mode is the game mode of a round.
type Mode uint8

const (
	ModeSolo Mode = iota
	ModeMultiPlayer
	ModeWageredMultiPlayer
	ModeChallenge
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeSolo:
		return "Solo"
	case ModeMultiPlayer:
		return "MultiPlayer"
	case ModeWageredMultiPlayer:
		return "WageredMultiPlayer"
	case ModeChallenge:
		return "Challenge"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ID is a round identifier in canonical lowercase 0x-hex form. Round ids are
// 256-bit on chain, so they are kept as strings client-side and compared
// numerically.
type ID string

// ParseID canonicalizes a round id from hex or decimal string form.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("round id is required")
	}
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("malformed round id %q", s)
	}
	return ID("0x" + n.Text(16)), nil
}

// Cmp compares two round ids numerically: -1 if id < other, 0 if equal,
// +1 if id > other. Malformed ids compare as zero.
func (id ID) Cmp(other ID) int {
	return id.bigInt().Cmp(other.bigInt())
}

func (id ID) bigInt() *big.Int {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(string(id))), "0x")
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return new(big.Int)
	}
	return n
}

// IsZero reports whether the id is empty or the zero id.
func (id ID) IsZero() bool {
	return id.bigInt().Sign() == 0
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Round is the client projection of a contract Round entity. It may be stale;
// Merge folds fresher projections in without ever regressing.
type Round struct {
	ID                ID            `mapstructure:"round_id"`
	Creator           chain.Address `mapstructure:"creator"`
	Mode              Mode          `mapstructure:"mode"`
	State             State         `mapstructure:"state"`
	NextCardIndex     uint64        `mapstructure:"next_card_index"`
	PlayersCount      uint64        `mapstructure:"players_count"`
	ReadyPlayersCount uint64        `mapstructure:"ready_players_count"`
	WagerAmount       uint64        `mapstructure:"wager_amount"`
	CreationTime      time.Time     `mapstructure:"creation_time"`
	StartTime         time.Time     `mapstructure:"start_time"`
	EndTime           time.Time     `mapstructure:"end_time"`
}

// Merge folds an incoming projection of the same round into the current one.
// Indexed updates arrive out of order, so monotonic fields (lifecycle state,
// card cursor, counters) never regress; the result is the same no matter how
// often the same update is applied.
func Merge(current, incoming Round) Round {
	merged := incoming
	if merged.ID == "" {
		merged.ID = current.ID
	}
	if merged.Creator.IsZero() {
		merged.Creator = current.Creator
	}
	if !current.State.CanTransition(incoming.State) {
		merged.State = current.State
	}
	if incoming.NextCardIndex < current.NextCardIndex {
		merged.NextCardIndex = current.NextCardIndex
	}
	if incoming.PlayersCount < current.PlayersCount {
		merged.PlayersCount = current.PlayersCount
	}
	if incoming.ReadyPlayersCount < current.ReadyPlayersCount {
		merged.ReadyPlayersCount = current.ReadyPlayersCount
	}
	if merged.CreationTime.IsZero() {
		merged.CreationTime = current.CreationTime
	}
	if merged.StartTime.IsZero() {
		merged.StartTime = current.StartTime
	}
	if merged.EndTime.IsZero() {
		merged.EndTime = current.EndTime
	}
	return merged
}

// Player is the client projection of a RoundPlayer entity, keyed by
// (player address, round id).
type Player struct {
	Address            chain.Address `mapstructure:"player"`
	RoundID            ID            `mapstructure:"round_id"`
	Joined             bool          `mapstructure:"joined"`
	Ready              bool          `mapstructure:"ready_state"`
	NextCardIndex      uint64        `mapstructure:"next_card_index"`
	RoundCompleted     bool          `mapstructure:"round_completed"`
	CorrectAnswers     uint64        `mapstructure:"correct_answers"`
	TotalAnswers       uint64        `mapstructure:"total_answers"`
	TotalScore         uint64        `mapstructure:"total_score"`
	BestTime           uint64        `mapstructure:"best_time"`
	CardStartTime      time.Time     `mapstructure:"current_card_start_time"`
	CardTimeoutSeconds uint64        `mapstructure:"card_timeout"`
}

// Validate checks the player-row invariants the contract guarantees.
func (p Player) Validate() error {
	if p.CorrectAnswers > p.TotalAnswers {
		return fmt.Errorf("correct answers %d exceed total answers %d", p.CorrectAnswers, p.TotalAnswers)
	}
	return nil
}

// MergePlayer folds an incoming player projection into the current one,
// keeping per-player counters monotonic.
func MergePlayer(current, incoming Player) Player {
	merged := incoming
	if merged.Address.IsZero() {
		merged.Address = current.Address
	}
	if merged.RoundID == "" {
		merged.RoundID = current.RoundID
	}
	merged.Joined = merged.Joined || current.Joined
	merged.Ready = merged.Ready || current.Ready
	merged.RoundCompleted = merged.RoundCompleted || current.RoundCompleted
	if incoming.NextCardIndex < current.NextCardIndex {
		merged.NextCardIndex = current.NextCardIndex
	}
	if incoming.TotalAnswers < current.TotalAnswers {
		merged.CorrectAnswers = current.CorrectAnswers
		merged.TotalAnswers = current.TotalAnswers
		merged.TotalScore = current.TotalScore
	} else if incoming.TotalAnswers == current.TotalAnswers {
		// A tie means both sides saw the same submissions; keep whichever
		// side already scored them.
		if current.CorrectAnswers > merged.CorrectAnswers {
			merged.CorrectAnswers = current.CorrectAnswers
		}
		if current.TotalScore > merged.TotalScore {
			merged.TotalScore = current.TotalScore
		}
	}
	if merged.CardStartTime.IsZero() {
		merged.CardStartTime = current.CardStartTime
	}
	return merged
}
