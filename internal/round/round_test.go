package round

import (
	"testing"
	"time"
)

func TestStateCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{name: "waiting to pending", from: StateWaiting, to: StatePending, want: true},
		{name: "waiting to in progress skips pending", from: StateWaiting, to: StateInProgress, want: true},
		{name: "pending to in progress", from: StatePending, to: StateInProgress, want: true},
		{name: "in progress to ended", from: StateInProgress, to: StateEnded, want: true},
		{name: "self transition", from: StateInProgress, to: StateInProgress, want: true},
		{name: "no regression to waiting", from: StateInProgress, to: StateWaiting, want: false},
		{name: "no regression from ended", from: StateEnded, to: StateInProgress, want: false},
		{name: "in progress back to pending", from: StateInProgress, to: StatePending, want: false},
		{name: "unknown state", from: State(9), to: StateEnded, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("0x0A")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if id != "0xa" {
		t.Fatalf("expected canonical 0xa, got %s", id)
	}

	id, err = ParseID("10")
	if err != nil {
		t.Fatalf("parse decimal id: %v", err)
	}
	if id != "0xa" {
		t.Fatalf("expected decimal 10 to canonicalize to 0xa, got %s", id)
	}

	if _, err := ParseID(""); err == nil {
		t.Fatal("expected empty id to fail")
	}
	if _, err := ParseID("0xzz"); err == nil {
		t.Fatal("expected malformed id to fail")
	}
}

func TestIDCmp(t *testing.T) {
	if ID("0xa").Cmp("0x2") <= 0 {
		t.Fatal("expected 0xa > 0x2 numerically")
	}
	if ID("0x0a").Cmp("0xa") != 0 {
		t.Fatal("expected padded and unpadded ids to compare equal")
	}
	if !ID("0x0").IsZero() || ID("0x1").IsZero() {
		t.Fatal("IsZero mismatch")
	}
}

func TestMergeKeepsMonotonicFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := Round{
		ID:            "0x1",
		Creator:       "0x123abc",
		State:         StateInProgress,
		NextCardIndex: 4,
		PlayersCount:  2,
		CreationTime:  created,
	}
	// A stale update from before the round started.
	stale := Round{
		ID:            "0x1",
		State:         StateWaiting,
		NextCardIndex: 1,
		PlayersCount:  1,
	}

	merged := Merge(current, stale)
	if merged.State != StateInProgress {
		t.Fatalf("expected state to hold at IN_PROGRESS, got %s", merged.State)
	}
	if merged.NextCardIndex != 4 {
		t.Fatalf("expected card cursor to hold at 4, got %d", merged.NextCardIndex)
	}
	if merged.PlayersCount != 2 {
		t.Fatalf("expected players count to hold at 2, got %d", merged.PlayersCount)
	}
	if merged.Creator != "0x123abc" {
		t.Fatalf("expected creator preserved, got %s", merged.Creator)
	}
	if !merged.CreationTime.Equal(created) {
		t.Fatal("expected creation time preserved")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	current := Round{ID: "0x1", State: StateWaiting, PlayersCount: 1}
	update := Round{ID: "0x1", State: StatePending, PlayersCount: 2, NextCardIndex: 1}

	once := Merge(current, update)
	twice := Merge(once, update)
	if once != twice {
		t.Fatalf("expected merge to be idempotent, got %+v then %+v", once, twice)
	}
}

func TestMergeAdvances(t *testing.T) {
	current := Round{ID: "0x1", State: StatePending, NextCardIndex: 1}
	update := Round{ID: "0x1", State: StateInProgress, NextCardIndex: 2}

	merged := Merge(current, update)
	if merged.State != StateInProgress || merged.NextCardIndex != 2 {
		t.Fatalf("expected fresh update to apply, got %+v", merged)
	}
}

func TestPlayerValidate(t *testing.T) {
	p := Player{CorrectAnswers: 3, TotalAnswers: 2}
	if err := p.Validate(); err == nil {
		t.Fatal("expected invariant violation when correct exceeds total")
	}
	p = Player{CorrectAnswers: 2, TotalAnswers: 2}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergePlayerKeepsCounters(t *testing.T) {
	current := Player{
		Address:        "0xabc",
		RoundID:        "0x1",
		Joined:         true,
		NextCardIndex:  3,
		CorrectAnswers: 2,
		TotalAnswers:   3,
		TotalScore:     2,
	}
	stale := Player{
		Address:        "0xabc",
		RoundID:        "0x1",
		NextCardIndex:  1,
		CorrectAnswers: 1,
		TotalAnswers:   1,
		TotalScore:     1,
	}

	merged := MergePlayer(current, stale)
	if merged.TotalAnswers != 3 || merged.CorrectAnswers != 2 || merged.TotalScore != 2 {
		t.Fatalf("expected counters to hold, got %+v", merged)
	}
	if !merged.Joined {
		t.Fatal("expected joined flag to be sticky")
	}
	if merged.NextCardIndex != 3 {
		t.Fatalf("expected cursor to hold at 3, got %d", merged.NextCardIndex)
	}
}

func TestMergePlayerEqualTotalsKeepsScoredSide(t *testing.T) {
	scored := Player{
		Address:        "0xabc",
		RoundID:        "0x1",
		CorrectAnswers: 5,
		TotalAnswers:   5,
		TotalScore:     5,
	}
	// A local row that only tracked submissions, never scoring.
	unscored := Player{
		Address:      "0xabc",
		RoundID:      "0x1",
		TotalAnswers: 5,
	}

	merged := MergePlayer(scored, unscored)
	if merged.CorrectAnswers != 5 || merged.TotalScore != 5 {
		t.Fatalf("expected scored side to win the tie, got %+v", merged)
	}

	// Symmetric: the scored side arriving second must also win.
	merged = MergePlayer(unscored, scored)
	if merged.CorrectAnswers != 5 || merged.TotalScore != 5 {
		t.Fatalf("expected scored side to win the tie, got %+v", merged)
	}
}
