package entity

import (
	"testing"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

func TestDecodeModelRound(t *testing.T) {
	m := Model{
		"round_id":            "0x0a",
		"creator":             "0x0123ABC",
		"mode":                "0x1",
		"state":               "0x3",
		"next_card_index":     "0x2",
		"players_count":       "0x4",
		"ready_players_count": "2",
		"wager_amount":        "0x64",
		"creation_time":       "0x68b6c801",
	}

	var r round.Round
	if err := DecodeModel(m, &r); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	if r.ID != "0xa" {
		t.Fatalf("expected canonical round id 0xa, got %s", r.ID)
	}
	if r.Creator != "0x123abc" {
		t.Fatalf("expected normalized creator, got %s", r.Creator)
	}
	if r.Mode != round.ModeMultiPlayer {
		t.Fatalf("expected MultiPlayer mode, got %s", r.Mode)
	}
	if r.State != round.StatePending {
		t.Fatalf("expected PENDING state, got %s", r.State)
	}
	if r.NextCardIndex != 2 || r.PlayersCount != 4 || r.ReadyPlayersCount != 2 {
		t.Fatalf("expected counters decoded, got %+v", r)
	}
	if r.WagerAmount != 100 {
		t.Fatalf("expected wager 100, got %d", r.WagerAmount)
	}
	if r.CreationTime.IsZero() {
		t.Fatal("expected creation time decoded from unix seconds")
	}
}

func TestDecodeModelPlayer(t *testing.T) {
	m := Model{
		"player":                  "0x0ABC",
		"round_id":                "0x1",
		"joined":                  "0x1",
		"ready_state":             "true",
		"next_card_index":         3,
		"round_completed":         "0x0",
		"correct_answers":         "0x2",
		"total_answers":           "0x3",
		"total_score":             "0x2",
		"best_time":               "0x5",
		"current_card_start_time": "0",
		"card_timeout":            "0x1e",
	}

	var p round.Player
	if err := DecodeModel(m, &p); err != nil {
		t.Fatalf("decode player: %v", err)
	}
	if p.Address != "0xabc" {
		t.Fatalf("expected normalized address, got %s", p.Address)
	}
	if !p.Joined || !p.Ready || p.RoundCompleted {
		t.Fatalf("expected joined+ready, not completed, got %+v", p)
	}
	if p.CorrectAnswers != 2 || p.TotalAnswers != 3 {
		t.Fatalf("expected answer counters, got %+v", p)
	}
	if !p.CardStartTime.Equal(time.Time{}) {
		t.Fatal("expected zero start time for value 0")
	}
	if p.CardTimeoutSeconds != 30 {
		t.Fatalf("expected 30s card timeout, got %d", p.CardTimeoutSeconds)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid player row: %v", err)
	}
}

func TestDecodeModelMalformedNumber(t *testing.T) {
	m := Model{"round_id": "0x1", "next_card_index": "0xzz"}
	var r round.Round
	if err := DecodeModel(m, &r); err == nil {
		t.Fatal("expected malformed numeric felt to fail decoding")
	}
}
