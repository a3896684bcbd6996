package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lyricsflip/lyricsflip-go/internal/journal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestAppendAssignsSequencePerRound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		evt, err := store.AppendEvent(ctx, journal.Event{RoundID: "0x1", Type: "round.updated"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if evt.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, evt.Seq)
		}
	}

	// A different round gets its own sequence.
	evt, err := store.AppendEvent(ctx, journal.Event{RoundID: "0x2", Type: "round.created"})
	if err != nil {
		t.Fatalf("append other round: %v", err)
	}
	if evt.Seq != 1 {
		t.Fatalf("expected independent sequence, got %d", evt.Seq)
	}
}

func TestAppendValidatesInput(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvent(ctx, journal.Event{Type: "x"}); err == nil {
		t.Fatal("expected missing round id to fail")
	}
	if _, err := store.AppendEvent(ctx, journal.Event{RoundID: "0x1"}); err == nil {
		t.Fatal("expected missing event type to fail")
	}
}

func TestListEventsPagination(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, journal.Event{
			RoundID:     "0x1",
			Type:        "player.answered",
			Actor:       "0xabc",
			EntityID:    "answer-1",
			PayloadJSON: []byte(`{"is_correct":true}`),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := store.ListEvents(ctx, "0x1", 0, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected first page of 3, got %d", len(page))
	}
	if page[0].Seq != 1 || page[2].Seq != 3 {
		t.Fatalf("expected seqs 1..3, got %d..%d", page[0].Seq, page[2].Seq)
	}

	page, err = store.ListEvents(ctx, "0x1", 3, 10)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected remaining 2, got %d", len(page))
	}
	if page[0].Actor != "0xabc" || string(page[0].PayloadJSON) != `{"is_correct":true}` {
		t.Fatalf("expected payload round trip, got %+v", page[0])
	}
}

func TestReplayThroughSQLiteStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.AppendEvent(ctx, journal.Event{RoundID: "0x9", Type: "round.updated"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var count int
	last, err := journal.Replay(ctx, store, "0x9", func(journal.Event) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 4 || last != 4 {
		t.Fatalf("expected 4 events replayed, got count=%d last=%d", count, last)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected empty path to fail")
	}
}
