package entity

import (
	"errors"
	"testing"
)

func TestStoreSnapshotIsIsolated(t *testing.T) {
	store := NewStore()
	store.Put(flatEntity())

	snap, ok := store.Snapshot("ent-1")
	if !ok {
		t.Fatal("expected entity present")
	}
	m, _ := snap.Model("lyricsflip", "Round")
	m["round_id"] = "0xdead"

	again, _ := store.Snapshot("ent-1")
	m2, _ := again.Model("lyricsflip", "Round")
	if m2["round_id"] != "0x1" {
		t.Fatalf("expected stored entity unaffected by snapshot mutation, got %v", m2["round_id"])
	}
}

func TestStoreUpdateCommitsDraft(t *testing.T) {
	store := NewStore()
	store.Put(flatEntity())

	before, existed, err := store.Update("ent-1", func(draft *Entity) error {
		m := draft.EnsureNestedModel("lyricsflip", "Round", nil)
		m["state"] = "0x2"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !existed || before == nil {
		t.Fatal("expected before-image for existing entity")
	}

	snap, _ := store.Snapshot("ent-1")
	m, _ := snap.Model("lyricsflip", "Round")
	if m["state"] != "0x2" {
		t.Fatalf("expected committed draft, got %v", m["state"])
	}
	// Before-image holds the pre-update state.
	bm, _ := before.Model("lyricsflip", "Round")
	if bm["state"] != "0x1" {
		t.Fatalf("expected before-image untouched, got %v", bm["state"])
	}
}

func TestStoreUpdateCreatesWhenAbsent(t *testing.T) {
	store := NewStore()
	before, existed, err := store.Update("ent-new", func(draft *Entity) error {
		draft.EnsureNestedModel("lyricsflip", "Round", func() Model {
			return Model{"round_id": "0x7"}
		})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if existed || before != nil {
		t.Fatal("expected no before-image for created entity")
	}
	if _, ok := store.Snapshot("ent-new"); !ok {
		t.Fatal("expected created entity stored")
	}
}

func TestStoreUpdateErrorLeavesStateUntouched(t *testing.T) {
	store := NewStore()
	store.Put(flatEntity())

	boom := errors.New("mutator failed")
	_, _, err := store.Update("ent-1", func(draft *Entity) error {
		m := draft.EnsureNestedModel("lyricsflip", "Round", nil)
		m["state"] = "0x2"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error surfaced, got %v", err)
	}

	snap, _ := store.Snapshot("ent-1")
	m, _ := snap.Model("lyricsflip", "Round")
	if m["state"] != "0x1" {
		t.Fatalf("expected failed update to leave state untouched, got %v", m["state"])
	}
}

func TestStoreRestore(t *testing.T) {
	store := NewStore()
	store.Put(flatEntity())

	before, _, err := store.Update("ent-1", func(draft *Entity) error {
		m := draft.EnsureNestedModel("lyricsflip", "Round", nil)
		m["state"] = "0x2"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	store.Restore("ent-1", before)
	snap, _ := store.Snapshot("ent-1")
	m, _ := snap.Model("lyricsflip", "Round")
	if m["state"] != "0x1" {
		t.Fatalf("expected restore to roll back, got %v", m["state"])
	}

	// Restoring a nil before-image deletes the entity.
	store.Restore("ent-1", nil)
	if _, ok := store.Snapshot("ent-1"); ok {
		t.Fatal("expected entity removed on nil restore")
	}
}

func TestStoreAllAndLen(t *testing.T) {
	store := NewStore()
	store.Put(flatEntity())
	store.Put(nestedEntity())

	if store.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", store.Len())
	}
	if got := len(store.All()); got != 2 {
		t.Fatalf("expected All to return 2 entities, got %d", got)
	}
}
