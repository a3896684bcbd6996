package optimistic

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

const ns = "lyricsflip"

func seededStore() *entity.Store {
	store := entity.NewStore()
	ent := entity.New("round-1")
	m := ent.EnsureNestedModel(ns, "Round", nil)
	m["round_id"] = "0x1"
	m["state"] = "0x0"
	store.Put(ent)
	return store
}

func roundModel(t *testing.T, store *entity.Store, id string) entity.Model {
	t.Helper()
	ent, ok := store.Snapshot(id)
	if !ok {
		t.Fatalf("entity %s missing", id)
	}
	m, ok := ent.Model(ns, "Round")
	if !ok {
		t.Fatalf("round model missing on %s", id)
	}
	return m
}

func newQueue() *txqueue.Queue {
	q := txqueue.New(time.Millisecond)
	return q
}

func TestApplyCommitsSpeculativeState(t *testing.T) {
	store := seededStore()
	mgr := NewManager(store)

	err := mgr.Apply("tx-1", "round-1", func(draft *entity.Entity) error {
		m := draft.EnsureNestedModel(ns, "Round", nil)
		m["state"] = "0x1"
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := roundModel(t, store, "round-1")["state"]; got != "0x1" {
		t.Fatalf("expected speculative state visible, got %v", got)
	}
	if mgr.PendingCount() != 1 {
		t.Fatalf("expected one pending record, got %d", mgr.PendingCount())
	}
}

func TestRevertRestoresExactPriorState(t *testing.T) {
	store := seededStore()
	mgr := NewManager(store)
	before := roundModel(t, store, "round-1")

	if err := mgr.Apply("tx-1", "round-1", func(draft *entity.Entity) error {
		m := draft.EnsureNestedModel(ns, "Round", nil)
		m["state"] = "0x1"
		m["players_count"] = "0x2"
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	mgr.Revert("tx-1")

	after := roundModel(t, store, "round-1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected state restored exactly, before %v after %v", before, after)
	}
	if mgr.PendingCount() != 0 {
		t.Fatal("expected record removed on revert")
	}
}

func TestRevertDeletesEntityCreatedOptimistically(t *testing.T) {
	store := entity.NewStore()
	mgr := NewManager(store)

	if err := mgr.Apply("tx-1", "player-0xabc-1", func(draft *entity.Entity) error {
		m := draft.EnsureNestedModel(ns, "RoundPlayer", nil)
		m["joined"] = "0x1"
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := store.Snapshot("player-0xabc-1"); !ok {
		t.Fatal("expected speculative entity present")
	}

	mgr.Revert("tx-1")
	if _, ok := store.Snapshot("player-0xabc-1"); ok {
		t.Fatal("expected speculative entity removed on revert")
	}
}

func TestDuplicateTxIDRejected(t *testing.T) {
	mgr := NewManager(seededStore())
	mutate := func(draft *entity.Entity) error { return nil }

	if err := mgr.Apply("tx-1", "round-1", mutate); err != nil {
		t.Fatalf("apply: %v", err)
	}
	err := mgr.Apply("tx-1", "round-1", mutate)
	if !flerrors.HasCode(err, flerrors.CodeTxDuplicateID) {
		t.Fatalf("expected TX_DUPLICATE_ID, got %v", err)
	}
}

func TestExecuteSuccessLeavesOptimisticState(t *testing.T) {
	store := seededStore()
	mgr := NewManager(store)

	res, err := mgr.Execute(context.Background(), newQueue(), ExecuteInput{
		Key:      "startRound-0x1",
		EntityID: "round-1",
		Mutate: func(draft *entity.Entity) error {
			m := draft.EnsureNestedModel(ns, "Round", nil)
			m["state"] = "0x3"
			return nil
		},
		Submit: func(context.Context) (chain.TxResult, error) {
			return chain.TxResult{Hash: "0xtx"}, nil
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Hash != "0xtx" {
		t.Fatalf("expected tx hash, got %s", res.Hash)
	}
	if got := roundModel(t, store, "round-1")["state"]; got != "0x3" {
		t.Fatalf("expected optimistic state left in place, got %v", got)
	}
	if mgr.PendingCount() != 0 {
		t.Fatal("expected record finalized after success")
	}
}

func TestExecuteFailureRevertsAndFinalizes(t *testing.T) {
	store := seededStore()
	mgr := NewManager(store)
	before := roundModel(t, store, "round-1")
	boom := errors.New("nonce conflict")

	_, err := mgr.Execute(context.Background(), newQueue(), ExecuteInput{
		Key:      "startRound-0x1",
		EntityID: "round-1",
		Mutate: func(draft *entity.Entity) error {
			m := draft.EnsureNestedModel(ns, "Round", nil)
			m["state"] = "0x3"
			return nil
		},
		Submit: func(context.Context) (chain.TxResult, error) {
			return chain.TxResult{}, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected chain error surfaced, got %v", err)
	}

	after := roundModel(t, store, "round-1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected rollback on failure, before %v after %v", before, after)
	}
	if mgr.PendingCount() != 0 {
		t.Fatal("expected record finalized after failure")
	}
}

func TestExecuteDuplicateKeyDoesNotMutate(t *testing.T) {
	store := seededStore()
	mgr := NewManager(store)
	q := newQueue()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = mgr.Execute(context.Background(), q, ExecuteInput{
			Key:      "nextCard-0x1-0xabc",
			EntityID: "round-1",
			Submit: func(context.Context) (chain.TxResult, error) {
				close(started)
				<-release
				return chain.TxResult{}, nil
			},
		})
	}()
	<-started
	defer close(release)

	before := roundModel(t, store, "round-1")
	_, err := mgr.Execute(context.Background(), q, ExecuteInput{
		Key:      "nextCard-0x1-0xabc",
		EntityID: "round-1",
		Mutate: func(draft *entity.Entity) error {
			m := draft.EnsureNestedModel(ns, "Round", nil)
			m["state"] = "0x2"
			return nil
		},
		Submit: func(context.Context) (chain.TxResult, error) {
			return chain.TxResult{}, nil
		},
	})
	if !flerrors.HasCode(err, flerrors.CodeTxInFlight) {
		t.Fatalf("expected TX_IN_FLIGHT, got %v", err)
	}
	after := roundModel(t, store, "round-1")
	if !reflect.DeepEqual(before, after) {
		t.Fatal("expected rejected duplicate to leave no speculative state behind")
	}
}
