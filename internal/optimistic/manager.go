// Package optimistic wraps blockchain transactions with speculative local
// mutations: applied before confirmation, rolled back on failure, and
// eventually overwritten by authoritative indexed state.
package optimistic

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

var tracer = otel.Tracer("lyricsflip/optimistic")

type record struct {
	entityID string
	before   *entity.Entity
}

// Manager tracks optimistic mutations against the entity store so they can
// be reverted when the wrapped chain call fails.
type Manager struct {
	store   *entity.Store
	mu      sync.Mutex
	pending map[string]record
}

// NewManager creates a manager over the shared entity store.
func NewManager(store *entity.Store) *Manager {
	return &Manager{store: store, pending: map[string]record{}}
}

// Apply runs mutate against a copy-on-write draft of the entity and commits
// it, retaining the before-image under txID for a possible revert.
func (m *Manager) Apply(txID, entityID string, mutate func(draft *entity.Entity) error) error {
	if txID == "" {
		return flerrors.New(flerrors.CodeTxUnknown, "transaction id is required")
	}
	if mutate == nil {
		return nil
	}
	m.mu.Lock()
	if _, dup := m.pending[txID]; dup {
		m.mu.Unlock()
		return flerrors.New(flerrors.CodeTxDuplicateID, "optimistic update already applied for tx %s", txID)
	}
	m.mu.Unlock()

	before, _, err := m.store.Update(entityID, mutate)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pending[txID] = record{entityID: entityID, before: before}
	m.mu.Unlock()
	return nil
}

// Revert rolls the entity back to its before-image. Unknown transaction ids
// are no-ops: the record may already have been finalized.
func (m *Manager) Revert(txID string) {
	m.mu.Lock()
	rec, ok := m.pending[txID]
	if ok {
		delete(m.pending, txID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.store.Restore(rec.entityID, rec.before)
}

// Confirm finalizes the transaction record, leaving the optimistic state in
// place for the indexer to eventually overwrite. Always called, success or
// failure, so records never leak.
func (m *Manager) Confirm(txID string) {
	m.mu.Lock()
	delete(m.pending, txID)
	m.mu.Unlock()
}

// PendingCount reports the number of unfinalized transaction records.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ExecuteInput describes one optimistic transaction: a queue key, the entity
// it speculates on, the speculative mutation, and the chain submission.
type ExecuteInput struct {
	Key      string
	EntityID string
	Mutate   func(draft *entity.Entity) error
	Submit   func(ctx context.Context) (chain.TxResult, error)
}

// Execute runs the full optimistic pattern: apply mutation, submit through
// the serializer queue, revert on failure, always finalize.
func (m *Manager) Execute(ctx context.Context, q *txqueue.Queue, in ExecuteInput) (chain.TxResult, error) {
	if in.Submit == nil {
		return chain.TxResult{}, flerrors.New(flerrors.CodeChainCall, "submit function is required")
	}

	ctx, span := tracer.Start(ctx, "optimistic.execute")
	span.SetAttributes(
		attribute.String("tx.key", in.Key),
		attribute.String("tx.entity_id", in.EntityID),
	)
	defer span.End()

	txID := uuid.NewString()
	if err := m.Apply(txID, in.EntityID, in.Mutate); err != nil {
		span.RecordError(err)
		return chain.TxResult{}, err
	}
	defer m.Confirm(txID)

	res, err := txqueue.Do(ctx, q, in.Key, in.Submit)
	if err != nil {
		m.Revert(txID)
		span.RecordError(err)
		return chain.TxResult{}, err
	}
	span.SetAttributes(attribute.String("tx.hash", res.Hash))
	return res, nil
}
