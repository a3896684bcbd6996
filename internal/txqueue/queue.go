// Package txqueue serializes blockchain transaction submissions. Logical
// operations are keyed (e.g. "nextCard-<round>-<player>"): a key admits at
// most one in-flight transaction, and all physical submissions drain through
// one FIFO with a fixed inter-transaction delay to respect nonce ordering.
package txqueue

import (
	"context"
	"sync"
	"time"

	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
)

// DefaultDelay is the pause between consecutive physical submissions.
const DefaultDelay = 100 * time.Millisecond

type result struct {
	value any
	err   error
}

type task struct {
	key  string
	ctx  context.Context
	run  func(context.Context) (any, error)
	done chan result
}

// Queue is a per-key transaction serializer with a single FIFO drain worker.
type Queue struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	fifo     []*task
	draining bool
	delay    time.Duration
	sleep    func(time.Duration)
}

// New creates a queue with the given inter-transaction delay; zero or
// negative means DefaultDelay.
func New(delay time.Duration) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Queue{
		pending: map[string]struct{}{},
		delay:   delay,
		sleep:   time.Sleep,
	}
}

// Enqueue schedules fn under key and waits for its result. It rejects
// immediately with a TX_IN_FLIGHT error when the key already has a pending
// transaction: duplicate logical operations are a caller bug, not something
// to silently queue.
func (q *Queue) Enqueue(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if key == "" {
		return nil, flerrors.New(flerrors.CodeTxInFlight, "transaction key is required")
	}
	if fn == nil {
		return nil, flerrors.New(flerrors.CodeTxInFlight, "transaction function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t := &task{key: key, ctx: ctx, run: fn, done: make(chan result, 1)}

	q.mu.Lock()
	if _, exists := q.pending[key]; exists {
		q.mu.Unlock()
		return nil, flerrors.New(flerrors.CodeTxInFlight, "transaction already pending for key %q", key)
	}
	q.pending[key] = struct{}{}
	q.fifo = append(q.fifo, t)
	startWorker := !q.draining
	if startWorker {
		q.draining = true
	}
	q.mu.Unlock()

	if startWorker {
		go q.drain()
	}

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-ctx.Done():
		// The task itself is skipped by the drain worker once it sees the
		// cancelled context; its buffered done channel never leaks.
		return nil, ctx.Err()
	}
}

// drain runs queued tasks in FIFO order until the queue is empty. Re-entrant
// invocations are no-ops: only one drain worker runs at a time.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.fifo) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		t := q.fifo[0]
		q.fifo = q.fifo[1:]
		q.mu.Unlock()

		var res result
		if err := t.ctx.Err(); err != nil {
			res = result{err: err}
		} else {
			value, err := t.run(t.ctx)
			res = result{value: value, err: err}
		}

		// The key is always released, even when the task failed.
		q.mu.Lock()
		delete(q.pending, t.key)
		q.mu.Unlock()

		t.done <- res
		q.sleep(q.delay)
	}
}

// Clear atomically empties the FIFO and the pending-key set. Queued waiters
// fail with a QUEUE_CLEARED error; a task already handed to the drain worker
// finishes on its own, but its key is released immediately so a retry does
// not have to wait for it.
func (q *Queue) Clear() {
	q.mu.Lock()
	cleared := q.fifo
	q.fifo = nil
	q.pending = map[string]struct{}{}
	q.mu.Unlock()

	for _, t := range cleared {
		t.done <- result{err: flerrors.New(flerrors.CodeQueueCleared, "transaction queue cleared for key %q", t.key)}
	}
}

// PendingKeys reports the number of keys with in-flight or queued work.
func (q *Queue) PendingKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Do schedules fn under key and returns its typed result.
func Do[T any](ctx context.Context, q *Queue, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	value, err := q.Enqueue(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, flerrors.New(flerrors.CodeTxUnknown, "unexpected transaction result type %T", value)
	}
	return typed, nil
}
