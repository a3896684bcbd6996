package reconcile

import (
	"log"
	"sync"
)

// DefaultHandlerCap is the per-event-type handler count above which Subscribe
// warns. The cap is soft: it exists to catch leak-prone subscription
// patterns, not to enforce a limit.
const DefaultHandlerCap = 24

// Handler consumes one domain event. Returned errors are logged per handler;
// they never interrupt delivery to other handlers.
type Handler func(Event) error

// Bus is a typed publish/subscribe mechanism decoupling the reconciler from
// state consumers. A bus instance is constructed per game session and passed
// to whoever needs it; its lifetime is the session, not the process.
type Bus struct {
	mu         sync.Mutex
	handlers   map[EventType]map[int]Handler
	nextID     int
	handlerCap int
	logf       func(format string, args ...any)
}

// NewBus creates an event bus. logf defaults to log.Printf.
func NewBus(logf func(format string, args ...any)) *Bus {
	if logf == nil {
		logf = log.Printf
	}
	return &Bus{
		handlers:   map[EventType]map[int]Handler{},
		handlerCap: DefaultHandlerCap,
		logf:       logf,
	}
}

// Subscribe registers a handler for an event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(t EventType, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	set, ok := b.handlers[t]
	if !ok {
		set = map[int]Handler{}
		b.handlers[t] = set
	}
	id := b.nextID
	b.nextID++
	set[id] = h
	count := len(set)
	b.mu.Unlock()

	if count > b.handlerCap {
		b.logf("event bus: %d handlers subscribed for %s, possible subscription leak", count, t)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.handlers[t]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.handlers, t)
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers an event to every subscribed handler. Handler panics and
// errors are isolated and logged so one faulty subscriber cannot break
// delivery to the rest.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	set := b.handlers[evt.Type]
	snapshot := make([]Handler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	b.mu.Unlock()

	for _, h := range snapshot {
		b.deliver(evt, h)
	}
}

func (b *Bus) deliver(evt Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logf("event bus: handler panic on %s: %v", evt.Type, r)
		}
	}()
	if err := h(evt); err != nil {
		b.logf("event bus: handler error on %s: %v", evt.Type, err)
	}
}

// HandlerCount reports the number of handlers for an event type.
func (b *Bus) HandlerCount(t EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[t])
}

// Reset removes every subscription. Used when tearing down a session.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.handlers = map[EventType]map[int]Handler{}
	b.mu.Unlock()
}
