// Package broadcast fans payloads out to many listeners without letting a
// slow listener stall the producer.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/observability"
)

// ListenerCapacity is the number of payloads a listener can hold before
// further broadcasts are dropped for it
const ListenerCapacity = 4

// Listener is one registered consumer. Its channel is closed when it is
// unregistered or the hub is closed.
type Listener[T any] struct {
	ch chan T

	mu     sync.Mutex
	closed bool
}

// C returns the listener's queue
func (l *Listener[T]) C() <-chan T {
	return l.ch
}

// offer queues v without blocking. It reports whether v was queued.
func (l *Listener[T]) offer(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.ch <- v:
		return true
	default:
		return false
	}
}

func (l *Listener[T]) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

// Option configures a Hub
type Option func(*options)

type options struct {
	capacity int
	logger   *zerolog.Logger
	onChange func(n int)
}

// WithCapacity overrides the per-listener queue size
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithLogger sets the hub logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithListenerCountHook is called with the current listener count after
// every register or unregister. Calls are serialised and run outside the
// listener lock; the hook must not call back into the hub.
func WithListenerCountHook(fn func(n int)) Option {
	return func(o *options) { o.onChange = fn }
}

// Hub delivers each broadcast payload to every registered listener. The
// lock guards only the listener set; delivery happens on a snapshot.
type Hub[T any] struct {
	name     string
	capacity int
	logger   zerolog.Logger
	onChange func(n int)

	mu        sync.Mutex
	listeners map[*Listener[T]]struct{}
	closed    bool

	notifyMu sync.Mutex
}

// NewHub creates a hub. The name labels its metrics.
func NewHub[T any](name string, opts ...Option) *Hub[T] {
	o := options{capacity: ListenerCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	logger := observability.WithComponent("broadcast")
	if o.logger != nil {
		logger = *o.logger
	}

	return &Hub[T]{
		name:      name,
		capacity:  o.capacity,
		logger:    logger.With().Str("hub", name).Logger(),
		onChange:  o.onChange,
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Name returns the hub name
func (h *Hub[T]) Name() string {
	return h.name
}

// Register adds a listener. On a closed hub the returned listener is
// already closed.
func (h *Hub[T]) Register() *Listener[T] {
	l := &Listener[T]{ch: make(chan T, h.capacity)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		l.close()
		return l
	}
	h.listeners[l] = struct{}{}
	n := len(h.listeners)
	h.mu.Unlock()

	h.logger.Debug().Int("listeners", n).Msg("Listener registered")
	h.notify()
	return l
}

// Unregister removes a listener and closes its channel. Unregistering
// twice is a no-op.
func (h *Hub[T]) Unregister(l *Listener[T]) {
	if l == nil {
		return
	}

	h.mu.Lock()
	_, found := h.listeners[l]
	l.close()
	delete(h.listeners, l)
	n := len(h.listeners)
	h.mu.Unlock()

	if found {
		h.logger.Debug().Int("listeners", n).Msg("Listener unregistered")
		h.notify()
	}
}

// Broadcast offers v to every listener and returns how many accepted it.
// A listener whose queue is full misses v; Broadcast never blocks.
func (h *Hub[T]) Broadcast(v T) int {
	h.mu.Lock()
	snapshot := make([]*Listener[T], 0, len(h.listeners))
	for l := range h.listeners {
		snapshot = append(snapshot, l)
	}
	h.mu.Unlock()

	delivered := 0
	for _, l := range snapshot {
		if l.offer(v) {
			delivered++
		}
	}

	dropped := len(snapshot) - delivered
	if dropped > 0 {
		h.logger.Debug().Int("dropped", dropped).Msg("Listener queue full, payload dropped")
	}
	observability.RecordBroadcast(h.name, delivered, dropped)
	return delivered
}

// Len returns the number of registered listeners
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close unregisters every listener. Later registrations get closed
// listeners.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	listeners := h.listeners
	h.listeners = make(map[*Listener[T]]struct{})
	h.mu.Unlock()

	for l := range listeners {
		l.close()
	}
	h.notify()
}

// notify reports the count as of the call, so the last report always
// matches the final set
func (h *Hub[T]) notify() {
	if h.onChange == nil {
		return
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	h.onChange(h.Len())
}
