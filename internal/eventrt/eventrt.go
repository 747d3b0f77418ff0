// Package eventrt defines the contract the sensor manager needs from its
// host execution context: somewhere to schedule a closure to run later,
// serialized with every other piece of manager state. The specification
// treats the actual run loop as an out-of-scope external collaborator;
// this package is both that contract (Runtime) and two reference
// implementations suitable for production use and for tests
// (cmd/sensorhubd and cmd/sensorctl run on Goroutine).
package eventrt

import "sync"

// Runtime schedules a closure to run later on the manager's single
// execution context.
type Runtime interface {
	// Defer enqueues fn. It returns false if the runtime could not accept
	// it (e.g. the queue is full) — the same failure the original
	// firmware's osDefer/osEnqueuePrivateEvt report by returning false.
	Defer(fn func()) bool
}

// Inline is a reference Runtime for tests and single-threaded callers: it
// queues closures and only runs them when Drain is called, so a test can
// assert on state between "the event was signalled" and "the event was
// processed".
type Inline struct {
	mu       sync.Mutex
	queue    []func()
	capacity int
}

// NewInline creates an Inline runtime bounded to capacity queued
// closures.
func NewInline(capacity int) *Inline {
	return &Inline{capacity: capacity}
}

// Defer queues fn, or reports false if the queue is already at capacity.
func (r *Inline) Defer(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) >= r.capacity {
		return false
	}
	r.queue = append(r.queue, fn)
	return true
}

// Drain runs every queued closure in FIFO order. A closure that itself
// calls Defer is queued for the next Drain, not run reentrantly.
func (r *Inline) Drain() {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Pending reports how many closures are queued but not yet drained.
func (r *Inline) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Goroutine is a reference Runtime that serializes closures onto a
// single dedicated goroutine fed by a bounded channel — the shape
// cmd/sensorhubd runs in production.
type Goroutine struct {
	ch chan func()
}

// NewGoroutine starts a Goroutine runtime with a channel of the given
// capacity and begins draining it immediately.
func NewGoroutine(capacity int) *Goroutine {
	g := &Goroutine{ch: make(chan func(), capacity)}
	go func() {
		for fn := range g.ch {
			fn()
		}
	}()
	return g
}

// Defer enqueues fn onto the runtime's channel, or reports false if the
// channel is full.
func (g *Goroutine) Defer(fn func()) bool {
	select {
	case g.ch <- fn:
		return true
	default:
		return false
	}
}

// Close stops the runtime once every already-enqueued closure has run.
func (g *Goroutine) Close() { close(g.ch) }
