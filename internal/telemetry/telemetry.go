// Package telemetry is a retained-message notification channel keyed by
// sensor handle, modelled on a generic topic-trie pub/sub narrowed
// down to the one topic shape the sensor manager
// actually needs: "the latest state of sensor H". There is no wildcard
// subscription language here because nothing in this domain subscribes
// across sensors — every client already names the handle it cares about.
package telemetry

import (
	"sync"

	"sensorhub/internal/domain"
	"sensorhub/x/timex"
)

// State is a retained snapshot of one sensor's state machine, published
// whenever Reconcile or a completion handler changes its rate or
// latency. It exists purely for operator visibility; the specification
// is explicit that per-sample data delivery is not part of the manager,
// so State never carries a sample, only control-plane state.
type State struct {
	Rate        domain.Rate
	Latency     domain.Latency
	UpdatedAtMs int64
}

// Bus is a handle-keyed retained pub/sub channel: each Subscribe
// immediately receives the latest Publish for that handle (if any), then
// every subsequent one.
type Bus struct {
	mu       sync.RWMutex
	retained map[domain.Handle]State
	subs     map[domain.Handle][]chan State
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		retained: make(map[domain.Handle]State),
		subs:     make(map[domain.Handle][]chan State),
	}
}

// Publish records s as handle's latest state and delivers it to every
// current subscriber. A subscriber whose channel is full has the message
// dropped for it rather than blocking the caller — telemetry delivery
// must never stall the manager's event thread.
func (b *Bus) Publish(handle domain.Handle, s State) {
	s.UpdatedAtMs = timex.NowMs()

	b.mu.Lock()
	b.retained[handle] = s
	chans := append([]chan State(nil), b.subs[handle]...)
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe returns a channel that immediately receives handle's retained
// state (if Publish has ever been called for it), then every subsequent
// update, and an unsubscribe function that must be called exactly once
// when the caller is done.
func (b *Bus) Subscribe(handle domain.Handle) (<-chan State, func()) {
	ch := make(chan State, 4)

	b.mu.Lock()
	if s, ok := b.retained[handle]; ok {
		select {
		case ch <- s:
		default:
		}
	}
	b.subs[handle] = append(b.subs[handle], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[handle]
		for i, c := range list {
			if c == ch {
				b.subs[handle] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}
