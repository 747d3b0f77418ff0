// Package registry is the sensor driver directory: a bounded set of
// slots, each holding one registered driver's descriptor, current rate/
// latency and call reference, addressed from the outside only by the
// nonzero Handle minted at registration time.
package registry

import (
	"sync"

	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/pool"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Record is one registered sensor.
type Record struct {
	Info    domain.Info
	Handle  domain.Handle // 0 means the slot is free
	Rate    domain.Rate
	Latency domain.Latency
	Call    dispatch.CallInfo
}

// Registry is safe to call Register/Unregister/FindByHandle/FindByType on
// from any goroutine: registration is the one surface of the sensor
// manager the specification allows to run off the single event thread.
// Everything else about a *Record (the Rate/Latency fields mutated by
// reconciliation) is only ever touched from that one thread.
type Registry struct {
	slots *pool.Pool[Record]

	mu       sync.RWMutex
	byHandle map[domain.Handle]int
	nextID   atomic.Uint32

	log *zap.Logger
}

// New creates a Registry with room for capacity sensors.
func New(capacity int, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		slots:    pool.New[Record](capacity),
		byHandle: make(map[domain.Handle]int, capacity),
		log:      log,
	}
}

// mintHandle returns the next unused handle: a wrapping 32-bit counter
// scanned against every handle currently in use, exactly as the original
// firmware's sensorRegisterEx. Zero is never minted.
func (r *Registry) mintHandle() domain.Handle {
	for {
		h := domain.Handle(r.nextID.Add(1))
		if h == 0 {
			continue
		}
		r.mu.RLock()
		_, inUse := r.byHandle[h]
		r.mu.RUnlock()
		if !inUse {
			return h
		}
	}
}

// Register installs a driver and returns its handle, or 0 if the registry
// has no free slot. The record's fields are written before the handle is
// published into byHandle under the same mutex a lookup acquires, so no
// reader ever observes a handle paired with a half-initialized record.
func (r *Registry) Register(info domain.Info, call dispatch.CallInfo) domain.Handle {
	idx, slot, ok := r.slots.Acquire()
	if !ok {
		return 0
	}

	handle := r.mintHandle()

	slot.Info = info
	slot.Rate = domain.RateOff
	slot.Latency = domain.LatencyInvalid
	slot.Call = call
	slot.Handle = handle

	r.mu.Lock()
	r.byHandle[handle] = idx
	r.mu.Unlock()

	r.log.Debug("sensor registered", zap.Uint32("handle", uint32(handle)), zap.Int("type", int(info.Type)), zap.String("name", info.Name))
	return handle
}

// Unregister invalidates and frees handle's slot. It reports false if
// handle is unknown.
func (r *Registry) Unregister(handle domain.Handle) bool {
	r.mu.Lock()
	idx, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byHandle, handle)
	r.mu.Unlock()

	if slot := r.slots.At(idx); slot != nil {
		slot.Handle = 0
	}
	r.slots.Release(idx)
	r.log.Debug("sensor unregistered", zap.Uint32("handle", uint32(handle)))
	return true
}

// FindByHandle returns the live record for handle, or nil if handle is
// zero or unknown.
func (r *Registry) FindByHandle(handle domain.Handle) *Record {
	if handle == 0 {
		return nil
	}
	r.mu.RLock()
	idx, ok := r.byHandle[handle]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.slots.At(idx)
}

// FindByType returns the idx-th (0-based, slot order) live sensor of type
// t, its handle, and whether that many sensors of that type exist.
func (r *Registry) FindByType(t domain.SensorType, idx int) (domain.Info, domain.Handle, bool) {
	var (
		info  domain.Info
		h     domain.Handle
		found bool
		count int
	)
	r.slots.Each(func(_ int, rec *Record) {
		if found || rec.Handle == 0 || rec.Info.Type != t {
			return
		}
		if count == idx {
			info, h, found = rec.Info, rec.Handle, true
			return
		}
		count++
	})
	return info, h, found
}

// Each calls fn once per live sensor record, in slot order.
func (r *Registry) Each(fn func(*Record)) {
	r.slots.Each(func(_ int, rec *Record) {
		if rec.Handle != 0 {
			fn(rec)
		}
	})
}

// Capacity returns the maximum number of sensors this registry can hold.
func (r *Registry) Capacity() int { return r.slots.Capacity() }
