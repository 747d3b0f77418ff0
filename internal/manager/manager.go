// Package manager wires the registry, request table, aggregator, state
// machine and dispatcher behind the public API a client uses to
// subscribe to sensors: Request, Amend, Release, TriggerOndemand, Flush,
// GetCurRate, GetCurLatency, plus the driver-facing SignalInternalEvt.
//
// Every method here except Register/Unregister (which delegate straight
// to the concurrency-safe Registry) assumes it is called from the
// manager's single execution context — the same discipline the original
// firmware's event thread enforces, carried here as a documented
// precondition rather than an internal lock, since adding one would
// silently paper over a caller violating that discipline.
package manager

import (
	"sensorhub/errcode"
	"sensorhub/internal/aggregate"
	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/eventrt"
	"sensorhub/internal/pool"
	"sensorhub/internal/registry"
	"sensorhub/internal/requests"
	"sensorhub/internal/statemachine"
	"sensorhub/internal/telemetry"

	"go.uber.org/zap"
)

// EventKind enumerates the asynchronous completion events a driver
// reports back through SignalInternalEvt.
type EventKind int

const (
	// EventPowerStateChanged: value1 is 1 for powered on, 0 for off.
	EventPowerStateChanged EventKind = iota
	// EventFirmwareStateChanged: value1 is the new rate on success (and
	// therefore nonzero), 0 on failure; value2 is the new latency.
	EventFirmwareStateChanged
	// EventRateChanged: value1/value2 are the rate/latency the driver
	// actually settled at.
	EventRateChanged
)

// internalEvent is one pooled completion-event record — the Go
// realization of the original firmware's bounded internal-event pool.
type internalEvent struct {
	handle domain.Handle
	kind   EventKind
	value1 int64
	value2 int64
}

// Config bounds every pool the manager owns.
type Config struct {
	SensorCapacity        int
	RequestCapacity       int
	InternalEventCapacity int
}

// Manager is the sensor manager.
type Manager struct {
	reg    *registry.Registry
	tbl    *requests.Table
	disp   *dispatch.Dispatcher
	rt     eventrt.Runtime
	tel    *telemetry.Bus
	events *pool.Pool[internalEvent]
	log    *zap.Logger
}

// New builds a Manager. sink may be nil if no out-of-process driver will
// ever be registered. tel may be nil to disable telemetry publication.
func New(cfg Config, sink dispatch.TaskSink, rt eventrt.Runtime, tel *telemetry.Bus, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		reg:    registry.New(cfg.SensorCapacity, log),
		tbl:    requests.New(cfg.RequestCapacity),
		disp:   dispatch.New(sink, cfg.InternalEventCapacity, log),
		rt:     rt,
		tel:    tel,
		events: pool.New[internalEvent](cfg.InternalEventCapacity),
		log:    log,
	}
}

// Register installs a driver. It may be called from any goroutine.
func (m *Manager) Register(info domain.Info, call dispatch.CallInfo) domain.Handle {
	return m.reg.Register(info, call)
}

// Unregister removes a driver. It may be called from any goroutine.
func (m *Manager) Unregister(handle domain.Handle) bool {
	return m.reg.Unregister(handle)
}

func (m *Manager) reconcile(rec *registry.Record) {
	snapshot := m.tbl.ForSensor(rec.Handle)
	target := aggregate.CalcHwRate(rec.Info.SupportedRates, snapshot, domain.RateOff, domain.RateOff)
	latency := aggregate.CalcHwLatency(snapshot)
	statemachine.Reconcile(m.disp, rec, target, latency, m.log)
	m.notify(rec)
}

// reject logs a rejected public-API call at debug level, tagged with
// the errcode.Code an operator dashboard would group it under.
func (m *Manager) reject(op string, code errcode.Code, handle domain.Handle) {
	m.log.Debug("rejected", zap.String("op", op), zap.String("code", string(code)), zap.Uint32("handle", uint32(handle)))
}

func (m *Manager) notify(rec *registry.Record) {
	if m.tel == nil {
		return
	}
	m.tel.Publish(rec.Handle, telemetry.State{Rate: rec.Rate, Latency: rec.Latency})
}

// Request records a new subscription by clientID against handle at the
// given rate/latency. It reports false if handle is unknown, the request
// table is full, or no supported rate could satisfy every request
// including this new one.
//
// A second Request from the same (clientID, handle) pair is not merged
// with the first: it stacks a second, independent record, matching the
// original firmware's sensorAddRequestor, which never checks for an
// existing entry before adding one. Clients that want to change their
// existing request call Amend instead.
func (m *Manager) Request(clientID uint32, handle domain.Handle, rate domain.Rate, latency domain.Latency) bool {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		m.reject("Request", errcode.UnknownHandle, handle)
		return false
	}
	snapshot := m.tbl.ForSensor(handle)
	if target := aggregate.CalcHwRate(rec.Info.SupportedRates, snapshot, rate, domain.RateOff); target == domain.RateImpossible {
		m.reject("Request", errcode.Infeasible, handle)
		return false
	}
	if !m.tbl.Add(handle, clientID, rate, latency) {
		m.reject("Request", errcode.CapacityExhausted, handle)
		return false
	}
	m.reconcile(rec)
	return true
}

// Amend changes clientID's existing request against handle. It reports
// false if handle is unknown, clientID has no existing request, or the
// new rate is not jointly satisfiable with every other live request.
func (m *Manager) Amend(clientID uint32, handle domain.Handle, newRate domain.Rate, newLatency domain.Latency) bool {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		m.reject("Amend", errcode.UnknownHandle, handle)
		return false
	}
	oldRate, _, ok := m.tbl.Get(handle, clientID)
	if !ok {
		m.reject("Amend", errcode.UnknownClient, handle)
		return false
	}
	snapshot := m.tbl.ForSensor(handle)
	if target := aggregate.CalcHwRate(rec.Info.SupportedRates, snapshot, newRate, oldRate); target == domain.RateImpossible {
		m.reject("Amend", errcode.Infeasible, handle)
		return false
	}
	if !m.tbl.Amend(handle, clientID, newRate, newLatency) {
		m.reject("Amend", errcode.UnknownClient, handle)
		return false
	}
	m.reconcile(rec)
	return true
}

// Release removes clientID's request against handle. It reports false if
// handle is unknown or clientID had no live request.
func (m *Manager) Release(clientID uint32, handle domain.Handle) bool {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		m.reject("Release", errcode.UnknownHandle, handle)
		return false
	}
	if !m.tbl.Delete(handle, clientID) {
		m.reject("Release", errcode.UnknownClient, handle)
		return false
	}
	m.reconcile(rec)
	return true
}

// TriggerOndemand asks handle's driver for a single on-demand sample, if
// clientID currently holds a live request against it.
func (m *Manager) TriggerOndemand(clientID uint32, handle domain.Handle) bool {
	rec := m.reg.FindByHandle(handle)
	if rec == nil || !m.tbl.HasRequestor(handle, clientID) {
		m.reject("TriggerOndemand", errcode.UnknownClient, handle)
		return false
	}
	if ok := m.disp.TriggerOndemand(rec.Call); !ok {
		m.reject("TriggerOndemand", errcode.DriverRefused, handle)
		return false
	}
	return true
}

// Flush asks handle's driver to deliver any buffered samples
// immediately. Unlike TriggerOndemand, it does not require the caller to
// hold a live request.
func (m *Manager) Flush(handle domain.Handle) bool {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		m.reject("Flush", errcode.UnknownHandle, handle)
		return false
	}
	if ok := m.disp.Flush(rec.Call); !ok {
		m.reject("Flush", errcode.DriverRefused, handle)
		return false
	}
	return true
}

// GetCurRate returns handle's current hardware rate, or RateOff if handle
// is unknown.
func (m *Manager) GetCurRate(handle domain.Handle) domain.Rate {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		return domain.RateOff
	}
	return rec.Rate
}

// GetCurLatency returns handle's current batching latency, or
// LatencyInvalid if handle is unknown.
func (m *Manager) GetCurLatency(handle domain.Handle) domain.Latency {
	rec := m.reg.FindByHandle(handle)
	if rec == nil {
		return domain.LatencyInvalid
	}
	return rec.Latency
}

// ReleaseClient drops every live request belonging to clientID (e.g. on
// disconnect) and reconciles every sensor that lost one.
func (m *Manager) ReleaseClient(clientID uint32) {
	for _, handle := range m.tbl.DeleteAllForClient(clientID) {
		if rec := m.reg.FindByHandle(handle); rec != nil {
			m.reconcile(rec)
		}
	}
}

// SignalInternalEvt is the driver-facing entry point for asynchronous
// completion. It allocates a pooled event record, then defers the
// matching state-machine transition onto the manager's execution context
// via rt. It reports false if the event pool is exhausted or rt refused
// the deferral — the only failure that can cross this asynchronous
// boundary back to the caller.
func (m *Manager) SignalInternalEvt(handle domain.Handle, kind EventKind, value1, value2 int64) bool {
	idx, evt, ok := m.events.Acquire()
	if !ok {
		m.reject("SignalInternalEvt", errcode.CapacityExhausted, handle)
		return false
	}
	evt.handle, evt.kind, evt.value1, evt.value2 = handle, kind, value1, value2

	deferred := func() {
		m.deliver(evt)
		m.events.Release(idx)
	}
	if m.rt.Defer(deferred) {
		return true
	}
	m.events.Release(idx)
	return false
}

func (m *Manager) deliver(evt *internalEvent) {
	rec := m.reg.FindByHandle(evt.handle)
	if rec == nil {
		// Late event for a sensor that has since been unregistered.
		return
	}
	switch evt.kind {
	case EventPowerStateChanged:
		statemachine.PowerStateChanged(m.disp, rec, evt.value1 != 0)
	case EventFirmwareStateChanged:
		ok := evt.value1 != 0
		statemachine.FirmwareStateChanged(m.disp, rec, ok, domain.Rate(evt.value1), domain.Latency(evt.value2), func() {
			m.reconcile(rec)
		})
	case EventRateChanged:
		statemachine.RateChanged(rec, domain.Rate(evt.value1), domain.Latency(evt.value2))
	default:
		m.log.Debug("unknown internal event kind ignored", zap.Int("kind", int(evt.kind)))
	}
	m.notify(rec)
}
