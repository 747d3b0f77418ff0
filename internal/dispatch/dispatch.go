// Package dispatch invokes driver operations uniformly whether the
// driver lives in-process (a synchronous Ops implementation) or
// out-of-process (an asynchronous TaskSink recipient identified by a
// TaskID) — the Go realization of the original firmware's tagged-pointer
// trick for telling the two kinds of driver reference apart.
package dispatch

import (
	"sensorhub/internal/domain"
	"sensorhub/internal/pool"

	"go.uber.org/zap"
)

// Ops is the synchronous in-process driver interface. Every method
// reports only whether the request was accepted; completion, where it
// isn't immediate, is reported back asynchronously through
// manager.Manager.SignalInternalEvt.
type Ops interface {
	Power(on bool) bool
	FirmwareUpload() bool
	SetRate(rate domain.Rate, latency domain.Latency) bool
	Flush() bool
	TriggerOndemand() bool
}

// TaskID identifies an out-of-process driver recipient.
type TaskID string

// EventCode enumerates the messages a TaskSink can receive.
type EventCode int

const (
	EventPower EventCode = iota
	EventFirmwareUpload
	EventSetRate
	EventFlush
	EventTrigger
)

// SetRatePayload is the payload carried by an EventSetRate message.
type SetRatePayload struct {
	Rate    domain.Rate
	Latency domain.Latency
}

// TaskSink delivers events to out-of-process drivers. Enqueue reports
// whether the message was accepted for delivery, not whether the remote
// driver has acted on it yet. release, when non-nil, must be invoked once
// the sink is finished with payload — it returns the payload's pooled
// slot (used for EventSetRate, whose payload is allocated from a bounded
// pool rather than the Go heap, mirroring the original's slab-allocated
// event records).
type TaskSink interface {
	Enqueue(id TaskID, code EventCode, payload any, release func()) bool
}

type callKind uint8

const (
	callInProc callKind = iota
	callOutOfProc
)

// CallInfo is the tagged reference to a driver: either an in-process Ops
// implementation or an out-of-process TaskID, never both.
type CallInfo struct {
	kind callKind
	ops  Ops
	task TaskID
}

// InProc wraps an in-process driver.
func InProc(ops Ops) CallInfo { return CallInfo{kind: callInProc, ops: ops} }

// OutOfProc wraps an out-of-process driver's task identifier.
func OutOfProc(id TaskID) CallInfo { return CallInfo{kind: callOutOfProc, task: id} }

// IsOutOfProc reports whether call refers to an out-of-process driver.
func (c CallInfo) IsOutOfProc() bool { return c.kind == callOutOfProc }

// Dispatcher is the single point through which the manager ever touches
// a driver.
type Dispatcher struct {
	sink   TaskSink
	events *pool.Pool[SetRatePayload]
	log    *zap.Logger
}

// New builds a Dispatcher. sink may be nil if no out-of-process driver is
// ever registered; calling an out-of-process operation in that case
// reports failure rather than panicking.
func New(sink TaskSink, eventPoolCapacity int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sink: sink, events: pool.New[SetRatePayload](eventPoolCapacity), log: log}
}

func (d *Dispatcher) outOfProc(call CallInfo, code EventCode, payload any, release func()) bool {
	if d.sink == nil {
		d.log.Debug("dispatch: no out-of-process sink configured", zap.String("task", string(call.task)))
		return false
	}
	ok := d.sink.Enqueue(call.task, code, payload, release)
	if !ok {
		d.log.Debug("dispatch: out-of-process enqueue refused", zap.String("task", string(call.task)), zap.Int("code", int(code)))
	}
	return ok
}

// Power asks the driver to power on or off.
func (d *Dispatcher) Power(call CallInfo, on bool) bool {
	if call.kind == callInProc {
		return call.ops.Power(on)
	}
	return d.outOfProc(call, EventPower, on, nil)
}

// FirmwareUpload asks the driver to (re-)upload its firmware image.
func (d *Dispatcher) FirmwareUpload(call CallInfo) bool {
	if call.kind == callInProc {
		return call.ops.FirmwareUpload()
	}
	return d.outOfProc(call, EventFirmwareUpload, nil, nil)
}

// SetRate asks the driver to change its sample rate and batching latency.
// For an out-of-process driver the payload is allocated from a bounded
// pool rather than the heap: a full pool causes SetRate to report failure
// rather than block or allocate unbounded memory.
func (d *Dispatcher) SetRate(call CallInfo, rate domain.Rate, latency domain.Latency) bool {
	if call.kind == callInProc {
		return call.ops.SetRate(rate, latency)
	}
	idx, slot, ok := d.events.Acquire()
	if !ok {
		d.log.Debug("dispatch: set-rate event pool exhausted", zap.String("task", string(call.task)))
		return false
	}
	*slot = SetRatePayload{Rate: rate, Latency: latency}
	release := func() { d.events.Release(idx) }
	if d.outOfProc(call, EventSetRate, *slot, release) {
		return true
	}
	d.events.Release(idx)
	return false
}

// Flush asks the driver to deliver any buffered samples immediately.
func (d *Dispatcher) Flush(call CallInfo) bool {
	if call.kind == callInProc {
		return call.ops.Flush()
	}
	return d.outOfProc(call, EventFlush, nil, nil)
}

// TriggerOndemand asks the driver for a single on-demand sample.
func (d *Dispatcher) TriggerOndemand(call CallInfo) bool {
	if call.kind == callInProc {
		return call.ops.TriggerOndemand()
	}
	return d.outOfProc(call, EventTrigger, nil, nil)
}
