package dispatch

import (
	"testing"

	"sensorhub/internal/domain"
)

type fakeOps struct {
	powerOn      bool
	powerCalls   int
	fwCalls      int
	rate         domain.Rate
	latency      domain.Latency
	flushCalls   int
	triggerCalls int
	fail         bool
}

func (f *fakeOps) Power(on bool) bool {
	f.powerCalls++
	f.powerOn = on
	return !f.fail
}
func (f *fakeOps) FirmwareUpload() bool {
	f.fwCalls++
	return !f.fail
}
func (f *fakeOps) SetRate(rate domain.Rate, latency domain.Latency) bool {
	f.rate, f.latency = rate, latency
	return !f.fail
}
func (f *fakeOps) Flush() bool           { f.flushCalls++; return !f.fail }
func (f *fakeOps) TriggerOndemand() bool { f.triggerCalls++; return !f.fail }

type fakeSink struct {
	lastID      TaskID
	lastCode    EventCode
	lastPayload any
	accept      bool
	released    bool
}

func (s *fakeSink) Enqueue(id TaskID, code EventCode, payload any, release func()) bool {
	s.lastID, s.lastCode, s.lastPayload = id, code, payload
	if release != nil {
		release()
		s.released = true
	}
	return s.accept
}

func TestInProcDelegatesToOps(t *testing.T) {
	ops := &fakeOps{}
	d := New(nil, 4, nil)
	call := InProc(ops)

	if !d.Power(call, true) || ops.powerCalls != 1 || !ops.powerOn {
		t.Fatal("expected Power to reach the in-process ops")
	}
	if !d.FirmwareUpload(call) || ops.fwCalls != 1 {
		t.Fatal("expected FirmwareUpload to reach the in-process ops")
	}
	if !d.SetRate(call, domain.Rate(10), domain.Latency(5)) || ops.rate != 10 || ops.latency != 5 {
		t.Fatal("expected SetRate to reach the in-process ops")
	}
	if !d.Flush(call) || ops.flushCalls != 1 {
		t.Fatal("expected Flush to reach the in-process ops")
	}
	if !d.TriggerOndemand(call) || ops.triggerCalls != 1 {
		t.Fatal("expected TriggerOndemand to reach the in-process ops")
	}
}

func TestOutOfProcEnqueuesToSink(t *testing.T) {
	sink := &fakeSink{accept: true}
	d := New(sink, 4, nil)
	call := OutOfProc(TaskID("task-1"))

	if !d.Power(call, true) || sink.lastCode != EventPower || sink.lastID != "task-1" {
		t.Fatal("expected Power to enqueue to the sink")
	}
	if !d.SetRate(call, domain.Rate(10), domain.Latency(5)) {
		t.Fatal("expected SetRate to succeed")
	}
	payload, ok := sink.lastPayload.(SetRatePayload)
	if !ok || payload.Rate != 10 || payload.Latency != 5 {
		t.Fatalf("expected SetRatePayload{10,5}, got %#v", sink.lastPayload)
	}
	if !sink.released {
		t.Fatal("expected the pooled payload to be released once the sink accepted it")
	}
}

func TestSetRateReleasesSlotWhenSinkRefuses(t *testing.T) {
	sink := &fakeSink{accept: false}
	d := New(sink, 1, nil)
	call := OutOfProc(TaskID("task-1"))

	if d.SetRate(call, domain.Rate(1), domain.Latency(1)) {
		t.Fatal("expected SetRate to fail when the sink refuses")
	}
	// The pool must not have leaked the slot: a second SetRate must still
	// be able to acquire one.
	sink.accept = true
	if !d.SetRate(call, domain.Rate(2), domain.Latency(2)) {
		t.Fatal("expected SetRate to succeed after the slot was reclaimed")
	}
}

func TestSetRateFailsWhenEventPoolExhausted(t *testing.T) {
	sink := &fakeSink{accept: true}
	d := New(sink, 1, nil)
	call := OutOfProc(TaskID("task-1"))

	// release is invoked synchronously by fakeSink, so the slot always
	// comes back; exhaust the real pool instead by wrapping a sink that
	// does not call release.
	holdingSink := &holdingSink{}
	d2 := New(holdingSink, 1, nil)
	if !d2.SetRate(call, domain.Rate(1), domain.Latency(1)) {
		t.Fatal("expected first SetRate to succeed")
	}
	if d2.SetRate(call, domain.Rate(2), domain.Latency(2)) {
		t.Fatal("expected second SetRate to fail: event pool has only one slot and it was never released")
	}
	_ = d
}

type holdingSink struct{}

func (holdingSink) Enqueue(TaskID, EventCode, any, func()) bool { return true }

func TestOperationsWithoutSinkFail(t *testing.T) {
	d := New(nil, 4, nil)
	call := OutOfProc(TaskID("task-1"))
	if d.Power(call, true) {
		t.Fatal("expected Power to fail with no sink configured")
	}
	if d.Flush(call) {
		t.Fatal("expected Flush to fail with no sink configured")
	}
}
