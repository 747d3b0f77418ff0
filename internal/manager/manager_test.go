package manager

import (
	"testing"

	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/eventrt"
)

// fakeOps is a driver double that records every call and lets the test
// control whether each operation is accepted.
type fakeOps struct {
	accept       bool
	powerCalls   []bool
	fwCalls      int
	rateCalls    []domain.Rate
	flushCalls   int
	triggerCalls int
}

func (f *fakeOps) Power(on bool) bool            { f.powerCalls = append(f.powerCalls, on); return f.accept }
func (f *fakeOps) FirmwareUpload() bool           { f.fwCalls++; return f.accept }
func (f *fakeOps) SetRate(r domain.Rate, _ domain.Latency) bool {
	f.rateCalls = append(f.rateCalls, r)
	return f.accept
}
func (f *fakeOps) Flush() bool           { f.flushCalls++; return f.accept }
func (f *fakeOps) TriggerOndemand() bool { f.triggerCalls++; return f.accept }

func newTestManager(t *testing.T, rates []domain.Rate) (*Manager, domain.Handle, *fakeOps, *eventrt.Inline) {
	t.Helper()
	rt := eventrt.NewInline(16)
	m := New(Config{SensorCapacity: 4, RequestCapacity: 8, InternalEventCapacity: 8}, nil, rt, nil, nil)
	ops := &fakeOps{accept: true}
	h := m.Register(domain.Info{Type: 1, Name: "test", SupportedRates: rates}, dispatch.InProc(ops))
	if h == 0 {
		t.Fatal("expected registration to succeed")
	}
	return m, h, ops, rt
}

// deliverPower pushes a power-state-changed event (on or off) through the
// manager and drains it synchronously.
func deliverPower(t *testing.T, m *Manager, rt *eventrt.Inline, h domain.Handle, on bool) {
	t.Helper()
	if !m.SignalInternalEvt(h, EventPowerStateChanged, boolToInt64(on), 0) {
		t.Fatal("expected SignalInternalEvt to accept the power event")
	}
	rt.Drain()
}

func deliverFirmware(t *testing.T, m *Manager, rt *eventrt.Inline, h domain.Handle, rate domain.Rate, latency domain.Latency) {
	t.Helper()
	if !m.SignalInternalEvt(h, EventFirmwareStateChanged, int64(rate), int64(latency)) {
		t.Fatal("expected SignalInternalEvt to accept the firmware event")
	}
	rt.Drain()
}

func deliverRateChanged(t *testing.T, m *Manager, rt *eventrt.Inline, h domain.Handle, rate domain.Rate, latency domain.Latency) {
	t.Helper()
	if !m.SignalInternalEvt(h, EventRateChanged, int64(rate), int64(latency)) {
		t.Fatal("expected SignalInternalEvt to accept the rate-changed event")
	}
	rt.Drain()
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// S1 — cold start, single client, supported rate.
func TestScenarioS1ColdStartSupportedRate(t *testing.T) {
	m, h, ops, rt := newTestManager(t, []domain.Rate{10, 50, 100})

	if !m.Request(1, h, domain.Rate(40), domain.LatencyInvalid) {
		t.Fatal("expected Request to succeed")
	}
	if got := m.GetCurRate(h); got != domain.RatePoweringOn {
		t.Fatalf("expected RatePoweringOn, got %v", got)
	}

	deliverPower(t, m, rt, h, true)
	if got := m.GetCurRate(h); got != domain.RateFWUploading {
		t.Fatalf("expected RateFWUploading, got %v", got)
	}
	if ops.fwCalls != 1 {
		t.Fatalf("expected one firmware upload dispatch, got %d", ops.fwCalls)
	}

	deliverFirmware(t, m, rt, h, domain.Rate(50), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.Rate(50) {
		t.Fatalf("expected currentRate 50, got %v", got)
	}
}

// S2 — unsupported rate.
func TestScenarioS2UnsupportedRate(t *testing.T) {
	m, h, ops, _ := newTestManager(t, []domain.Rate{10, 50, 100})

	if m.Request(1, h, domain.Rate(200), domain.LatencyInvalid) {
		t.Fatal("expected Request with an unsatisfiable rate to fail")
	}
	if got := m.GetCurRate(h); got != domain.RateOff {
		t.Fatalf("expected no state change, rate still RateOff, got %v", got)
	}
	if len(ops.powerCalls) != 0 {
		t.Fatal("expected no driver calls for a rejected request")
	}
}

// S3 — two clients, aggregation.
func TestScenarioS3TwoClientAggregation(t *testing.T) {
	m, h, ops, rt := newTestManager(t, []domain.Rate{10, 50, 100})

	m.Request(1, h, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.Rate(10) {
		t.Fatalf("expected active at 10, got %v", got)
	}

	if !m.Request(2, h, domain.Rate(50), domain.LatencyInvalid) {
		t.Fatal("expected second client's request to succeed")
	}
	if len(ops.rateCalls) != 1 || ops.rateCalls[0] != domain.Rate(50) {
		t.Fatalf("expected a SetRate(50) dispatch, got %v", ops.rateCalls)
	}
	deliverRateChanged(t, m, rt, h, domain.Rate(50), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.Rate(50) {
		t.Fatalf("expected currentRate 50, got %v", got)
	}

	if !m.Release(2, h) {
		t.Fatal("expected release to succeed")
	}
	if len(ops.rateCalls) != 2 || ops.rateCalls[1] != domain.Rate(10) {
		t.Fatalf("expected a SetRate(10) dispatch after release, got %v", ops.rateCalls)
	}
	deliverRateChanged(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.Rate(10) {
		t.Fatalf("expected currentRate 10, got %v", got)
	}
}

// S4 — amend during power-on.
func TestScenarioS4AmendDuringPowerOn(t *testing.T) {
	m, h, ops, rt := newTestManager(t, []domain.Rate{10, 50, 100})

	m.Request(1, h, domain.Rate(10), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.RatePoweringOn {
		t.Fatalf("expected RatePoweringOn, got %v", got)
	}

	if !m.Amend(1, h, domain.Rate(50), domain.LatencyInvalid) {
		t.Fatal("expected Amend to succeed")
	}
	if len(ops.rateCalls) != 0 {
		t.Fatal("expected no dispatch yet: sensor is still powering on")
	}

	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)

	if len(ops.rateCalls) != 1 || ops.rateCalls[0] != domain.Rate(50) {
		t.Fatalf("expected the post-upload reconcile to dispatch SetRate(50), got %v", ops.rateCalls)
	}
}

// S5 — flip during power-off.
func TestScenarioS5FlipDuringPowerOff(t *testing.T) {
	m, h, ops, rt := newTestManager(t, []domain.Rate{10, 50, 100})

	m.Request(1, h, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)

	if !m.Release(1, h) {
		t.Fatal("expected release to succeed")
	}
	if got := m.GetCurRate(h); got != domain.RatePoweringOff {
		t.Fatalf("expected RatePoweringOff, got %v", got)
	}

	if !m.Request(2, h, domain.Rate(10), domain.LatencyInvalid) {
		t.Fatal("expected the new request to succeed")
	}
	if got := m.GetCurRate(h); got != domain.RatePoweringOn {
		t.Fatalf("expected state to flip straight to RatePoweringOn, got %v", got)
	}

	powerCallsBefore := len(ops.powerCalls)
	deliverPower(t, m, rt, h, false)
	if len(ops.powerCalls) != powerCallsBefore+1 || !ops.powerCalls[len(ops.powerCalls)-1] {
		t.Fatalf("expected the stale power-off completion to re-issue Power(true), got %v", ops.powerCalls)
	}
}

// S6 — on-demand coexists with continuous.
func TestScenarioS6OnDemandCoexistsWithContinuous(t *testing.T) {
	m, h, _, rt := newTestManager(t, []domain.Rate{10, 50, 100})

	m.Request(1, h, domain.RateOnDemand, domain.LatencyInvalid)
	m.Request(2, h, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.Rate(10) {
		t.Fatalf("expected aggregated rate 10, got %v", got)
	}

	if !m.Release(2, h) {
		t.Fatal("expected release to succeed")
	}
	if got := m.GetCurRate(h); got != domain.Rate(10) {
		t.Fatalf("expected the rate to remain 10 until the completion arrives, got %v", got)
	}
	deliverRateChanged(t, m, rt, h, domain.RateOnDemand, domain.LatencyInvalid)
	if got := m.GetCurRate(h); got != domain.RateOnDemand {
		t.Fatalf("expected aggregated rate to settle at RateOnDemand without powering off, got %v", got)
	}
}

// Invariant 1: currentRate == OFF implies currentLatency == INVALID.
func TestInvariantOffImpliesLatencyInvalid(t *testing.T) {
	m, h, _, _ := newTestManager(t, []domain.Rate{10})
	if rate, latency := m.GetCurRate(h), m.GetCurLatency(h); rate != domain.RateOff || latency != domain.LatencyInvalid {
		t.Fatalf("expected (RateOff, LatencyInvalid) on a freshly registered sensor, got (%v,%v)", rate, latency)
	}
}

// Invariant 2: emptying the request set eventually returns the sensor to OFF.
func TestInvariantEmptyRequestSetReturnsToOff(t *testing.T) {
	m, h, _, rt := newTestManager(t, []domain.Rate{10})
	m.Request(1, h, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)

	m.Release(1, h)
	deliverPower(t, m, rt, h, false)

	if got := m.GetCurRate(h); got != domain.RateOff {
		t.Fatalf("expected RateOff once the request set is empty, got %v", got)
	}
}

// Invariant 4: CalcHwRate never returns a rate outside supportedRates, is
// covered directly in internal/aggregate; here we check the manager never
// records RateImpossible as a sensor's state.
func TestInvariantManagerNeverStoresImpossible(t *testing.T) {
	m, h, _, _ := newTestManager(t, []domain.Rate{10})
	m.Request(1, h, domain.Rate(999), domain.LatencyInvalid)
	if got := m.GetCurRate(h); got == domain.RateImpossible {
		t.Fatal("RateImpossible must never be stored as a sensor's current rate")
	}
}

// Invariant 5 is covered by internal/registry's own tests (handle
// uniqueness, FindByHandle(0)).

// Invariant 7: request followed by release by the same client is a no-op
// on the request set — once the driver has settled back to OFF, a fresh
// client's request behaves exactly like a cold start.
func TestInvariantRequestThenReleaseIsNoop(t *testing.T) {
	m, h, _, rt := newTestManager(t, []domain.Rate{10})
	m.Request(1, h, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h, true)
	deliverFirmware(t, m, rt, h, domain.Rate(10), domain.LatencyInvalid)

	m.Release(1, h)
	deliverPower(t, m, rt, h, false)

	if got := m.GetCurRate(h); got != domain.RateOff {
		t.Fatalf("expected the sensor back at RateOff before the second client arrives, got %v", got)
	}

	if !m.Request(2, h, domain.Rate(10), domain.LatencyInvalid) {
		t.Fatal("expected a fresh request to succeed")
	}
	if got := m.GetCurRate(h); got != domain.RatePoweringOn {
		t.Fatalf("expected client 2's request to behave like a cold start, got %v", got)
	}
}

func TestUnknownHandleOperationsFail(t *testing.T) {
	m, _, _, _ := newTestManager(t, []domain.Rate{10})
	const bogus = domain.Handle(99999)

	if m.Request(1, bogus, domain.Rate(10), domain.LatencyInvalid) {
		t.Fatal("expected Request on an unknown handle to fail")
	}
	if m.Amend(1, bogus, domain.Rate(10), domain.LatencyInvalid) {
		t.Fatal("expected Amend on an unknown handle to fail")
	}
	if m.Release(1, bogus) {
		t.Fatal("expected Release on an unknown handle to fail")
	}
	if m.Flush(bogus) {
		t.Fatal("expected Flush on an unknown handle to fail")
	}
	if m.GetCurRate(bogus) != domain.RateOff {
		t.Fatal("expected GetCurRate on an unknown handle to return RateOff")
	}
	if m.GetCurLatency(bogus) != domain.LatencyInvalid {
		t.Fatal("expected GetCurLatency on an unknown handle to return LatencyInvalid")
	}
}

func TestTriggerOndemandRequiresLiveRequest(t *testing.T) {
	m, h, ops, _ := newTestManager(t, []domain.Rate{10})
	if m.TriggerOndemand(1, h) {
		t.Fatal("expected TriggerOndemand to fail with no live request")
	}
	m.Request(1, h, domain.RateOnDemand, domain.LatencyInvalid)
	if !m.TriggerOndemand(1, h) {
		t.Fatal("expected TriggerOndemand to succeed once client 1 has a live request")
	}
	if ops.triggerCalls != 1 {
		t.Fatalf("expected one TriggerOndemand dispatch, got %d", ops.triggerCalls)
	}
}

func TestFlushRequiresNoClientCheck(t *testing.T) {
	m, h, ops, _ := newTestManager(t, []domain.Rate{10})
	if !m.Flush(h) {
		t.Fatal("expected Flush to succeed with no live requests at all")
	}
	if ops.flushCalls != 1 {
		t.Fatalf("expected one flush dispatch, got %d", ops.flushCalls)
	}
}

func TestReleaseClientReconcilesEveryAffectedSensor(t *testing.T) {
	rt := eventrt.NewInline(16)
	m := New(Config{SensorCapacity: 4, RequestCapacity: 8, InternalEventCapacity: 8}, nil, rt, nil, nil)
	ops1 := &fakeOps{accept: true}
	ops2 := &fakeOps{accept: true}
	h1 := m.Register(domain.Info{Type: 1, SupportedRates: []domain.Rate{10}}, dispatch.InProc(ops1))
	h2 := m.Register(domain.Info{Type: 2, SupportedRates: []domain.Rate{10}}, dispatch.InProc(ops2))

	m.Request(1, h1, domain.Rate(10), domain.LatencyInvalid)
	m.Request(1, h2, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h1, true)
	deliverFirmware(t, m, rt, h1, domain.Rate(10), domain.LatencyInvalid)
	deliverPower(t, m, rt, h2, true)
	deliverFirmware(t, m, rt, h2, domain.Rate(10), domain.LatencyInvalid)

	m.ReleaseClient(1)

	if m.tbl.HasRequestor(h1, 1) || m.tbl.HasRequestor(h2, 1) {
		t.Fatal("expected ReleaseClient to drop every request belonging to client 1")
	}
	if len(ops1.powerCalls) != 2 || len(ops2.powerCalls) != 2 {
		t.Fatalf("expected both sensors to see a power-on then power-off dispatch, got ops1=%v ops2=%v", ops1.powerCalls, ops2.powerCalls)
	}
}
