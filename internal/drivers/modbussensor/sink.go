// Package modbussensor implements dispatch.TaskSink over Modbus TCP,
// for sensors that live behind a remote unit rather than on the local
// I2C bus — a field weather station, a remote current-clamp, anything
// reachable only by register reads. Each registered sensor owns its
// own client and connection; a fixed worker pool drains the shared
// job queue so one slow remote cannot starve the others indefinitely,
// though it can still exhaust the queue's bounded capacity.
package modbussensor

import (
	"sync"
	"time"

	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/manager"

	"github.com/goburrow/modbus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config describes one remote sensor reachable over Modbus TCP.
type Config struct {
	Endpoint string
	UnitID   byte
	Register uint16
	Timeout  time.Duration
	// BaseRate is reported as the settled rate once the initial
	// connectivity probe (played as this driver's "firmware upload")
	// succeeds, mirroring envsensor.Adaptor's baseRate.
	BaseRate domain.Rate
}

type remote struct {
	handle  domain.Handle
	cfg     Config
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type job struct {
	id      dispatch.TaskID
	code    dispatch.EventCode
	payload any
	release func()
}

// Sink is a dispatch.TaskSink backed by a fixed pool of worker
// goroutines, each executing Modbus round trips and reporting their
// outcome back through manager.Manager.SignalInternalEvt.
type Sink struct {
	mu      sync.Mutex
	remotes map[dispatch.TaskID]*remote

	jobs chan job
	wg   sync.WaitGroup

	mgr *manager.Manager
	log *zap.Logger
}

// NewSink starts workers goroutines draining a queue of depth
// queueCapacity. Call Close to stop them once the hub is shutting
// down. mgr is accepted as nil here because the Sink must exist before
// the Manager can be constructed (the Manager's Dispatcher is wired to
// its TaskSink at construction time) — call SetManager once the
// Manager exists, before registering any sensor that uses this sink.
func NewSink(mgr *manager.Manager, workers, queueCapacity int, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sink{
		remotes: make(map[dispatch.TaskID]*remote),
		jobs:    make(chan job, queueCapacity),
		mgr:     mgr,
		log:     log,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// SetManager completes the two-phase wiring NewSink's doc comment
// describes. It must happen-before any job reaches a worker, so callers
// should set it immediately after constructing the Manager and before
// the first sensor registration that uses this sink.
func (s *Sink) SetManager(mgr *manager.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mgr = mgr
}

// Register dials (lazily, on first use) a new remote sensor and
// returns the TaskID the caller should wrap into a dispatch.CallInfo
// via dispatch.OutOfProc before registering the sensor with the
// manager.
func (s *Sink) Register(cfg Config) dispatch.TaskID {
	handler := modbus.NewTCPClientHandler(cfg.Endpoint)
	handler.SlaveId = cfg.UnitID
	if cfg.Timeout > 0 {
		handler.Timeout = cfg.Timeout
	}
	id := dispatch.TaskID(uuid.NewString())
	s.mu.Lock()
	s.remotes[id] = &remote{
		cfg:     cfg,
		handler: handler,
		client:  modbus.NewClient(handler),
	}
	s.mu.Unlock()
	return id
}

// Bind records the handle the registry minted for id, so completion
// events name the right sensor. It must be called once, right after
// Register, before any traffic for id is enqueued.
func (s *Sink) Bind(id dispatch.TaskID, handle domain.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.remotes[id]; ok {
		r.handle = handle
	}
}

// Close stops accepting new jobs and waits for in-flight ones to
// finish.
func (s *Sink) Close() {
	close(s.jobs)
	s.wg.Wait()
}

// Enqueue implements dispatch.TaskSink. It reports false, without
// blocking, if the job queue is full.
func (s *Sink) Enqueue(id dispatch.TaskID, code dispatch.EventCode, payload any, release func()) bool {
	select {
	case s.jobs <- job{id: id, code: code, payload: payload, release: release}:
		return true
	default:
		if release != nil {
			release()
		}
		return false
	}
}

func (s *Sink) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		s.process(j)
	}
}

func (s *Sink) process(j job) {
	if j.release != nil {
		defer j.release()
	}

	s.mu.Lock()
	r, ok := s.remotes[j.id]
	s.mu.Unlock()
	if !ok {
		s.log.Debug("modbussensor: job for unknown task id dropped", zap.String("task", string(j.id)))
		return
	}

	switch j.code {
	case dispatch.EventPower:
		on, _ := j.payload.(bool)
		s.handlePower(r, on)
	case dispatch.EventFirmwareUpload:
		s.handleFirmwareUpload(r)
	case dispatch.EventSetRate:
		s.handleSetRate(r, j.payload)
	case dispatch.EventFlush, dispatch.EventTrigger:
		// Neither has a manager-facing completion event; a failed probe
		// here just means the next scheduled poll tries again.
		_, _ = r.client.ReadHoldingRegisters(r.cfg.Register, 1)
	}
}

func (s *Sink) handlePower(r *remote, on bool) {
	var err error
	if on {
		err = r.handler.Connect()
	} else {
		err = r.handler.Close()
	}
	achieved := on
	if err != nil {
		s.log.Debug("modbussensor: power transition failed", zap.String("endpoint", r.cfg.Endpoint), zap.Bool("on", on), zap.Error(err))
		achieved = !on
	}
	s.mgr.SignalInternalEvt(r.handle, manager.EventPowerStateChanged, boolToInt64(achieved), 0)
}

func (s *Sink) handleFirmwareUpload(r *remote) {
	_, err := r.client.ReadHoldingRegisters(r.cfg.Register, 1)
	if err != nil {
		s.log.Debug("modbussensor: connectivity probe failed", zap.String("endpoint", r.cfg.Endpoint), zap.Error(err))
		s.mgr.SignalInternalEvt(r.handle, manager.EventFirmwareStateChanged, 0, 0)
		return
	}
	s.mgr.SignalInternalEvt(r.handle, manager.EventFirmwareStateChanged, int64(r.cfg.BaseRate), int64(domain.LatencyInvalid))
}

func (s *Sink) handleSetRate(r *remote, payload any) {
	p, ok := payload.(dispatch.SetRatePayload)
	if !ok {
		return
	}
	// The remote unit has no notion of sample rate beyond "poll me on
	// whatever schedule you like"; report back exactly what was asked.
	s.mgr.SignalInternalEvt(r.handle, manager.EventRateChanged, int64(p.Rate), int64(p.Latency))
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
