// Package envsensor adapts drivers/aht20, an in-process I2C temperature
// and humidity sensor, to dispatch.Ops. Every hardware access here is
// synchronous, so completion is reported back to the manager before the
// Ops method that triggered it even returns — there is no real
// asynchrony, but the manager's state machine still requires the event
// to arrive through SignalInternalEvt rather than a return value, so
// that a future out-of-process envsensor variant could slot in behind
// the same interface without the manager noticing the difference.
package envsensor

import (
	"sensorhub/drivers/aht20"
	"sensorhub/internal/domain"
	"sensorhub/internal/manager"

	"go.uber.org/zap"
	"tinygo.org/x/drivers"
)

// Adaptor wraps one aht20.Device as a sensor manager driver.
type Adaptor struct {
	dev      aht20.Device
	mgr      *manager.Manager
	handle   domain.Handle
	baseRate domain.Rate
	log      *zap.Logger
}

// New builds an Adaptor over an already-configured I2C bus. baseRate is
// the rate the driver reports itself settled at immediately after
// power-on, before the manager's first real reconcile bumps it to
// whatever rate the live requests actually call for — ordinarily a
// sensor's slowest supported rate.
func New(bus drivers.I2C, baseRate domain.Rate, mgr *manager.Manager, log *zap.Logger) *Adaptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adaptor{
		dev:      aht20.New(bus),
		mgr:      mgr,
		baseRate: baseRate,
		log:      log,
	}
}

// Bind records the handle the registry minted for this driver, so the
// adaptor knows which sensor to name in its completion events. It must
// be called once, right after Register, before any Ops method runs.
func (a *Adaptor) Bind(handle domain.Handle) {
	a.handle = handle
}

// Power brings the AHT20 out of (or, on the way down, leaves it in) its
// default idle state. The AHT20 has no real power rail to switch, so
// this amounts to (re-)initialising the device on the way up and is a
// no-op on the way down.
func (a *Adaptor) Power(on bool) bool {
	if on {
		a.dev.Configure()
	}
	ok := a.mgr.SignalInternalEvt(a.handle, manager.EventPowerStateChanged, boolToInt64(on), 0)
	if !ok {
		a.log.Debug("envsensor: power completion dropped, internal event pool exhausted")
	}
	return true
}

// FirmwareUpload reports immediate synthetic success: the AHT20 has no
// field-upgradable firmware, so there is nothing to upload, but every
// sensor still passes through FW_UPLOADING on its way to an active
// rate, and the manager's reconcile loop will promptly raise baseRate
// to whatever rate the live requests actually call for.
func (a *Adaptor) FirmwareUpload() bool {
	ok := a.mgr.SignalInternalEvt(a.handle, manager.EventFirmwareStateChanged, int64(a.baseRate), int64(domain.LatencyInvalid))
	if !ok {
		a.log.Debug("envsensor: firmware completion dropped, internal event pool exhausted")
	}
	return true
}

// SetRate has nothing to negotiate with the hardware — the AHT20 is
// polled by TriggerOndemand, not sampled on its own clock — so it
// reports back exactly the rate and latency it was asked for.
func (a *Adaptor) SetRate(rate domain.Rate, latency domain.Latency) bool {
	ok := a.mgr.SignalInternalEvt(a.handle, manager.EventRateChanged, int64(rate), int64(latency))
	if !ok {
		a.log.Debug("envsensor: rate completion dropped, internal event pool exhausted")
	}
	return true
}

// Flush has no buffered samples to drain; it always succeeds.
func (a *Adaptor) Flush() bool { return true }

// TriggerOndemand performs one bounded trigger-and-collect cycle. A
// failed or not-yet-ready read reports false; the caller is free to
// retry.
func (a *Adaptor) TriggerOndemand() bool {
	if err := a.dev.Read(); err != nil {
		a.log.Debug("envsensor: on-demand read failed", zap.Error(err))
		return false
	}
	return true
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
