// Package statemachine implements the per-sensor power/firmware/rate
// transition logic: Reconcile decides the single next driver call (if
// any) to close the gap between a sensor's current and target state, and
// the three completion handlers apply an asynchronous driver event back
// onto that state. Ported from the original firmware's sensorReconfig
// and its three sensorInternal*Changed handlers.
package statemachine

import (
	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/registry"

	"go.uber.org/zap"
)

// Reconcile compares rec's current (Rate, Latency) to the target computed
// by the aggregator and issues at most one driver operation to make
// progress toward it. It is the only place a sensor's Rate/Latency fields
// are mutated outside the completion handlers below.
func Reconcile(d *dispatch.Dispatcher, rec *registry.Record, targetRate domain.Rate, targetLatency domain.Latency, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	switch {
	case rec.Rate == targetRate && rec.Latency == targetLatency:
		// Already there; nothing to do.

	case rec.Rate == domain.RateOff:
		if targetRate == domain.RateOff {
			return
		}
		if d.Power(rec.Call, true) {
			rec.Rate = domain.RatePoweringOn
			rec.Latency = domain.LatencyInvalid
		} else {
			log.Debug("reconcile: power-on refused", zap.Uint32("handle", uint32(rec.Handle)))
		}

	case rec.Rate == domain.RatePoweringOff:
		// A new target arrived while powering off. Flip straight back to
		// PoweringOn without reissuing Power(true): the outstanding
		// power-off completion, once delivered, sees PoweringOn and
		// re-issues Power(true) itself (see PowerStateChanged).
		if targetRate != domain.RateOff {
			rec.Rate = domain.RatePoweringOn
			rec.Latency = domain.LatencyInvalid
		}

	case rec.Rate == domain.RatePoweringOn, rec.Rate == domain.RateFWUploading:
		// A transition is already in flight; the next Reconcile after it
		// completes will pick up any further target change.

	case targetRate != domain.RateOff:
		if !d.SetRate(rec.Call, targetRate, targetLatency) {
			log.Debug("reconcile: set-rate refused, will retry on next reconcile", zap.Uint32("handle", uint32(rec.Handle)))
		}

	default:
		if d.Power(rec.Call, false) {
			rec.Rate = domain.RatePoweringOff
			rec.Latency = domain.LatencyInvalid
		} else {
			log.Debug("reconcile: power-off refused", zap.Uint32("handle", uint32(rec.Handle)))
		}
	}
}

// PowerStateChanged applies a driver-reported power transition. on is
// true for "now powered on", false for "now powered off".
func PowerStateChanged(d *dispatch.Dispatcher, rec *registry.Record, on bool) {
	switch {
	case rec.Rate == domain.RatePoweringOn && on:
		rec.Rate = domain.RateFWUploading
		rec.Latency = domain.LatencyInvalid
		d.FirmwareUpload(rec.Call)

	case rec.Rate == domain.RatePoweringOff && !on:
		rec.Rate = domain.RateOff
		rec.Latency = domain.LatencyInvalid

	case rec.Rate == domain.RatePoweringOn && !on:
		// The driver reported power-off while we still wanted it on
		// (Reconcile flipped the target back before this event arrived) —
		// reissue the power-on request.
		d.Power(rec.Call, true)

	case rec.Rate == domain.RatePoweringOff && on:
		// Symmetric case: reissue the power-off request.
		d.Power(rec.Call, false)

	default:
		// Late or duplicate event for a sensor no longer in a powering
		// transition; ignore.
	}
}

// FirmwareStateChanged applies a driver-reported firmware upload result.
// ok is false on failure. rate/latency are the values to adopt on
// success. reconcile is invoked after a successful upload so any target
// change requested mid-upload is picked up immediately.
func FirmwareStateChanged(d *dispatch.Dispatcher, rec *registry.Record, ok bool, rate domain.Rate, latency domain.Latency, reconcile func()) {
	switch {
	case !ok:
		rec.Rate = domain.RatePoweringOff
		rec.Latency = domain.LatencyInvalid
		d.Power(rec.Call, false)

	case rec.Rate == domain.RateFWUploading:
		rec.Rate = rate
		rec.Latency = latency
		if reconcile != nil {
			reconcile()
		}

	case rec.Rate == domain.RatePoweringOff:
		// The target was dropped to OFF mid-upload; finish powering off
		// now that the upload (which we can no longer cancel) has
		// reported success.
		d.Power(rec.Call, false)

	default:
		// Late or duplicate event; ignore.
	}
}

// RateChanged unconditionally applies a driver-reported rate/latency —
// the driver is the authority on what rate it actually settled at, which
// may differ from what was requested.
func RateChanged(rec *registry.Record, rate domain.Rate, latency domain.Latency) {
	rec.Rate = rate
	rec.Latency = latency
}
