// Package domain holds the value types shared by every layer of the
// sensor manager: registry, dispatch, request table, aggregator and state
// machine all speak in terms of Handle, Rate and Latency rather than
// knowing about each other's internals.
package domain

import "math"

// Handle identifies a registered sensor. The zero value never refers to a
// live sensor; a freshly-minted handle is always nonzero.
type Handle uint32

// Rate is either a hardware sample rate or one of the reserved
// pseudo-rates below. RatePoweringOn, RatePoweringOff, RateFWUploading
// and RateImpossible are manager-internal and must never be passed to a
// driver operation as a rate argument.
type Rate int64

// sentinelBase sits comfortably above any rate a real sensor would ever
// report, so ordinary comparisons (targetRate > RateOff, rate >= highest
// in the supported-rate scan) keep working without special-casing the
// sentinels.
const sentinelBase Rate = 1 << 30

const (
	// RateOff means no client holds a live request against the sensor.
	RateOff Rate = 0

	// RateOnDemand means at least one client wants only trigger-driven
	// samples; no periodic rate is required.
	RateOnDemand Rate = sentinelBase + iota

	// RateOnChange means at least one client wants samples only when the
	// value changes; no periodic rate is required either.
	RateOnChange

	// RatePoweringOn marks a sensor with a power-on request in flight.
	RatePoweringOn

	// RatePoweringOff marks a sensor with a power-off request in flight.
	RatePoweringOff

	// RateFWUploading marks a sensor whose firmware upload has not yet
	// completed.
	RateFWUploading

	// RateImpossible is returned by the aggregator when no supported rate
	// satisfies every live request; it is never written into a sensor
	// record.
	RateImpossible
)

// Latency is the maximum acceptable batching delay. LatencyInvalid means
// "no live client has expressed a latency preference".
type Latency int64

// LatencyInvalid is the sentinel for "not meaningful", matching the
// original firmware's use of the largest representable value so that a
// min-reduction over zero requests naturally yields it.
const LatencyInvalid Latency = math.MaxInt64

// SensorType tags what kind of sensor a driver implements.
type SensorType int

// Info is the immutable descriptor a driver supplies at registration
// time.
type Info struct {
	Type SensorType
	Name string
	// SupportedRates must be strictly ascending. An empty list means the
	// sensor can never satisfy an ordinary periodic rate, only ONDEMAND
	// or ONCHANGE requests.
	SupportedRates []Rate
}
