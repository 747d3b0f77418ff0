// Package aggregate computes the single hardware rate and latency that
// satisfy every live client request against a sensor, ported line for
// line from the original firmware's sensorCalcHwRate and
// sensorCalcHwLatency.
package aggregate

import (
	"sensorhub/internal/domain"
	"sensorhub/internal/requests"
	"sensorhub/x/mathx"
)

// CalcHwRate returns the minimum rate, drawn from supportedRates, that is
// at least as fast as every live numeric request in reqs. extraRate is a
// hypothetical additional request folded in before scanning reqs — used
// to validate a new subscription before it is recorded. removedRate, if
// nonzero, causes the first matching live request in reqs to be ignored
// once, so a client's old contribution does not double-count while its
// request is being amended.
//
// ONDEMAND and ONCHANGE requests never force a periodic rate by
// themselves: if no ordinary rate is requested, the result is OFF when
// there is no live (or extra) request at all, ONCHANGE when any of them
// is ONCHANGE, and ONDEMAND otherwise. If no rate in supportedRates is high
// enough to satisfy the strictest ordinary request, the result is
// RateImpossible.
func CalcHwRate(supportedRates []domain.Rate, reqs []requests.Entry, extraRate, removedRate domain.Rate) domain.Rate {
	haveUsers := extraRate != domain.RateOff
	haveOnChange := extraRate == domain.RateOnChange

	var highest domain.Rate
	if extraRate != domain.RateOff && extraRate != domain.RateOnDemand && extraRate != domain.RateOnChange {
		highest = extraRate
	}

	removed := false
	for _, req := range reqs {
		if !removed && removedRate != domain.RateOff && req.Rate == removedRate {
			removed = true
			continue
		}
		haveUsers = true
		switch req.Rate {
		case domain.RateOnDemand:
			continue
		case domain.RateOnChange:
			haveOnChange = true
			continue
		}
		if req.Rate > highest {
			highest = req.Rate
		}
	}

	if highest == domain.RateOff {
		switch {
		case !haveUsers:
			return domain.RateOff
		case haveOnChange:
			return domain.RateOnChange
		default:
			return domain.RateOnDemand
		}
	}

	for _, r := range supportedRates {
		if r >= highest {
			return r
		}
	}
	return domain.RateImpossible
}

// CalcHwLatency returns the strictest (minimum) latency across every live
// request in reqs, or domain.LatencyInvalid if reqs is empty.
func CalcHwLatency(reqs []requests.Entry) domain.Latency {
	min := domain.LatencyInvalid
	for _, req := range reqs {
		min = mathx.Min(min, req.Latency)
	}
	return min
}
