package errcode

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"

	// CapacityExhausted means a bounded pool (the registry, the request
	// table, an internal event pool) had no free slot.
	CapacityExhausted Code = "capacity_exhausted"
	// UnknownHandle means the handle named in the call does not refer to
	// a currently-registered sensor.
	UnknownHandle Code = "unknown_handle"
	// UnknownClient means the (clientId, handle) pair named in the call
	// has no live request.
	UnknownClient Code = "unknown_client"
	// Infeasible means no rate in the sensor's supported list satisfies
	// every live request once the one in question is folded in —
	// domain.RateImpossible, surfaced as a log-facing code.
	Infeasible Code = "infeasible"
	// DriverRefused means the Ops implementation or TaskSink declined an
	// operation the state machine asked it to perform.
	DriverRefused Code = "driver_refused"

	Timeout Code = "timeout"
	Error   Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Extend the heuristics per platform/driver.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	return Error
}
