// Package requests is the bounded table of live client subscriptions
// against sensors, keyed by (sensor handle, client id) — the Go
// equivalent of the original firmware's client-request matrix.
package requests

import (
	"sensorhub/internal/domain"
	"sensorhub/internal/pool"
)

// Entry is one live request record.
type Entry struct {
	Handle   domain.Handle
	ClientID uint32
	Rate     domain.Rate
	Latency  domain.Latency
}

// Table is the pool of all live requests across every sensor.
type Table struct {
	pool *pool.Pool[Entry]
}

// New creates a Table with room for capacity simultaneous requests.
func New(capacity int) *Table {
	return &Table{pool: pool.New[Entry](capacity)}
}

// Add allocates a new request record. A duplicate (handle, clientID) pair
// is not rejected or merged here: Add always appends a second record
// rather than amending the first, matching the original firmware's
// sensorAddRequestor, which never checks for an existing entry before
// adding one. Callers that want amend semantics call Amend instead.
func (t *Table) Add(handle domain.Handle, clientID uint32, rate domain.Rate, latency domain.Latency) bool {
	_, slot, ok := t.pool.Acquire()
	if !ok {
		return false
	}
	slot.Handle = handle
	slot.ClientID = clientID
	slot.Rate = rate
	slot.Latency = latency
	return true
}

// Get returns the first record matching (handle, clientID).
func (t *Table) Get(handle domain.Handle, clientID uint32) (domain.Rate, domain.Latency, bool) {
	var rate domain.Rate
	var latency domain.Latency
	found := false
	t.pool.Each(func(_ int, e *Entry) {
		if found || e.Handle != handle || e.ClientID != clientID {
			return
		}
		rate, latency, found = e.Rate, e.Latency, true
	})
	return rate, latency, found
}

// Amend updates the first record matching (handle, clientID) in place.
// It reports false if no such record exists.
func (t *Table) Amend(handle domain.Handle, clientID uint32, rate domain.Rate, latency domain.Latency) bool {
	ok := false
	t.pool.Each(func(_ int, e *Entry) {
		if ok || e.Handle != handle || e.ClientID != clientID {
			return
		}
		e.Rate, e.Latency = rate, latency
		ok = true
	})
	return ok
}

// Delete removes the first record matching (handle, clientID), writing
// the neutral values RateOff/LatencyInvalid into it before returning its
// slot to the pool. It reports false if no such record exists.
func (t *Table) Delete(handle domain.Handle, clientID uint32) bool {
	idx := -1
	t.pool.Each(func(i int, e *Entry) {
		if idx >= 0 || e.Handle != handle || e.ClientID != clientID {
			return
		}
		idx = i
	})
	if idx < 0 {
		return false
	}
	if e := t.pool.At(idx); e != nil {
		e.Rate, e.Latency = domain.RateOff, domain.LatencyInvalid
	}
	t.pool.Release(idx)
	return true
}

// ForSensor returns a snapshot of every live record referencing handle.
func (t *Table) ForSensor(handle domain.Handle) []Entry {
	var out []Entry
	t.pool.Each(func(_ int, e *Entry) {
		if e.Handle == handle {
			out = append(out, *e)
		}
	})
	return out
}

// HasRequestor reports whether clientID holds a live request against
// handle.
func (t *Table) HasRequestor(handle domain.Handle, clientID uint32) bool {
	_, _, ok := t.Get(handle, clientID)
	return ok
}

// DeleteAllForClient removes every live request belonging to clientID,
// returning the set of sensor handles that lost a requestor so the
// caller can reconcile each one exactly once.
func (t *Table) DeleteAllForClient(clientID uint32) []domain.Handle {
	seen := map[domain.Handle]bool{}
	var affected []domain.Handle
	for {
		idx := -1
		var handle domain.Handle
		t.pool.Each(func(i int, e *Entry) {
			if idx >= 0 || e.ClientID != clientID {
				return
			}
			idx, handle = i, e.Handle
		})
		if idx < 0 {
			break
		}
		t.pool.Release(idx)
		if !seen[handle] {
			seen[handle] = true
			affected = append(affected, handle)
		}
	}
	return affected
}
