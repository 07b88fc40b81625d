package engine

import (
	"log/slog"
	"sync/atomic"
)

// QuotaState tracks remote API usage for the whole process. The reached
// flag is monotonic: the remote quota window is managed externally and not
// observable, so once exhaustion is seen every later request fails fast
// until restart.
type QuotaState struct {
	calls   atomic.Int64
	units   atomic.Int64
	reached atomic.Bool
}

// NewQuotaState returns a fresh quota tracker. One instance is shared by
// every component of a service; tests inject their own.
func NewQuotaState() *QuotaState {
	return &QuotaState{}
}

// RecordCall counts one successful remote call and its declared unit cost.
// Failed calls are not charged.
func (q *QuotaState) RecordCall(units int64) {
	q.calls.Add(1)
	q.units.Add(units)
}

// Snapshot returns the current call and unit counters.
func (q *QuotaState) Snapshot() (calls, units int64) {
	return q.calls.Load(), q.units.Load()
}

// MarkReached closes the quota gate. Returns true on the first transition.
func (q *QuotaState) MarkReached() bool {
	first := q.reached.CompareAndSwap(false, true)
	if first {
		slog.Error("quota: remote quota exhausted, gate closed until restart",
			slog.Int64("calls", q.calls.Load()),
			slog.Int64("units", q.units.Load()))
	}
	return first
}

// Reached reports whether quota exhaustion has ever been observed.
func (q *QuotaState) Reached() bool {
	return q.reached.Load()
}
