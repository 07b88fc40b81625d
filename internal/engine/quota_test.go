package engine

import "testing"

func TestQuotaStateAccounting(t *testing.T) {
	q := NewQuotaState()

	calls, units := q.Snapshot()
	if calls != 0 || units != 0 {
		t.Fatalf("fresh state: calls/units = %d/%d, want 0/0", calls, units)
	}

	q.RecordCall(1)
	q.RecordCall(100)
	calls, units = q.Snapshot()
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if units != 101 {
		t.Errorf("units = %d, want 101", units)
	}
}

func TestQuotaStateReachedIsMonotonic(t *testing.T) {
	q := NewQuotaState()
	if q.Reached() {
		t.Fatal("fresh state should not be reached")
	}
	if !q.MarkReached() {
		t.Error("first MarkReached should report the transition")
	}
	if q.MarkReached() {
		t.Error("second MarkReached should report no transition")
	}
	if !q.Reached() {
		t.Error("state should stay reached")
	}
}
