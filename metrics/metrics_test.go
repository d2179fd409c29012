package metrics

import (
	"testing"
	"time"
)

func TestObserveRequestCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("clash", true, 10*time.Millisecond)
	m.ObserveRequest("clash", false, 5*time.Millisecond)

	total, success, failed := m.Snapshot()
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if success != 1 {
		t.Errorf("success = %d, want 1", success)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestSnapshotIndependentOfFurtherObservations(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("surge", true, time.Millisecond)
	total1, _, _ := m.Snapshot()
	m.ObserveRequest("surge", true, time.Millisecond)
	total2, _, _ := m.Snapshot()

	if total2 != total1+1 {
		t.Errorf("second snapshot total = %d, want %d", total2, total1+1)
	}
}

func TestRequestsPerSecondNonNegative(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("clash", true, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if rps := m.RequestsPerSecond(); rps < 0 {
		t.Errorf("RequestsPerSecond = %f, want >= 0", rps)
	}
}

func TestObserveNodesParsedIgnoresNonPositive(t *testing.T) {
	// Must not panic on zero or negative input.
	ObserveNodesParsed(0)
	ObserveNodesParsed(-1)
	ObserveNodesParsed(3)
}

func TestObserveRulesEmittedIgnoresNonPositive(t *testing.T) {
	ObserveRulesEmitted(0)
	ObserveRulesEmitted(-5)
	ObserveRulesEmitted(2)
}

func TestObserveCacheHitAndMiss(t *testing.T) {
	// Must not panic either way; Prometheus counters aren't readable
	// without scraping the registry, so this only exercises the code path.
	ObserveCache(true)
	ObserveCache(false)
}
