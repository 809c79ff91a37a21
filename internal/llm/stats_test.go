package llm

import (
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record("gpt-4o", ms, false)
	}

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestStatsFailuresExcludedFromLatency(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record("gpt-4o", 100, false)
	stats.Record("gpt-4o", 9000, true)

	snap := stats.Snapshot()
	if snap.Count != 1 || snap.Failures != 1 {
		t.Fatalf("expected count=1 failures=1, got count=%d failures=%d", snap.Count, snap.Failures)
	}
	if snap.MaxMs != 100 {
		t.Fatalf("failed attempt leaked into latency: max=%d", snap.MaxMs)
	}
}

func TestStatsByModel(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record("gpt-4o", 100, false)
	stats.Record("gpt-4o", 300, false)
	stats.Record("gpt-4o-mini", 50, true)

	by := stats.ByModel()
	if len(by) != 2 {
		t.Fatalf("expected 2 models, got %d", len(by))
	}
	if by["gpt-4o"].AvgMs != 200 {
		t.Errorf("gpt-4o avg = %f, want 200", by["gpt-4o"].AvgMs)
	}
	if by["gpt-4o-mini"].Failures != 1 || by["gpt-4o-mini"].Count != 0 {
		t.Errorf("gpt-4o-mini = %+v", by["gpt-4o-mini"])
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record("m", 100, false)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}

	stats.Record("m", 200, false)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinMs != 200 {
		t.Fatalf("expected one fresh sample of 200ms, got %+v", snap)
	}
}

func TestStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record("m", -10, false)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinMs != 0 {
		t.Fatalf("expected clamped duration=0, got %+v", snap)
	}
}

func TestStatsNilReceiverRecord(t *testing.T) {
	var stats *Stats
	stats.Record("m", 1, false)
}
