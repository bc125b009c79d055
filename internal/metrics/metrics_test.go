package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func event(handler int, status string, d time.Duration) HandlerEvent {
	return HandlerEvent{
		ID:        "e",
		Timestamp: time.Now(),
		Handler:   handler,
		Status:    status,
		Duration:  d,
	}
}

func TestCollector_GetStats(t *testing.T) {
	c := NewCollector()
	c.Record(event(7, StatusApplied, 10*time.Millisecond))
	c.Record(event(7, "skipped-no-op", 20*time.Millisecond))
	c.Record(event(81, StatusFailed, 30*time.Millisecond))
	c.Record(event(81, StatusApplied, 40*time.Millisecond))

	stats := c.GetStats()
	if stats.TotalRuns != 4 {
		t.Errorf("expected 4 runs, got %d", stats.TotalRuns)
	}
	if stats.TotalApplied != 2 || stats.TotalFailed != 1 {
		t.Errorf("expected 2 applied and 1 failed, got %d and %d", stats.TotalApplied, stats.TotalFailed)
	}
	if stats.ByStatus["skipped-no-op"] != 1 {
		t.Errorf("expected 1 no-op, got %v", stats.ByStatus)
	}
	if stats.ApplyRate != 0.5 {
		t.Errorf("expected apply rate 0.5, got %f", stats.ApplyRate)
	}
	if stats.AvgDurationMs != 25 {
		t.Errorf("expected avg 25ms, got %f", stats.AvgDurationMs)
	}
	if stats.MaxDurationMs != 40 {
		t.Errorf("expected max 40ms, got %f", stats.MaxDurationMs)
	}
	if stats.P50DurationMs != 20 {
		t.Errorf("expected p50 20ms, got %f", stats.P50DurationMs)
	}

	h := stats.ByHandler["81"]
	if h == nil {
		t.Fatal("expected stats for handler 81")
	}
	if h.Count != 2 || h.Applied != 1 || h.Failed != 1 || h.AvgDurationMs != 35 {
		t.Errorf("unexpected handler stats: %+v", h)
	}
}

func TestCollector_Empty(t *testing.T) {
	stats := NewCollector().GetStats()
	if stats.TotalRuns != 0 || stats.MaxDurationMs != 0 || len(stats.ByHandler) != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestCollector_Pruning(t *testing.T) {
	c := NewCollector(WithMaxEvents(10))
	for i := 0; i < 25; i++ {
		c.Record(event(i, StatusApplied, time.Millisecond))
	}
	if n := len(c.GetRecentEvents(100)); n > 10 {
		t.Errorf("expected at most 10 events retained, got %d", n)
	}
	if c.GetStats().TotalRuns != 25 {
		t.Error("counters should survive pruning")
	}
	recent := c.GetRecentEvents(1)
	if len(recent) != 1 || recent[0].Handler != 24 {
		t.Errorf("expected most recent event for handler 24, got %+v", recent)
	}
}

func TestCollector_WindowExcludesOldEvents(t *testing.T) {
	c := NewCollector(WithWindowSize(time.Minute))
	old := event(1, StatusApplied, 100*time.Millisecond)
	old.Timestamp = time.Now().Add(-time.Hour)
	c.Record(old)
	c.Record(event(2, StatusApplied, 10*time.Millisecond))

	stats := c.GetStats()
	if stats.TotalRuns != 2 {
		t.Errorf("expected 2 runs counted, got %d", stats.TotalRuns)
	}
	if stats.MaxDurationMs != 10 {
		t.Errorf("expected old event outside window, got max %f", stats.MaxDurationMs)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.Record(event(1, StatusApplied, time.Millisecond))
	c.Reset()
	stats := c.GetStats()
	if stats.TotalRuns != 0 || len(stats.ByStatus) != 0 {
		t.Errorf("expected reset stats, got %+v", stats)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Record(event(g, StatusApplied, time.Millisecond))
				_ = c.GetStats()
			}
		}(g)
	}
	wg.Wait()
	if got := c.GetStats().TotalRuns; got != 800 {
		t.Errorf("expected 800 runs, got %d", got)
	}
}

func TestRecorder_RecordHandler(t *testing.T) {
	c := NewCollector()
	r := NewRecorder(c).ForPage("Example")
	r.RecordHandler(7, StatusApplied, 5*time.Millisecond)

	events := c.GetRecentEvents(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Handler != 7 || e.Page != "Example" || e.Status != StatusApplied || e.ID == "" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestNoOpRecorder(t *testing.T) {
	r := NoOpRecorder()
	r.RecordHandler(1, StatusApplied, time.Millisecond)
	if n := len(r.Collector().GetRecentEvents(10)); n != 0 {
		t.Errorf("expected no retained events, got %d", n)
	}
	if r.Collector().GetStats().TotalRuns != 1 {
		t.Error("expected the run to be counted")
	}
}

func TestExporter_ExportJSON(t *testing.T) {
	c := NewCollector()
	c.Record(event(7, StatusApplied, time.Millisecond))

	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	if err := NewExporter(c).ExportJSON(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var report struct {
		Stats  AggregateStats `json:"stats"`
		Events []HandlerEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.Stats.TotalRuns != 1 || len(report.Events) != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestExporter_WriteReport(t *testing.T) {
	c := NewCollector()
	c.Record(event(81, StatusApplied, time.Millisecond))
	c.Record(event(7, "skipped-no-op", time.Millisecond))

	var buf bytes.Buffer
	if err := NewExporter(c).WriteReport(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Handler runs:  2", "skipped-no-op", "   7: runs 1", "  81: runs 1, applied 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "   7:") > strings.Index(out, "  81:") {
		t.Error("handlers should be listed in id order")
	}
}

func TestExporter_WriteCSV(t *testing.T) {
	c := NewCollector()
	e := event(7, StatusApplied, 1500*time.Microsecond)
	e.Page = `Smith, "John"`
	c.Record(e)

	var buf bytes.Buffer
	if err := NewExporter(c).WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], `,7,"Smith, ""John""",applied,1.500`) {
		t.Errorf("unexpected row: %s", lines[1])
	}
}
