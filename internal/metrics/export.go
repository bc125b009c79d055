package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Exporter handles exporting metrics to various formats
type Exporter struct {
	collector *Collector
}

// NewExporter creates a new metrics exporter
func NewExporter(collector *Collector) *Exporter {
	return &Exporter{collector: collector}
}

// ExportJSON writes stats and recent events to a JSON file
func (e *Exporter) ExportJSON(path string) error {
	report := struct {
		GeneratedAt time.Time      `json:"generated_at"`
		Stats       AggregateStats `json:"stats"`
		Events      []HandlerEvent `json:"events"`
	}{
		GeneratedAt: time.Now(),
		Stats:       e.collector.GetStats(),
		Events:      e.collector.GetRecentEvents(1000),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// WriteReport writes a human-readable report to the given writer
func (e *Exporter) WriteReport(w io.Writer) error {
	stats := e.collector.GetStats()

	fmt.Fprintf(w, "wikifix Handler Metrics Report\n")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "Window: %s to %s\n\n",
		stats.WindowStart.Format(time.RFC3339),
		stats.WindowEnd.Format(time.RFC3339))

	fmt.Fprintf(w, "=== Summary ===\n")
	fmt.Fprintf(w, "Handler runs:  %d\n", stats.TotalRuns)
	fmt.Fprintf(w, "Applied:       %d (%.1f%%)\n", stats.TotalApplied, stats.ApplyRate*100)
	fmt.Fprintf(w, "Failed:        %d\n\n", stats.TotalFailed)

	if len(stats.ByStatus) > 0 {
		fmt.Fprintf(w, "=== By Status ===\n")
		statuses := make([]string, 0, len(stats.ByStatus))
		for s := range stats.ByStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "%-20s %d\n", s, stats.ByStatus[s])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "=== Latency ===\n")
	fmt.Fprintf(w, "Average:  %.2fms\n", stats.AvgDurationMs)
	fmt.Fprintf(w, "P50:      %.2fms\n", stats.P50DurationMs)
	fmt.Fprintf(w, "P95:      %.2fms\n", stats.P95DurationMs)
	fmt.Fprintf(w, "P99:      %.2fms\n", stats.P99DurationMs)
	fmt.Fprintf(w, "Max:      %.2fms\n\n", stats.MaxDurationMs)

	if len(stats.ByHandler) > 0 {
		fmt.Fprintf(w, "=== By Handler ===\n")
		ids := make([]int, 0, len(stats.ByHandler))
		for k := range stats.ByHandler {
			id, _ := strconv.Atoi(k)
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			hs := stats.ByHandler[strconv.Itoa(id)]
			fmt.Fprintf(w, "%4d: runs %d, applied %d, failed %d, avg %.2fms\n",
				id, hs.Count, hs.Applied, hs.Failed, hs.AvgDurationMs)
		}
	}

	return nil
}

// WriteCSV writes events in CSV format for external analysis
func (e *Exporter) WriteCSV(w io.Writer) error {
	events := e.collector.GetRecentEvents(e.collector.maxEvents)

	fmt.Fprintf(w, "id,timestamp,handler,page,status,duration_ms\n")
	for _, ev := range events {
		fmt.Fprintf(w, "%s,%s,%d,%s,%s,%.3f\n",
			ev.ID,
			ev.Timestamp.Format(time.RFC3339),
			ev.Handler,
			escapeCSV(ev.Page),
			ev.Status,
			float64(ev.Duration)/float64(time.Millisecond),
		)
	}
	return nil
}

func escapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
