package output

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"testing"
)

func TestSetupLogger_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(false, false, false, &buf)

	logger.Info("info message")
	if bytes.Contains(buf.Bytes(), []byte("info message")) {
		t.Error("expected Info message to be suppressed at default level (Warn), but it appeared in output")
	}

	buf.Reset()
	logger.Warn("warn message")
	if !bytes.Contains(buf.Bytes(), []byte("warn message")) {
		t.Error("expected Warn message to appear at default level, but it was suppressed")
	}
}

func TestSetupLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(true, false, false, &buf)

	logger.Warn("warn message")
	if bytes.Contains(buf.Bytes(), []byte("warn message")) {
		t.Error("expected Warn message to be suppressed in quiet mode, but it appeared in output")
	}

	buf.Reset()
	logger.Error("error message")
	if bytes.Contains(buf.Bytes(), []byte("error message")) {
		t.Error("expected Error message to be suppressed in quiet mode, but it appeared in output")
	}
}

func TestSetupLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(false, true, false, &buf)

	logger.Info("info message")
	if !bytes.Contains(buf.Bytes(), []byte("info message")) {
		t.Error("expected Info message to appear in verbose mode, but it was suppressed")
	}
}

func TestSetupLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(false, false, true, &buf)

	logger.Debug("debug message")
	if !bytes.Contains(buf.Bytes(), []byte("debug message")) {
		t.Error("expected Debug message to appear in debug mode, but it was suppressed")
	}
}

func TestSetupLogger_QuietOverridesDebug(t *testing.T) {
	var buf bytes.Buffer
	// quiet takes priority over debug
	logger := SetupLogger(true, false, true, &buf)

	logger.Error("error message")
	if bytes.Contains(buf.Bytes(), []byte("error message")) {
		t.Error("expected quiet to override debug, but Error message appeared in output")
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(false, false, false, &buf, WithJSON())

	logger.Warn("warn message", "handler", 7)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "warn message" || rec["handler"] != float64(7) {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name                  string
		quiet, verbose, debug bool
		want                  slog.Level
	}{
		{"default", false, false, false, slog.LevelWarn},
		{"verbose", false, true, false, slog.LevelInfo},
		{"debug beats verbose", false, true, true, slog.LevelDebug},
		{"quiet beats all", true, true, true, slog.Level(math.MaxInt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFor(tt.quiet, tt.verbose, tt.debug); got != tt.want {
				t.Errorf("LevelFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
