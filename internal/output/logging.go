package output

import (
	"io"
	"log/slog"
	"math"
)

type loggerConfig struct {
	json bool
}

type LoggerOption func(*loggerConfig)

// WithJSON emits JSON records instead of text. The HTTP host uses it.
func WithJSON() LoggerOption {
	return func(c *loggerConfig) { c.json = true }
}

// LevelFor maps CLI verbosity flags to a level. quiet wins over debug,
// which wins over verbose; the default is Warn.
func LevelFor(quiet, verbose, debug bool) slog.Level {
	switch {
	case quiet:
		return slog.Level(math.MaxInt)
	case debug:
		return slog.LevelDebug
	case verbose:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// SetupLogger creates a slog.Logger writing to w (typically os.Stderr).
func SetupLogger(quiet, verbose, debug bool, w io.Writer, opts ...LoggerOption) *slog.Logger {
	var cfg loggerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ho := &slog.HandlerOptions{Level: LevelFor(quiet, verbose, debug)}
	if cfg.json {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}
