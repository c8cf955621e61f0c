package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a config string to a slog level. Unknown values fall back
// to info so a typo in config loosens logging instead of silencing it.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds a slog handler writing to w. format "json" selects the
// JSON handler (machine readable, for production); anything else selects the
// text handler. At debug level the handler also records source positions.
//
// Split out from SetupLogger so tests can capture output in a buffer.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs the configured handler as the slog default. The rest
// of the codebase then logs through plain slog.Info and friends without
// carrying a *slog.Logger around.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, format, level)))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
