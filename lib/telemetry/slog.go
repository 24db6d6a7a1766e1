package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the default text handler for every binary and test
// in the repository. debug=true turns on request-level logging.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
