package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger tagged with the emitting component.
func New(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})
	return slog.New(handler).With("component", component)
}

func levelFromEnv() slog.Level {
	switch os.Getenv("IPVRETURN_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
