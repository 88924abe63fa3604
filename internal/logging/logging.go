package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger. The fallback level applies when
// LOG_LEVEL is unset; the chat TUI runs with errors only so log lines do not
// tear the alternate screen, while the relay runs at info.
func Init(fallback slog.Level) {
	level := fallback

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
