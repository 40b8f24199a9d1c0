package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the default logger. LOG_LEVEL picks the level and LOG_FILE,
// when set, redirects output away from the terminal the chat UI draws on.
func Init() {
	var w io.Writer = os.Stderr
	if path, ok := os.LookupEnv("LOG_FILE"); ok && path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = f
		}
	}

	level, _ := os.LookupEnv("LOG_LEVEL")
	slog.SetDefault(New(w, ParseLevel(level)))
}

// New returns a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps LOG_LEVEL values onto slog levels; production only shows
// errors.
func ParseLevel(l string) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}
