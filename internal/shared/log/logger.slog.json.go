package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joshuarp/hotconfig/internal/shared/config"
)

// NewJSONLogger builds the process logger from logging.level and
// logging.add_source.
func NewJSONLogger(cfg config.ConfigProvider) *slog.Logger {
	return New(os.Stdout, cfg.GetString("logging.level"), cfg.GetBool("logging.add_source"))
}

// New returns a JSON logger writing to w with UTC RFC3339 timestamps.
func New(w io.Writer, level string, addSource bool) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, attr.Value.Time().UTC().Format(time.RFC3339))
			}
			return attr
		},
	})

	return slog.New(handler).With("service", "hotconfig")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
