package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "lutrongw"

// redacted replaces the value of any secret-looking attribute.
const redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"password":    true,
	"secret":      true,
	"token":       true,
	"private_key": true,
	"privatekey":  true,
	"credentials": true,
}

// Logger is the gateway's structured logger. The embedded *slog.Logger
// carries the service and version attributes on every entry.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger for cfg. Output is "stdout" (default), "stderr" or a
// file path opened for append; a file that cannot be opened falls back to
// stderr with a warning.
func New(cfg config.LoggingConfig, version string) *Logger {
	out, openErr := destination(cfg.Output)
	l := NewWithWriter(out, cfg, version)
	if openErr != nil {
		l.Warn("log file unavailable, writing to stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h).With("service", ServiceName, "version", version)}
}

func destination(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel accepts slog's level names in any case plus "warning".
// Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child Logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ForBridge returns a child logger tagged with a bridge ID and type.
func (l *Logger) ForBridge(bridgeID, bridgeType string) *Logger {
	return l.With("component", "lutron", "bridge_id", bridgeID, "bridge_type", bridgeType)
}

// Default is the pre-configuration logger: JSON on stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}
