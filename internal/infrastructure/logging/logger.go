package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/claimd/internal/infrastructure/config"
)

const (
	serviceName = "claimd"
	redacted    = "[REDACTED]"
)

// sensitiveKeys are masked wherever they appear as an attribute key,
// compared case-insensitively.
var sensitiveKeys = []string{"token", "password", "secret", "claim_url", "ssl_ca", "dsn"}

// Logger is claimd's structured logger. Every entry carries service and
// version; values under sensitive keys are replaced before output.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to cfg.Output (stdout unless "stderr").
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(destination(cfg.Output), cfg, version)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	h := newHandler(w, cfg).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// Default is the pre-config logger: JSON, info, stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "unknown")
}

// With returns a child Logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// newHandler picks text or JSON (the default) and installs redaction.
func newHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	for _, k := range sensitiveKeys {
		if strings.EqualFold(a.Key, k) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// parseLevel maps debug/info/warn(ing)/error onto slog levels. Anything
// else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	switch lower := strings.ToLower(level); lower {
	case "warning":
		l = slog.LevelWarn
	case "debug", "warn", "error":
		_ = l.UnmarshalText([]byte(lower)) //nolint:errcheck // inputs are known-good
	default:
		l = slog.LevelInfo
	}
	return l
}
