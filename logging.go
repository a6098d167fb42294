package ibento

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger shared by every component of the package.
// A nil *Logger is valid, and discards everything.
type Logger = logiface.Logger[logiface.Event]

// NewLogger builds a JSON logger writing to w (stderr if nil), at the given
// level.
func NewLogger(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// ParseLevel accepts the syslog keywords used by logiface ("err", "warning",
// "info", "debug", "trace", ...), a few common aliases, and the numeric
// severities of the same scale.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency", "panic":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return logiface.LevelDisabled, fmt.Errorf("ibento: invalid logging level %q", s)
	}
	if n < int(logiface.LevelDisabled) || n > int(logiface.LevelTrace) {
		return logiface.LevelDisabled, fmt.Errorf("ibento: logging level %d out of range", n)
	}
	return logiface.Level(n), nil
}
