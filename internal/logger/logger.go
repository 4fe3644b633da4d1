// Package logger is the process-wide slog front end. Components log through
// the package functions or through a Component bound to their name.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = build(os.Stdout)
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput swaps the sink for every logger, including existing Components.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = build(w)
	loggerMu.Unlock()
}

// SetLevel accepts debug, info, warn or error. Anything else means info.
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
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

func Enabled(level slog.Level) bool {
	return levelVar.Level() <= level
}

func current() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLogger
}

func Debugf(format string, v ...any) { current().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { current().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { current().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { current().Error(fmt.Sprintf(format, v...)) }

// Component prefixes messages with a fixed name such as "Trader" or "Upbit".
type Component struct {
	name string
}

func For(name string) Component {
	return Component{name: strings.TrimSpace(name)}
}

func (c Component) prefix(format string) string {
	if c.name == "" {
		return format
	}
	return c.name + ": " + format
}

func (c Component) Debugf(format string, v ...any) { Debugf(c.prefix(format), v...) }
func (c Component) Infof(format string, v ...any)  { Infof(c.prefix(format), v...) }
func (c Component) Warnf(format string, v ...any)  { Warnf(c.prefix(format), v...) }
func (c Component) Errorf(format string, v ...any) { Errorf(c.prefix(format), v...) }

// Block logs a multi-line report one line at a time.
func (c Component) Block(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		c.Infof("%s", line)
	}
}
