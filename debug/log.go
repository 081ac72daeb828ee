package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger(io.Discard)
	file    *os.File
	mu      sync.Mutex
	enabled bool
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// Enable starts logging to path (created with parent dirs, truncated).
// level is a logrus level name; empty means debug.
func Enable(path, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	lvl := logrus.DebugLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true
	logger.SetOutput(f)
	logger.SetLevel(lvl)
	logger.WithField("cat", "debug").Info("=== Debug logging started ===")

	return nil
}

// EnableWriter routes logging to w (tests, stderr)
func EnableWriter(w io.Writer, level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
	logger.SetLevel(level)
	enabled = true
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	logger.SetOutput(io.Discard)
	enabled = false
}

// Enabled reports whether log output is active
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a debug-level message under category
func Log(category, format string, args ...any) {
	logger.WithField("cat", category).Debugf(format, args...)
}

// Info writes an info-level message under category
func Info(category, format string, args ...any) {
	logger.WithField("cat", category).Infof(format, args...)
}

// Warn writes a warning under category
func Warn(category, format string, args ...any) {
	logger.WithField("cat", category).Warnf(format, args...)
}

// Error writes an error under category
func Error(category, format string, args ...any) {
	logger.WithField("cat", category).Errorf(format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
