// Package logger holds the process-wide structured logger and the verbosity
// switch the core plugin toggles at runtime.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	mu       sync.Mutex
	root     = newLogger(os.Stderr)
	children = make(map[string]*log.Logger)
	base     = log.InfoLevel
	verbose  bool
)

func newLogger(w io.Writer) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	l.SetLevel(log.InfoLevel)
	return l
}

// Configure sets the base level and, when file is not empty, sends output to it.
// The RUBOT_LOG_LEVEL environment variable is used when level is empty.
func Configure(level, file string) error {
	if level == "" {
		level = os.Getenv("RUBOT_LOG_LEVEL")
	}

	var out io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		out = f
	}

	mu.Lock()
	defer mu.Unlock()

	base = parseLevel(level)
	root.SetOutput(out)
	for _, c := range children {
		c.SetOutput(out)
	}
	applyLevelLocked()
	return nil
}

// Default returns the root logger.
func Default() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return root
}

// With returns the child logger tagged with prefix, creating it on first use.
// Children follow later level changes made through Configure and SetVerbose.
func With(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if child, ok := children[prefix]; ok {
		return child
	}
	child := root.WithPrefix(prefix)
	children[prefix] = child
	return child
}

// Discard returns a logger that writes nowhere. Meant for tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// SetVerbose switches debug output on or off.
func SetVerbose(on bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = on
	applyLevelLocked()
}

// ToggleVerbose flips verbosity and returns the new state.
func ToggleVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	verbose = !verbose
	applyLevelLocked()
	return verbose
}

func Verbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

func applyLevelLocked() {
	level := base
	if verbose {
		level = log.DebugLevel
	}
	root.SetLevel(level)
	for _, c := range children {
		c.SetLevel(level)
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
