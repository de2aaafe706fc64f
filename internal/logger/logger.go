package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
)

// Log levels
const (
	LevelError = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

type sink struct {
	label  string
	color  string
	logger *log.Logger
}

var (
	mu sync.RWMutex

	// LogLevel controls which messages are written
	LogLevel = LevelInfo

	useColors = true
	out       io.Writer = os.Stdout
	errOut    io.Writer = os.Stderr

	sinks = map[int]*sink{
		LevelError:   {label: "ERROR", color: colorRed},
		LevelWarning: {label: "WARNING", color: colorYellow},
		LevelInfo:    {label: "INFO", color: colorBlue},
		LevelDebug:   {label: "DEBUG", color: colorPurple},
	}
)

// rebuild recreates every level logger from the current output and color settings.
// Callers must hold mu.
func rebuild() {
	for level, s := range sinks {
		w := out
		if level == LevelError {
			w = errOut
		}
		prefix := s.label + ": "
		if useColors {
			prefix = s.color + s.label + ": " + colorReset
		}
		s.logger = log.New(w, prefix, log.Ldate|log.Ltime|log.Lshortfile)
	}
}

// SetOutput routes all levels to w. Errors go to errW when it is not nil.
func SetOutput(w, errW io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	if errW == nil {
		errW = w
	}
	out, errOut = w, errW
	rebuild()
}

// EnableColors enables colored output
func EnableColors() {
	mu.Lock()
	defer mu.Unlock()
	useColors = true
	rebuild()
}

// DisableColors disables colored output
func DisableColors() {
	mu.Lock()
	defer mu.Unlock()
	useColors = false
	rebuild()
}

// SetLevel sets the logging level
func SetLevel(level int) {
	mu.Lock()
	defer mu.Unlock()
	if level >= LevelError && level <= LevelDebug {
		LogLevel = level
	}
}

// ParseLevel maps a level name such as "debug" or "warn" to its constant.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Enabled reports whether messages at level are currently written.
func Enabled(level int) bool {
	mu.RLock()
	defer mu.RUnlock()
	return LogLevel >= level
}

func emit(level int, msg string) {
	mu.RLock()
	defer mu.RUnlock()
	if LogLevel < level {
		return
	}
	// depth 3: emit -> Infof -> caller
	sinks[level].logger.Output(3, msg)
}

func Debugf(format string, v ...interface{}) {
	emit(LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	emit(LevelInfo, fmt.Sprintf(format, v...))
}

func Warningf(format string, v ...interface{}) {
	emit(LevelWarning, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	emit(LevelError, fmt.Sprintf(format, v...))
}

func init() {
	mu.Lock()
	rebuild()
	mu.Unlock()
}
