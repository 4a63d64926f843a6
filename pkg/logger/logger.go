package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pid = os.Getpid()

// Logger wraps zerolog so the engine packages share one logging surface.
type Logger struct {
	logger *zerolog.Logger
}

// New creates a JSON logger writing to stderr.
func New(isDebug bool) *Logger {
	setLevel(isDebug)
	logger := zerolog.New(os.Stderr).With().Timestamp().Int("pid", pid).Logger()
	return &Logger{logger: &logger}
}

// NewConsole creates a human-readable logger.
// The tag param is printed as the owner of each line.
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	setLevel(isDebug)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(consoleWriter(os.Stdout, tag, noColor)).With().Timestamp().Logger()
	return &Logger{logger: &logger}
}

func consoleWriter(out io.Writer, tag string, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, NoColor: noColor,
		FormatTimestamp: consoleTimestamp(fmt.Sprintf("%4x %v", pid, tag)),
	}
}

// consoleTimestamp prints the pid and the tag right after the time,
// so they never show up among the fields of a line.
func consoleTimestamp(owner string) zerolog.Formatter {
	return func(i interface{}) string {
		ts, _ := i.(string)
		if t, err := time.Parse(zerolog.TimeFieldFormat, ts); err == nil {
			ts = t.Local().Format("15:04:05.0000")
		}
		return ts + " " + owner
	}
}

// NewWriter creates a logger over an arbitrary writer (tests).
func NewWriter(w io.Writer) *Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

func Nop() *Logger {
	logger := zerolog.Nop()
	return &Logger{logger: &logger}
}

func setLevel(isDebug bool) {
	level := zerolog.InfoLevel
	if isDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// With creates a child logger with the field added to its context.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

// Info starts a new message with info level.
func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

// Warn starts a new message with warn level.
func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

// Error starts a new message with error level.
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method.
func (l *Logger) Fatal() *zerolog.Event { return l.logger.Fatal() }
