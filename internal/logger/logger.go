package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup builds the process logger. format "pretty" gives console output,
// anything else JSON lines. Console colours are dropped when stdout is not a
// terminal so redirected CLI output stays clean.
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New is Setup with an explicit sink.
func New(out io.Writer, level, format string) zerolog.Logger {
	if format == "pretty" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(out),
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DurationFieldUnit = time.Millisecond

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("app", "quizdesk").
		Logger()
}

// Component derives a sub-logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
