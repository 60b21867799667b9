// Package logging sets up the structured application logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// TimeFormat is used by the console writer.
const TimeFormat = "15:04:05"

// Options controls where and how verbosely the app logs.
type Options struct {
	Debug bool
	// FilePath, when set, receives the log. In debug mode the log also goes to stderr.
	FilePath string
}

// New builds the application logger. The returned closer releases the log file, if any.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: TimeFormat}
	var closer io.Closer = nopCloser{}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o750); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open app log: %w", err)
		}
		closer = f
		fileOut := zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: TimeFormat}
		if opts.Debug {
			out = zerolog.MultiLevelWriter(out, fileOut)
		} else {
			out = fileOut
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
