package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Options struct {
	Level string
	// File receives JSON lines in addition to the console when set.
	File string
	// Quiet drops console output, used while the TUI owns the terminal.
	Quiet bool
}

// New builds the process logger. The returned closer releases the log file
// and is safe to call when no file was opened.
func New(opts Options, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if !opts.Quiet && console != nil {
		writers = append(writers, consoleWriter(console))
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "cronos").
		Logger()
	return logger, closer, nil
}

// consoleWriter pretty-prints on a terminal and writes JSON otherwise.
func consoleWriter(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
