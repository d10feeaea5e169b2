// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	Debug  bool
	Format string
	// Path of a rotating log file. Logs go to Stderr when empty.
	Path   string
	Stderr io.Writer
}

// NewHandler returns a slog handler writing to w in the given format.
func NewHandler(w io.Writer, format string, level slog.Leveler) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q, expected %q or %q", format, FormatText, FormatJSON)
	}
}

// Setup installs the default logger described by o. The returned closer
// releases the log file, if any.
func Setup(o Options) (io.Closer, error) {
	level := slog.LevelInfo
	if o.Debug {
		level = slog.LevelDebug
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if o.Stderr != nil {
		w = o.Stderr
	}
	if o.Path != "" {
		file, err := NewRotatingFile(o.Path)
		if err != nil {
			return nil, err
		}
		w, closer = file, file
	}

	handler, err := NewHandler(w, o.Format, level)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	slog.SetDefault(slog.New(handler))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
