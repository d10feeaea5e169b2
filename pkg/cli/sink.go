package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/docker/agent-relay/pkg/relay"
)

const terminalHandle relay.Handle = "terminal"

// clearLine moves the cursor to the start of the line and erases it.
const clearLine = "\r\x1b[K"

// TerminalSink shows a relay in a terminal. When live, the status line is
// redrawn in place on every update. The last text written is printed by
// Flush once the relay is over.
type TerminalSink struct {
	out  io.Writer
	live bool

	mu    sync.Mutex
	last  string
	drawn bool
}

var _ relay.Sink = (*TerminalSink)(nil)

func NewTerminalSink(out io.Writer, live bool) *TerminalSink {
	return &TerminalSink{
		out:  out,
		live: live,
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (s *TerminalSink) Create(ctx context.Context, text string) (relay.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(text)
	return terminalHandle, nil
}

func (s *TerminalSink) Update(ctx context.Context, handle relay.Handle, text string) error {
	if handle != terminalHandle {
		return fmt.Errorf("unknown message %q", handle)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.write(text)
	return nil
}

func (s *TerminalSink) write(text string) {
	s.last = text
	if !s.live {
		return
	}

	line, _, _ := strings.Cut(text, "\n")
	fmt.Fprint(s.out, clearLine+faint("%s", line))
	s.drawn = true
}

// Flush erases the status line and prints the last text written.
func (s *TerminalSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drawn {
		fmt.Fprint(s.out, clearLine)
		s.drawn = false
	}
	if s.last != "" {
		fmt.Fprintln(s.out, s.last)
	}
}

// Last returns the last text written.
func (s *TerminalSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
