package relay

import (
	"strings"
	"sync"
)

// Status is the phase of a relay invocation.
type Status int

const (
	StatusThinking Status = iota
	StatusToolCall
	StatusResponding
	StatusDone
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusThinking:
		return "thinking"
	case StatusToolCall:
		return "tool_call"
	case StatusResponding:
		return "responding"
	case StatusDone:
		return "done"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusErrored
}

// Snapshot is a copy of a State at one point in time.
type Snapshot struct {
	Status   Status
	Text     string
	ToolName string
	Frame    int
}

// State is the mutable state of one relay invocation, shared by the stream
// reader and the animator. Once terminal, every mutator is a no-op and
// reports false.
type State struct {
	mu       sync.Mutex
	status   Status
	text     strings.Builder
	toolName string
	frame    int

	// onTransition is called with the new status, under mu.
	onTransition func(Status)
}

func NewState() *State {
	return &State{status: StatusThinking}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AppendText adds a text delta. The first text after Thinking or ToolCall
// moves the state to Responding.
func (s *State) AppendText(delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	s.text.WriteString(delta)
	if s.status == StatusThinking || s.status == StatusToolCall {
		s.setLocked(StatusResponding)
	}
	return true
}

// StartTool enters ToolCall with the given display name.
func (s *State) StartTool(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	s.toolName = name
	s.setLocked(StatusToolCall)
	return true
}

// EndTool moves to Responding. The tool name is kept until the next
// StartTool or the terminal transition; Responding never displays it.
func (s *State) EndTool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	s.setLocked(StatusResponding)
	return true
}

// Advance moves the animation one frame forward and returns the result.
func (s *State) Advance() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return s.snapshotLocked(), false
	}
	s.frame++
	return s.snapshotLocked(), true
}

// Finish marks the stream as completed. Only the first terminal transition
// succeeds.
func (s *State) Finish() (Snapshot, bool) {
	return s.terminate(StatusDone)
}

// Fail marks the stream as failed. Only the first terminal transition
// succeeds.
func (s *State) Fail() (Snapshot, bool) {
	return s.terminate(StatusErrored)
}

func (s *State) terminate(status Status) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return s.snapshotLocked(), false
	}
	s.toolName = ""
	s.setLocked(status)
	return s.snapshotLocked(), true
}

func (s *State) setLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.onTransition != nil {
		s.onTransition(status)
	}
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Status:   s.status,
		Text:     s.text.String(),
		ToolName: s.toolName,
		Frame:    s.frame,
	}
}
