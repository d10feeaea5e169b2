package relay

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot Snapshot
		expected string
	}{
		{
			name:     "thinking",
			snapshot: Snapshot{Status: StatusThinking},
			expected: "⠋ Thinking...",
		},
		{
			name:     "tool call",
			snapshot: Snapshot{Status: StatusToolCall, ToolName: "Reverse Text", Frame: 1},
			expected: "⠙ Using Reverse Text...",
		},
		{
			name:     "responding hides partial text",
			snapshot: Snapshot{Status: StatusResponding, Text: "partial answer", Frame: 9},
			expected: "⠏ Writing response...",
		},
		{
			name:     "spinner wraps around",
			snapshot: Snapshot{Status: StatusThinking, Frame: 12},
			expected: "⠹ Thinking...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, render(tt.snapshot))
		})
	}
}

func newTestAnimator(state *State, sink Sink, limit rate.Limit) *animator {
	return &animator{
		state:    state,
		sink:     sink,
		handle:   "msg-1",
		interval: time.Millisecond,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default(),
	}
}

func TestAnimatorUpdatesUntilStopped(t *testing.T) {
	t.Parallel()

	state := NewState()
	state.StartTool("Search")
	sink := &recordingSink{}

	anim := startAnimator(t.Context(), newTestAnimator(state, sink, rate.Inf))
	require.Eventually(t, func() bool { return len(sink.Updates()) >= 3 }, time.Second, time.Millisecond)
	anim.stop()

	stopped := len(sink.Updates())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sink.Updates(), stopped)

	for _, update := range sink.Updates() {
		assert.Contains(t, update, "Using Search...")
	}
}

func TestAnimatorStopsOnTerminalState(t *testing.T) {
	t.Parallel()

	state := NewState()
	state.Finish()
	sink := &recordingSink{}

	anim := startAnimator(t.Context(), newTestAnimator(state, sink, rate.Inf))
	select {
	case <-anim.done:
	case <-time.After(time.Second):
		t.Fatal("animator did not exit after a terminal state")
	}
	anim.stop()

	assert.Empty(t, sink.Updates())
}

func TestAnimatorSkipsThrottledTicks(t *testing.T) {
	t.Parallel()

	state := NewState()
	sink := &recordingSink{}

	anim := startAnimator(t.Context(), newTestAnimator(state, sink, rate.Every(time.Hour)))
	require.Eventually(t, func() bool { return state.Snapshot().Frame >= 10 }, time.Second, time.Millisecond)
	anim.stop()

	assert.Len(t, sink.Updates(), 1)
}

func TestUpdateLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		perSecond float64
		tick      time.Duration
		expected  rate.Limit
	}{
		{name: "unlimited", perSecond: 0, tick: time.Second, expected: rate.Inf},
		{name: "negative", perSecond: -1, tick: time.Second, expected: rate.Inf},
		{name: "default ratio", perSecond: 1, tick: time.Second, expected: rate.Inf},
		{name: "scaled default ratio", perSecond: 50, tick: 20 * time.Millisecond, expected: rate.Inf},
		{name: "faster than ticks", perSecond: 4, tick: time.Second, expected: rate.Inf},
		{name: "slower than ticks", perSecond: 0.5, tick: time.Second, expected: rate.Limit(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, updateLimiter(tt.perSecond, tt.tick).Limit())
		})
	}
}

func TestAnimatorUpdatesOnEveryTickAtDefaultRatio(t *testing.T) {
	t.Parallel()

	state := NewState()
	sink := &recordingSink{}

	a := newTestAnimator(state, sink, rate.Inf)
	a.interval = 20 * time.Millisecond
	a.limiter = updateLimiter(50, a.interval)

	anim := startAnimator(t.Context(), a)
	require.Eventually(t, func() bool { return state.Snapshot().Frame >= 25 }, 5*time.Second, time.Millisecond)
	anim.stop()

	assert.Len(t, sink.Updates(), state.Snapshot().Frame)
}

func TestAnimatorKeepsGoingAfterSinkFailure(t *testing.T) {
	t.Parallel()

	state := NewState()
	sink := &recordingSink{updateErr: assert.AnError}

	anim := startAnimator(t.Context(), newTestAnimator(state, sink, rate.Inf))
	require.Eventually(t, func() bool { return len(sink.Updates()) >= 2 }, time.Second, time.Millisecond)
	anim.stop()
}
