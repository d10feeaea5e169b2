package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// render returns the in-progress display for s. Partial response text is
// never shown.
func render(s Snapshot) string {
	glyph := string(spinnerFrames[s.Frame%len(spinnerFrames)])

	switch s.Status {
	case StatusToolCall:
		return fmt.Sprintf("%s Using %s...", glyph, s.ToolName)
	case StatusResponding:
		return glyph + " Writing response..."
	default:
		return glyph + " Thinking..."
	}
}

// animator periodically re-renders a State into a Sink message.
type animator struct {
	state    *State
	sink     Sink
	handle   Handle
	interval time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// updateLimiter throttles animator updates to perSecond. Every tick gets an
// update when perSecond is not below the tick rate: a limiter at exactly the
// tick rate would drop ticks that arrive slightly early.
func updateLimiter(perSecond float64, tick time.Duration) *rate.Limiter {
	if perSecond <= 0 || time.Duration(float64(time.Second)/perSecond) <= tick {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func startAnimator(ctx context.Context, a *animator) *animator {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	go a.run(ctx)
	return a
}

func (a *animator) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, ok := a.state.Advance()
		if !ok {
			return
		}
		if !a.limiter.Allow() {
			continue
		}

		if err := a.sink.Update(ctx, a.handle, render(snapshot)); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("Failed to update status message", "error", err)
		}
	}
}

// stop cancels the animator and waits for it to exit. No update is issued
// once stop returns.
func (a *animator) stop() {
	a.cancel()
	<-a.done
}
