// Package relay streams an agent invocation into a single, continuously
// updated message: a spinner while the agent thinks or calls tools, then the
// final response text, or a failure notice if the stream breaks.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/agent-relay/pkg/agentapi"
	"github.com/docker/agent-relay/pkg/relay/stream"
	"github.com/docker/agent-relay/pkg/relay/toolname"
)

var (
	// ErrTransport wraps every failure of the agent stream itself.
	ErrTransport = errors.New("agent stream failed")
	// ErrRelayTimeout is the cause used when a relay exceeds its maximum duration.
	ErrRelayTimeout = errors.New("relay timed out")
	// ErrToolCallTimeout is the cause used when a tool call produces no event for too long.
	ErrToolCallTimeout = errors.New("tool call timed out")
)

const (
	DefaultFallbackText = "The agent finished without a response."
	DefaultErrorText    = "Sorry, something went wrong while talking to the agent. Please try again."
)

// Agent is the agent server a relay talks to.
type Agent interface {
	Stream(ctx context.Context, agentID string, req agentapi.StreamRequest) (io.ReadCloser, error)
	toolname.Lister
}

// Request describes one relay invocation.
type Request struct {
	AgentID    string
	Prompt     string
	ThreadID   string
	ResourceID string
	Sink       Sink
}

type Relay struct {
	agent  Agent
	tracer trace.Tracer

	tickInterval         time.Duration
	updatesPerSecond     float64
	maxDuration          time.Duration
	toolCallTimeout      time.Duration
	prefetchTimeout      time.Duration
	terminalWriteTimeout time.Duration
	fallbackText         string
	errorText            string

	// observe, when set, sees every status transition of every invocation.
	observe func(Status)
}

type Opt func(*Relay)

func WithTracer(tracer trace.Tracer) Opt {
	return func(r *Relay) {
		r.tracer = tracer
	}
}

// WithTickInterval sets the animation period.
func WithTickInterval(d time.Duration) Opt {
	return func(r *Relay) {
		if d > 0 {
			r.tickInterval = d
		}
	}
}

// WithUpdatesPerSecond limits intermediate sink updates. Zero or less
// removes the limit, and so does a rate at or above the tick rate.
func WithUpdatesPerSecond(n float64) Opt {
	return func(r *Relay) {
		r.updatesPerSecond = n
	}
}

// WithMaxDuration bounds a whole invocation. Zero disables the bound.
func WithMaxDuration(d time.Duration) Opt {
	return func(r *Relay) {
		r.maxDuration = d
	}
}

// WithToolCallTimeout fails an invocation whose tool call sees no event for
// d. Zero disables the timeout.
func WithToolCallTimeout(d time.Duration) Opt {
	return func(r *Relay) {
		r.toolCallTimeout = d
	}
}

func WithPrefetchTimeout(d time.Duration) Opt {
	return func(r *Relay) {
		r.prefetchTimeout = d
	}
}

func WithTerminalWriteTimeout(d time.Duration) Opt {
	return func(r *Relay) {
		if d > 0 {
			r.terminalWriteTimeout = d
		}
	}
}

// WithFallbackText sets the final text used when the agent produced none.
func WithFallbackText(text string) Opt {
	return func(r *Relay) {
		if text != "" {
			r.fallbackText = text
		}
	}
}

// WithErrorText sets the final text used when the stream fails.
func WithErrorText(text string) Opt {
	return func(r *Relay) {
		if text != "" {
			r.errorText = text
		}
	}
}

func New(agent Agent, opts ...Opt) *Relay {
	r := &Relay{
		agent:                agent,
		tickInterval:         time.Second,
		updatesPerSecond:     1,
		maxDuration:          10 * time.Minute,
		toolCallTimeout:      5 * time.Minute,
		prefetchTimeout:      5 * time.Second,
		terminalWriteTimeout: 10 * time.Second,
		fallbackText:         DefaultFallbackText,
		errorText:            DefaultErrorText,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays req.Prompt to the agent and shows the response through req.Sink.
// Exactly one final update is written once the initial message exists, even
// when ctx is cancelled. Stream failures are returned wrapped in ErrTransport
// after that write was attempted.
func (r *Relay) Run(ctx context.Context, req Request) error {
	relayID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating relay id: %w", err)
	}
	logger := slog.With("relay_id", relayID.String(), "agent", req.AgentID)

	ctx, span := r.startSpan(ctx, "relay.run", trace.WithAttributes(
		attribute.String("relay.id", relayID.String()),
		attribute.String("agent.id", req.AgentID),
	))
	defer span.End()

	handle, err := req.Sink.Create(ctx, render(Snapshot{Status: StatusThinking}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "creating message")
		return fmt.Errorf("creating message: %w", err)
	}

	runCtx := ctx
	if r.maxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, r.maxDuration, ErrRelayTimeout)
		defer cancel()
	}

	state := NewState()
	state.onTransition = func(status Status) {
		logger.Debug("Relay status changed", "status", status)
		if r.observe != nil {
			r.observe(status)
		}
	}

	anim := startAnimator(runCtx, &animator{
		state:    state,
		sink:     req.Sink,
		handle:   handle,
		interval: r.tickInterval,
		limiter:  updateLimiter(r.updatesPerSecond, r.tickInterval),
		logger:   logger,
	})

	resolver := toolname.NewResolver()
	r.prefetch(runCtx, resolver, req.AgentID, logger)

	streamErr := r.stream(runCtx, req, state, resolver, logger)

	var final string
	if streamErr == nil {
		snapshot, _ := state.Finish()
		final = snapshot.Text
		if strings.TrimSpace(final) == "" {
			final = r.fallbackText
		}
	} else {
		state.Fail()
		final = r.errorText
	}
	anim.stop()

	r.writeFinal(ctx, req.Sink, handle, final, logger)

	snapshot := state.Snapshot()
	span.SetAttributes(
		attribute.String("relay.status", snapshot.Status.String()),
		attribute.Int("relay.text_length", len(snapshot.Text)),
	)

	if streamErr != nil {
		logger.Error("Relay failed", "error", streamErr)
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "agent stream failed")
		return fmt.Errorf("%w: %w", ErrTransport, streamErr)
	}

	logger.Debug("Relay completed", "text_length", len(snapshot.Text))
	return nil
}

func (r *Relay) prefetch(ctx context.Context, resolver *toolname.Resolver, agentID string, logger *slog.Logger) {
	if r.prefetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.prefetchTimeout)
		defer cancel()
	}

	if err := resolver.Prefetch(ctx, r.agent, agentID); err != nil {
		logger.Warn("Could not fetch agent tools, falling back to raw tool names", "error", err)
	}
}

// stream reads the agent response until it ends, applying every event to
// state.
func (r *Relay) stream(ctx context.Context, req Request, state *State, resolver *toolname.Resolver, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	body, err := r.agent.Stream(ctx, req.AgentID, agentapi.StreamRequest{
		Messages:   []agentapi.Message{{Role: "user", Content: req.Prompt}},
		ThreadID:   req.ThreadID,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return err
	}
	defer body.Close()

	// A blocked read only returns once the body is closed.
	stopClosing := context.AfterFunc(ctx, func() {
		_ = body.Close()
	})
	defer stopClosing()

	watchdog := &toolWatchdog{
		timeout: r.toolCallTimeout,
		fire:    func() { cancel(ErrToolCallTimeout) },
	}
	defer watchdog.disarm()

	return stream.Read(ctx, body, func(event stream.Event) error {
		switch e := event.(type) {
		case stream.TextDelta:
			state.AppendText(e.Text)
		case stream.ToolCallStart:
			state.StartTool(resolver.Resolve(e.Ref))
		case stream.ToolCallEnd:
			state.EndTool()
		case stream.ToolMetadata:
			resolver.Register(e)
		case stream.Unknown:
			logger.Debug("Ignoring stream event", "type", e.Type)
		}

		if state.Snapshot().Status == StatusToolCall {
			watchdog.arm()
		} else {
			watchdog.disarm()
		}
		return nil
	})
}

func (r *Relay) writeFinal(ctx context.Context, sink Sink, handle Handle, text string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.terminalWriteTimeout)
	defer cancel()

	if err := sink.Update(ctx, handle, text); err != nil {
		logger.Error("Failed to write final message", "error", err)
	}
}

func (r *Relay) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, opts...)
}

// toolWatchdog fires when a tool call stays silent for longer than timeout.
// It is only used from the stream reading goroutine.
type toolWatchdog struct {
	timeout time.Duration
	fire    func()
	timer   *time.Timer
}

func (w *toolWatchdog) arm() {
	if w.timeout <= 0 {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.timeout, w.fire)
		return
	}
	w.timer.Reset(w.timeout)
}

func (w *toolWatchdog) disarm() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
