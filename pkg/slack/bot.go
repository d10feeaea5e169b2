package slack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/docker/agent-relay/pkg/relay"
	"github.com/docker/agent-relay/pkg/store"
)

const noAgentNotice = "No agent is connected to this channel yet. Ask an admin to bind one with `agent-relay bind`."

// AgentResolver picks the agent answering in a channel. It returns an error
// wrapping store.ErrNoAgent when there is none.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, teamID, channel string) (string, error)
}

// Runner runs one relay invocation.
type Runner interface {
	Run(ctx context.Context, req relay.Request) error
}

// Bot answers mentions by relaying them to an agent. Each mention is handled
// in its own goroutine, bound to the context given to NewBot.
type Bot struct {
	ctx    context.Context
	client Poster
	runner Runner
	agents AgentResolver

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewBot(ctx context.Context, client Poster, runner Runner, agents AgentResolver) *Bot {
	return &Bot{
		ctx:    ctx,
		client: client,
		runner: runner,
		agents: agents,
	}
}

// Dispatch starts answering m and returns immediately. Mentions arriving
// once the bot's context is done, or once Wait was called, are dropped.
func (b *Bot) Dispatch(m Mention) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.ctx.Err() != nil {
		slog.Warn("Shutting down, dropping message", "team", m.TeamID, "channel", m.Channel, "event_id", m.EventID)
		return
	}

	b.wg.Go(func() {
		b.handle(b.ctx, m)
	})
}

// Wait stops accepting mentions and blocks until every dispatched mention
// has been answered.
func (b *Bot) Wait() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bot) handle(ctx context.Context, m Mention) {
	logger := slog.With("team", m.TeamID, "channel", m.Channel, "user", m.User, "event_id", m.EventID)

	agentID, err := b.agents.ResolveAgent(ctx, m.TeamID, m.Channel)
	if errors.Is(err, store.ErrNoAgent) {
		logger.Info("No agent bound, ignoring message")
		b.notify(ctx, m, noAgentNotice, logger)
		return
	}
	if err != nil {
		logger.Error("Failed to resolve agent", "error", err)
		return
	}

	logger = logger.With("agent", agentID)
	logger.Debug("Relaying message")

	start := time.Now()
	err = b.runner.Run(ctx, relay.Request{
		AgentID:    agentID,
		Prompt:     m.Text,
		ThreadID:   m.ThreadKey(),
		ResourceID: m.User,
		Sink:       NewSink(b.client, m.Channel, m.ReplyTS()),
	})
	if err != nil {
		logger.Error("Relay failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("Relay completed", "duration", time.Since(start))
}

func (b *Bot) notify(ctx context.Context, m Mention, text string, logger *slog.Logger) {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if ts := m.ReplyTS(); ts != "" {
		options = append(options, slackapi.MsgOptionTS(ts))
	}
	if _, _, err := b.client.PostMessageContext(ctx, m.Channel, options...); err != nil {
		logger.Warn("Failed to post notice", "error", err)
	}
}
