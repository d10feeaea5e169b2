package root

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/docker/agent-relay/pkg/agentapi"
	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/relay"
	"github.com/docker/agent-relay/pkg/store"
)

// inMemoryDB is the store path that keeps bindings in memory.
const inMemoryDB = ":memory:"

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Path == inMemoryDB {
		return store.NewInMemoryStore(), nil
	}

	s, err := store.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Store.Path, err)
	}
	return s, nil
}

func newAgentClient(cfg *config.Config) (*agentapi.Client, error) {
	client, err := agentapi.NewClient(cfg.Agent.URL,
		agentapi.WithAPIKey(cfg.Agent.APIKey),
		agentapi.WithToolCacheTTL(cfg.Agent.ToolCacheTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}
	return client, nil
}

// newRelay builds a relay from the configuration. Unset values keep the
// relay defaults.
func newRelay(agent relay.Agent, cfg config.Relay) *relay.Relay {
	opts := []relay.Opt{
		relay.WithTracer(otel.Tracer(AppName)),
	}
	if cfg.TickInterval > 0 {
		opts = append(opts, relay.WithTickInterval(cfg.TickInterval))
	}
	if cfg.UpdatesPerSecond > 0 {
		opts = append(opts, relay.WithUpdatesPerSecond(cfg.UpdatesPerSecond))
	}
	if cfg.MaxDuration > 0 {
		opts = append(opts, relay.WithMaxDuration(cfg.MaxDuration))
	}
	if cfg.ToolCallTimeout > 0 {
		opts = append(opts, relay.WithToolCallTimeout(cfg.ToolCallTimeout))
	}
	if cfg.PrefetchTimeout > 0 {
		opts = append(opts, relay.WithPrefetchTimeout(cfg.PrefetchTimeout))
	}
	if cfg.TerminalWriteTimeout > 0 {
		opts = append(opts, relay.WithTerminalWriteTimeout(cfg.TerminalWriteTimeout))
	}
	if cfg.FallbackText != "" {
		opts = append(opts, relay.WithFallbackText(cfg.FallbackText))
	}
	if cfg.ErrorText != "" {
		opts = append(opts, relay.WithErrorText(cfg.ErrorText))
	}
	return relay.New(agent, opts...)
}
