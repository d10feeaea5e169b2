package root

import (
	"context"
	"fmt"
	"log/slog"

	slackapi "github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/server"
	"github.com/docker/agent-relay/pkg/slack"
	"github.com/docker/agent-relay/pkg/store"
)

type serveFlags struct {
	*rootFlags
	listenAddr string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Slack Events API webhook",
		Long: `Receive Slack mentions and stream the bound agent's reply into the thread.
Also serves the admin API when an admin secret is configured.`,
		Example: `  agent-relay serve
  agent-relay serve --listen unix:///run/agent-relay.sock`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", "", "Address to listen on (host:port, unix://path or fd://N)")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := f.loadConfig(ctx, config.ModeServe)
	if err != nil {
		return err
	}
	if f.listenAddr != "" {
		cfg.Server.Listen = f.listenAddr
	}

	if err := serve(ctx, cfg); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return RuntimeError{Err: err}
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	bindings := store.NewBindings(db, cfg.Agent.Default)

	agents, err := newAgentClient(cfg)
	if err != nil {
		return err
	}
	relayer := newRelay(agents, cfg.Relay)

	slackClient := slackapi.New(cfg.Slack.BotToken)
	auth, err := slackClient.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("authenticating with Slack: %w", err)
	}
	slog.Info("Connected to Slack", "team", auth.TeamID, "bot_user", auth.UserID)

	ln, err := server.Listen(ctx, cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	defer ln.Close()

	g, ctx := errgroup.WithContext(ctx)

	bot := slack.NewBot(ctx, slackClient, relayer, bindings)
	events := slack.NewEventHandler(cfg.Slack.SigningSecret, bot.Dispatch,
		slack.WithBotUserID(auth.UserID),
		slack.WithDedupWindow(cfg.Slack.DedupWindow),
	)

	var opts []server.Opt
	if cfg.Server.AdminSecret != "" {
		opts = append(opts, server.WithAdminSecret(cfg.Server.AdminSecret))
	}
	srv := server.New(events, bindings, opts...)

	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})
	g.Go(func() error {
		ids, err := agents.ListAgents(ctx)
		if err != nil {
			slog.Warn("Failed to list agents", "url", cfg.Agent.URL, "error", err)
			return nil
		}
		slog.Info("Agent server reachable", "url", cfg.Agent.URL, "agents", ids)
		return nil
	})

	err = g.Wait()

	// The server has stopped: no more mentions can be dispatched.
	slog.Debug("Waiting for in-flight relays")
	bot.Wait()

	return err
}
