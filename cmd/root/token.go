package root

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/environment"
	"github.com/docker/agent-relay/pkg/server"
)

type tokenFlags struct {
	*rootFlags
	ttl time.Duration
}

func newTokenCmd(root *rootFlags) *cobra.Command {
	flags := tokenFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an admin API token",
		Long:  "Issue a token for the admin API, signed with the configured admin secret. The subject is recorded as the creator of the bindings made with the token.",
		Example: `  agent-relay token alice
  agent-relay token ci --ttl 0`,
		GroupID: "admin",
		Args:    cobra.ExactArgs(1),
		RunE:    flags.runTokenCommand,
	}

	cmd.Flags().DurationVar(&flags.ttl, "ttl", 24*time.Hour, "How long the token is valid, 0 for no expiry")

	return cmd
}

func (f *tokenFlags) runTokenCommand(cmd *cobra.Command, args []string) error {
	cfg, err := f.loadConfig(cmd.Context(), config.ModeStore)
	if err != nil {
		return err
	}
	if cfg.Server.AdminSecret == "" {
		return &environment.RequiredEnvError{Missing: []string{"AGENT_RELAY_ADMIN_SECRET"}}
	}
	if f.ttl < 0 {
		return fmt.Errorf("--ttl cannot be negative")
	}

	token, err := server.IssueToken([]byte(cfg.Server.AdminSecret), args[0], f.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
