package root

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/user"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/store"
)

type bindFlags struct {
	*rootFlags
	createdBy string
}

func newBindCmd(root *rootFlags) *cobra.Command {
	flags := bindFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "bind <team> <channel> <agent>",
		Short: "Bind an agent to a Slack channel",
		Long:  "Bind an agent to a Slack channel. Use * as the channel to bind the agent to every channel of the team without a binding of its own.",
		Example: `  agent-relay bind T0123 C0456 weather
  agent-relay bind T0123 '*' general`,
		GroupID: "admin",
		Args:    cobra.ExactArgs(3),
		RunE:    flags.runBindCommand,
	}

	cmd.Flags().StringVar(&flags.createdBy, "by", "", "Who created the binding (default: the current user)")

	return cmd
}

func (f *bindFlags) runBindCommand(cmd *cobra.Command, args []string) error {
	createdBy := f.createdBy
	if createdBy == "" {
		if u, err := user.Current(); err == nil {
			createdBy = u.Username
		}
	}

	binding := store.Binding{
		TeamID:    args[0],
		Channel:   args[1],
		AgentID:   args[2],
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	return f.withBindings(cmd, func(ctx context.Context, bindings *store.Bindings) error {
		if err := bindings.Bind(ctx, binding); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bound %s to %s/%s\n", binding.AgentID, binding.TeamID, binding.Channel)
		return nil
	})
}

func newUnbindCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "unbind <team> <channel>",
		Short:   "Remove the agent binding of a Slack channel",
		GroupID: "admin",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withBindings(cmd, func(ctx context.Context, bindings *store.Bindings) error {
				err := bindings.Unbind(ctx, args[0], args[1])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no binding for %s/%s", args[0], args[1])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unbound %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

type bindingsFlags struct {
	*rootFlags
	teamID string
	json   bool
}

func newBindingsCmd(root *rootFlags) *cobra.Command {
	flags := bindingsFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:     "bindings",
		Aliases: []string{"ls"},
		Short:   "List agent bindings",
		GroupID: "admin",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withBindings(cmd, func(ctx context.Context, bindings *store.Bindings) error {
				list, err := bindings.List(ctx, flags.teamID)
				if err != nil {
					return err
				}
				if flags.json {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				printBindings(cmd.OutOrStdout(), list, time.Now())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.teamID, "team", "", "Only list the bindings of this team")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the bindings as JSON")

	return cmd
}

func printBindings(out io.Writer, list []store.Binding, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintf(w, "TEAM\tCHANNEL\tAGENT\tCREATED BY\tCREATED\n")
	for _, b := range list {
		created := "-"
		if !b.CreatedAt.IsZero() {
			created = units.HumanDuration(now.Sub(b.CreatedAt)) + " ago"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.TeamID, b.Channel, b.AgentID, b.CreatedBy, created)
	}
}

// withBindings opens the bindings store for the duration of fn. Failures are
// printed and reported as runtime errors.
func (f *rootFlags) withBindings(cmd *cobra.Command, fn func(context.Context, *store.Bindings) error) error {
	ctx := cmd.Context()

	cfg, err := f.loadConfig(ctx, config.ModeStore)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err == nil {
		defer db.Close()
		err = fn(ctx, store.NewBindings(db, cfg.Agent.Default))
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return RuntimeError{Err: err}
	}
	return nil
}
