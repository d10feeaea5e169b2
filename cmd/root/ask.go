package root

import (
	"cmp"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docker/agent-relay/pkg/cli"
	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/relay"
)

type askFlags struct {
	*rootFlags
	agentID    string
	threadID   string
	resourceID string
	quiet      bool
}

func newAskCmd(root *rootFlags) *cobra.Command {
	flags := askFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "ask [flags] <prompt>...",
		Short: "Relay a single prompt and print the reply",
		Long:  "Relay a prompt to an agent exactly like a Slack mention would be, showing progress in the terminal. Use - to read the prompt from stdin.",
		Example: `  agent-relay ask "What's on my calendar?"
  agent-relay ask --agent weather "Will it rain tomorrow?"
  echo "Summarize this" | agent-relay ask -`,
		GroupID: "core",
		Args:    cobra.MinimumNArgs(1),
		RunE:    flags.runAskCommand,
	}

	cmd.Flags().StringVarP(&flags.agentID, "agent", "a", "", "Agent to ask (default: the configured default agent)")
	cmd.Flags().StringVar(&flags.threadID, "thread", "", "Conversation thread to continue (default: a new thread)")
	cmd.Flags().StringVar(&flags.resourceID, "resource", "cli", "Resource id the conversation belongs to")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Only print the reply")

	return cmd
}

func (f *askFlags) runAskCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := f.loadConfig(ctx, config.ModeAsk)
	if err != nil {
		return err
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	agentID := cmp.Or(f.agentID, cfg.Agent.Default)
	if agentID == "" {
		return errors.New("no agent selected: pass --agent or set AGENT_RELAY_DEFAULT_AGENT")
	}

	agents, err := newAgentClient(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := cli.NewPrinter(out)
	if !f.quiet {
		printer.PrintAgentName(agentID)
	}

	sink := cli.NewTerminalSink(out, !f.quiet && cli.IsTerminal(out))
	if err := ask(ctx, newRelay(agents, cfg.Relay), relay.Request{
		AgentID:    agentID,
		Prompt:     prompt,
		ThreadID:   cmp.Or(f.threadID, uuid.NewString()),
		ResourceID: f.resourceID,
		Sink:       sink,
	}, sink, printer, f.quiet); err != nil {
		return RuntimeError{Err: err}
	}
	return nil
}

// ask runs req and prints its outcome once the relay is over.
func ask(ctx context.Context, r *relay.Relay, req relay.Request, sink *cli.TerminalSink, printer *cli.Printer, quiet bool) error {
	start := time.Now()
	err := r.Run(ctx, req)
	sink.Flush()

	if err != nil {
		printer.PrintError(err)
		return err
	}
	if !quiet {
		printer.PrintDuration(time.Since(start))
	}
	return nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		args = []string{string(buf)}
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}
	return prompt, nil
}
