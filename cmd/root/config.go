package root

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docker/agent-relay/pkg/config"
)

func newConfigCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage the agent-relay config file",
		GroupID: "admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newConfigInitCmd(root))

	return cmd
}

type configInitFlags struct {
	*rootFlags
	force bool
}

func newConfigInitCmd(root *rootFlags) *cobra.Command {
	flags := configInitFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Long:  "Write a config file with the default settings, to --config or ~/.config/agent-relay/config.yaml. Secrets are not written: set them in the environment.",
		Example: `  agent-relay config init
  agent-relay config init --config ./relay.yaml --force`,
		Args: cobra.NoArgs,
		RunE: flags.runConfigInitCommand,
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}

func (f *configInitFlags) runConfigInitCommand(cmd *cobra.Command, _ []string) error {
	path := f.configPath
	if path == "" {
		path = config.Path()
	}

	if _, err := os.Stat(path); err == nil && !f.force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite it", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Default().Save(path); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return RuntimeError{Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
