package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/agent-relay/pkg/config"
	"github.com/docker/agent-relay/pkg/environment"
	"github.com/docker/agent-relay/pkg/logging"
)

type rootFlags struct {
	enableOtel  bool
	debugMode   bool
	logFilePath string
	logFormat   string
	configPath  string
	envFiles    []string
	logFile     io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   AppName,
		Short: "agent-relay - stream agent replies into Slack",
		Long:  "agent-relay relays Slack mentions to an agent server and streams the agent's reply back into the thread",
		Example: `  agent-relay serve
  agent-relay ask --agent weather "Will it rain tomorrow?"
  agent-relay bind T0123 C0456 weather`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logging.Setup(logging.Options{
				Debug:  flags.debugMode,
				Format: flags.logFormat,
				Path:   strings.TrimSpace(flags.logFilePath),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			flags.logFile = closer

			if flags.enableOtel {
				if err := initOTelSDK(cmd.Context()); err != nil {
					slog.Warn("Failed to initialize OpenTelemetry SDK", "error", err)
				} else {
					slog.Debug("OpenTelemetry SDK initialized successfully")
				}
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		// If no subcommand is specified, show help
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.enableOtel, "otel", "o", false, "Enable OpenTelemetry tracing")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Write logs to a rotating file instead of stderr")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", logging.FormatText, "Log format (text or json)")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the config file (default: ~/.config/agent-relay/config.yaml)")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-from-file", nil, "Read settings from env files")

	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "admin", Title: "Admin Commands:"})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newAskCmd(&flags))
	cmd.AddCommand(newBindCmd(&flags))
	cmd.AddCommand(newUnbindCmd(&flags))
	cmd.AddCommand(newBindingsCmd(&flags))
	cmd.AddCommand(newTokenCmd(&flags))
	cmd.AddCommand(newConfigCmd(&flags))

	return cmd
}

func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

// loadConfig reads the config file and the environment, then checks that
// mode can run with it.
func (f *rootFlags) loadConfig(ctx context.Context, mode config.Mode) (*config.Config, error) {
	envFiles, err := environment.AbsolutePaths(".", f.envFiles)
	if err != nil {
		return nil, err
	}

	env, err := environment.NewDefaultProvider(envFiles)
	if err != nil {
		return nil, fmt.Errorf("reading env files: %w", err)
	}

	cfg, err := config.Load(ctx, f.configPath, env)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return cfg, nil
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	} else if envErr, ok := errors.AsType[*environment.RequiredEnvError](err); ok {
		fmt.Fprintln(stderr, "The following environment variables must be set:")
		for _, v := range envErr.Missing {
			fmt.Fprintf(stderr, " - %s\n", v)
		}
		fmt.Fprintln(stderr, "\nEither:\n - Set those environment variables before running agent-relay\n - Run agent-relay with --env-from-file\n - Set them in the config file passed with --config")
	} else if _, ok := errors.AsType[RuntimeError](err); ok {
		// Runtime errors have already been printed by the command itself
		// Don't print them again or show usage
	} else {
		// Command line usage errors - show the error and usage
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr)
		if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
			_ = rootCmd.Usage()
		}
	}

	return err
}

// RuntimeError wraps runtime errors to distinguish them from usage errors
type RuntimeError struct {
	Err error
}

func (e RuntimeError) Error() string {
	return e.Err.Error()
}

func (e RuntimeError) Unwrap() error {
	return e.Err
}
