package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sfxforwarder/internal/app"
	"sfxforwarder/internal/setup"
)

const (
	exitCodeFailure         = 1
	exitCodeInvalidArgument = 2
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type globalFlags struct {
	configPath string
	sessionKey string
	splunkdURI string
}

// newRootCmd builds the command tree.
// Params: stdin/stdout host streams.
// Returns: root cobra command.
func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "sfxforwarder",
		Short:         "Forward Splunk search results to the SignalFx ingest API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath(), "path to TOML settings file or directory")
	root.PersistentFlags().StringVar(&flags.sessionKey, "session-key", os.Getenv("SPLUNK_SESSION_KEY"), "splunkd session key when the host does not supply one")
	root.PersistentFlags().StringVar(&flags.splunkdURI, "splunkd-uri", "", "splunkd management URI override")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newSearchCmd(app.CommandDatapoints, "Send gauge_/counter_/cumulative_counter_ fields as datapoints", flags, stdin, stdout),
		newSearchCmd(app.CommandEvents, "Send each result as a custom event", flags, stdin, stdout),
		newSetupCmd(flags, stdout),
		&cobra.Command{
			Use:   "version",
			Short: "Show build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sfxforwarder version=%s commit=%s date=%s\n", version, commit, date)
			},
		},
	)
	return root
}

func newSearchCmd(name, short string, flags *globalFlags, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var protocolVersion string

	cmd := &cobra.Command{
		Use:   name + " [option=value...]",
		Short: short,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSearch(cmd.Context(), name, app.Runtime{
				ConfigPath: flags.configPath,
				Protocol:   protocolVersion,
				Args:       args,
				SessionKey: flags.sessionKey,
				Stdin:      stdin,
				Stdout:     stdout,
				Version:    version,
			})
		},
	}
	cmd.Flags().StringVar(&protocolVersion, "protocol", app.ProtocolV2, "host protocol: v1 (Intersplunk) or v2 (chunked)")
	return cmd
}

func newSetupCmd(flags *globalFlags, stdout io.Writer) *cobra.Command {
	runtime := func() app.SetupRuntime {
		return app.SetupRuntime{
			ConfigPath: flags.configPath,
			SessionKey: flags.sessionKey,
			SplunkdURI: flags.splunkdURI,
			Stdout:     stdout,
		}
	}

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Read or change the app settings",
	}
	setupCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print current settings as key=value lines",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.RunSetupList(cmd.Context(), runtime())
			},
		},
		&cobra.Command{
			Use:   "edit key=value...",
			Short: "Store access_token, ingest_url and realm",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parsePairs(args)
				if err != nil {
					return err
				}
				return app.RunSetupEdit(cmd.Context(), runtime(), values)
			},
		},
	)
	return setupCmd
}

// parsePairs splits key=value arguments.
// Params: args raw arguments.
// Returns: key/value map or argument error.
func parsePairs(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, &setup.ArgValidationError{Arg: arg, Reason: fmt.Sprintf("expected key=value, got %q", arg)}
		}
		values[strings.TrimSpace(key)] = value
	}
	return values, nil
}

// defaultConfigPath points at forwarder.toml next to the app's local settings.
func defaultConfigPath() string {
	if path := os.Getenv("SFXFORWARDER_CONFIG"); path != "" {
		return path
	}
	return "../local/forwarder.toml"
}

// run executes the CLI.
// Params: none.
// Returns: process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var argErr *setup.ArgValidationError
		if errors.As(err, &argErr) {
			return exitCodeInvalidArgument
		}
		return exitCodeFailure
	}

	return 0
}

func main() {
	os.Exit(run())
}
