// Package cli implements the cobra-based CLI commands for pagenode-shell.
//
// Each subcommand (run, resolve, free-port) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagenode/pagenode-shell/internal/config"
	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/sidecar"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose switches the logger to the development console format at
	// debug level.
	verbose bool

	// configPath is an optional JSON, JSONC or YAML config file.
	configPath string

	// envFile is an optional dotenv file loaded before the environment is
	// read, typically holding PAGENODE_BACKEND_PORT for local development.
	envFile string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pagenode-shell",
		Short: "Desktop shell bootstrap for the pagenode backend",
		Long: `pagenode-shell discovers the port of the pagenode backend and serves it
to the user interface.

In development, PAGENODE_BACKEND_PORT points the shell at a backend that is
already running. Otherwise the shell starts the pagenode-backend sidecar and
reads the port it announces on stdout as "PORT=<n>".`,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.json, .jsonc, .yaml, .yml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewFreePortCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(reportError(os.Stderr, err)))
	}
}

// reportError prints err and returns the exit code it maps to. CLIError
// values carry their own code, possibly wrapped by an errgroup or fmt;
// anything else is ExitGeneralError.
func reportError(w io.Writer, err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return cliErr.Code
	}
	printError(w, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode because stdout is reserved
		// for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// loadRuntime applies --env-file, loads the configuration and builds the
// logger. Every command that touches the sidecar starts here.
func loadRuntime() (*config.Config, *logging.Logger, error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	if verbose {
		logCfg = logging.DevelopmentConfig()
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitConfigError, "invalid logging configuration", err)
	}
	return cfg, log, nil
}

// newLauncher builds the sidecar launcher described by cfg.
func newLauncher(cfg *config.Config, log *logging.Logger) *sidecar.Launcher {
	opts := []sidecar.Option{
		sidecar.WithArgs(cfg.Sidecar.Args...),
		sidecar.WithEnv(cfg.Sidecar.Env),
		sidecar.WithLogger(log),
	}
	if cfg.Sidecar.LogDir != "" {
		opts = append(opts, sidecar.WithLogDir(cfg.Sidecar.LogDir))
	}
	return sidecar.NewLauncher(sidecar.NewLocator(cfg.Sidecar.SearchDirs...), opts...)
}
