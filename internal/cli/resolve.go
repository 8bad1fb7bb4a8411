// Package cli: resolve.go implements "pagenode-shell resolve".
//
// resolve runs discovery once, prints the backend port and exits. It is
// meant for scripts that need the port without the UI:
//
//	BACKEND_PORT=$(pagenode-shell resolve --keep)
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/discovery"
	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/port"
)

// resolveFlags holds the flag values for the resolve command.
type resolveFlags struct {
	timeout time.Duration // --timeout: overrides discovery.scanTimeout
	keep    bool          // --keep: leave the sidecar running on exit
}

// NewResolveCommand creates the "resolve" cobra command.
func NewResolveCommand() *cobra.Command {
	flags := &resolveFlags{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the backend port once and print it",
		Long: `Run backend port discovery once and print the result.

The text output is the bare port number. With --json the full resolution is
printed, including where the port came from. If discovery ends without a
port the command fails with exit code 5.

By default a spawned sidecar is killed before the command exits. With --keep
it is left running, detached from the shell. A kept sidecar writes its output
to files in sidecar.logDir (PAGENODE_SIDECAR_LOG_DIR), or in a pagenode-shell
directory under the system temp directory when that is not set.

Examples:
  pagenode-shell resolve
  pagenode-shell resolve --timeout 10s --json
  pagenode-shell resolve --keep`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0,
		"Give up waiting for the announcement after this long (default: discovery.scanTimeout)")
	cmd.Flags().BoolVar(&flags.keep, "keep", false, "Leave the sidecar running after the port is printed")

	return cmd
}

// runResolve is the main logic function for the resolve command.
func runResolve(ctx context.Context, out io.Writer, flags *resolveFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.timeout < 0 {
		return model.NewCLIError(model.ExitGeneralError, "--timeout must not be negative")
	}

	opts := discovery.OptionsFromConfig(cfg)
	if flags.timeout > 0 {
		opts.ScanTimeout = flags.timeout
	}

	if flags.keep && cfg.Sidecar.LogDir == "" {
		cfg.Sidecar.LogDir = defaultKeepLogDir()
	}

	state := port.NewState()
	task, err := discovery.New(state, newLauncher(cfg, log), opts, log).Start(ctx)
	if err != nil {
		logStartupError(log, err)
		return err
	}

	result, err := task.Wait(ctx)
	if err != nil {
		task.Cancel()
		result = settle(task)
	}
	finishSidecar(task, flags.keep, log)

	res := task.Resolution()
	log.Debug("discovery finished",
		zap.String("phase", result.Phase.String()),
		zap.Int("events", result.Consumed),
	)

	if !res.Resolved {
		if IsJSONOutput() {
			if err := printJSON(out, res); err != nil {
				return err
			}
		}
		return model.NewCLIError(model.ExitPortUnresolved, res.String())
	}

	if IsJSONOutput() {
		return printJSON(out, res)
	}
	_, err = fmt.Fprintln(out, res.Port)
	return err
}

// settle waits for a cancelled task to finish and returns its outcome.
func settle(task *discovery.Task) discovery.Result {
	<-task.Done()
	return task.Result()
}

// finishSidecar either kills the sidecar or leaves it running.
func finishSidecar(task *discovery.Task, keep bool, log *logging.Logger) {
	proc := task.Process()
	if proc == nil {
		return
	}
	if keep {
		proc.Release()
		log.Info("leaving backend sidecar running",
			zap.Int("pid", proc.Pid()),
			zap.String("stdout", proc.StdoutLog),
			zap.String("stderr", proc.StderrLog),
		)
		return
	}
	stopSidecar(task, log)
}

// defaultKeepLogDir is where a kept sidecar writes its output when no log
// directory is configured.
func defaultKeepLogDir() string {
	return filepath.Join(os.TempDir(), "pagenode-shell")
}
