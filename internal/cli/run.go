// Package cli: run.go implements "pagenode-shell run".
//
// run is the full startup sequence of the shell:
//  1. Load configuration and build the logger
//  2. Resolve the backend port (dev override or sidecar spawn)
//  3. Serve the port query endpoint to the UI layer
//  4. Keep running until SIGINT/SIGTERM, then stop the sidecar
//
// A sidecar that cannot be located or started aborts step 2 with its own
// exit code, before the endpoint ever listens.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pagenode/pagenode-shell/internal/discovery"
	"github.com/pagenode/pagenode-shell/internal/ipc"
	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/port"
)

// sidecarStopTimeout bounds how long run waits for a killed sidecar.
const sidecarStopTimeout = 5 * time.Second

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the backend and serve its port to the UI",
		Long: `Resolve the backend port and serve it on the port query endpoint until
interrupted.

Once the endpoint listens, its base URL is printed to stdout as
PAGENODE_ENDPOINT=<url> (or {"endpoint": "<url>"} with --json). The UI calls
GET /api/backend-port or POST /invoke/get_backend_port and receives
{"port": N}; 0 means the backend has not announced its port yet.

Examples:
  pagenode-shell run
  PAGENODE_BACKEND_PORT=8000 pagenode-shell run
  pagenode-shell run --config pagenode.yaml --verbose`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// runRun is the main logic function for the run command.
func runRun(ctx context.Context, out io.Writer) error {
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

	state := port.NewState()

	boot := discovery.New(state, newLauncher(cfg, log), discovery.OptionsFromConfig(cfg), log)
	task, err := boot.Start(ctx)
	if err != nil {
		logStartupError(log, err)
		return err
	}
	defer stopSidecar(task, log)

	server := ipc.NewServer(cfg.Endpoint.Listen, state, cfg.Endpoint.AllowOrigins,
		cfg.Logging.Development || verbose, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-server.Ready():
			return announceEndpoint(out, server)
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		watchDiscovery(gctx, task, log)
		return nil
	})
	if proc := task.Process(); proc != nil {
		g.Go(func() error {
			select {
			case <-proc.Exited():
				code, _ := proc.ExitCode()
				log.Warn("backend sidecar exited", zap.Int("pid", proc.Pid()), zap.Int("code", code))
			case <-gctx.Done():
			}
			return nil
		})
	}

	return g.Wait()
}

// logStartupError records why discovery could not start. Sidecar launch
// failures halt the shell and are logged as fatal.
func logStartupError(log *logging.Logger, err error) {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) && cliErr.Code.IsFatalStartup() {
		log.Error("fatal startup error", zap.Int("exitCode", int(cliErr.Code)), zap.Error(err))
		return
	}
	log.Error("discovery failed to start", zap.Error(err))
}

// announceEndpoint prints the endpoint base URL for the UI launcher.
func announceEndpoint(out io.Writer, server *ipc.Server) error {
	url := "http://" + server.Addr().String()
	if IsJSONOutput() {
		return printJSON(out, map[string]string{"endpoint": url})
	}
	_, err := fmt.Fprintf(out, "PAGENODE_ENDPOINT=%s\n", url)
	return err
}

// watchDiscovery logs the outcome of the discovery task. An unresolved
// port is reported but never stops the shell.
func watchDiscovery(ctx context.Context, task *discovery.Task, log *logging.Logger) {
	if _, err := task.Wait(ctx); err != nil {
		return
	}
	res := task.Resolution()
	if res.Resolved {
		log.Info("backend port ready", zap.Uint16("port", res.Port), zap.String("source", res.Source.String()))
		return
	}
	log.Warn("backend port unresolved, UI will keep seeing 0",
		zap.String("reason", res.Reason),
		zap.String("detail", res.Detail),
	)
}

// stopSidecar kills the sidecar spawned by task, if any, and waits briefly
// for it to exit.
func stopSidecar(task *discovery.Task, log *logging.Logger) {
	proc := task.Process()
	if proc == nil {
		return
	}
	task.Cancel()
	proc.Release()
	if err := proc.Kill(); err != nil {
		log.Warn("failed to kill backend sidecar", zap.Int("pid", proc.Pid()), zap.Error(err))
		return
	}
	select {
	case <-proc.Exited():
		log.Debug("backend sidecar stopped", zap.Int("pid", proc.Pid()))
	case <-time.After(sidecarStopTimeout):
		log.Warn("backend sidecar did not exit after kill", zap.Int("pid", proc.Pid()))
	}
}
