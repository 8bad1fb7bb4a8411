package sidecar

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
)

// eventBuffer is the capacity of the event channel. It only smooths bursts;
// a consumer that stops reading without calling Release still blocks the
// pumps once it fills.
const eventBuffer = 64

// Launcher locates and starts sidecar processes.
type Launcher struct {
	locator *Locator
	args    []string
	env     map[string]string
	logDir  string
	log     *logging.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithArgs sets the arguments passed to every spawned sidecar.
func WithArgs(args ...string) Option {
	return func(l *Launcher) { l.args = append([]string(nil), args...) }
}

// WithEnv adds variables to the sidecar's inherited environment.
func WithEnv(env map[string]string) Option {
	return func(l *Launcher) { l.env = env }
}

// WithLogDir makes spawned sidecars write stdout and stderr to
// <dir>/<name>.stdout.log and <dir>/<name>.stderr.log instead of pipes.
// Events are read back from those files. The child then keeps working
// after the parent has exited.
func WithLogDir(dir string) Option {
	return func(l *Launcher) { l.logDir = dir }
}

// WithLogger sets the logger used for process lifecycle messages.
func WithLogger(log *logging.Logger) Option {
	return func(l *Launcher) { l.log = log }
}

// NewLauncher creates a Launcher that resolves names with locator.
func NewLauncher(locator *Locator, opts ...Option) *Launcher {
	l := &Launcher{
		locator: locator,
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Spawn locates the sidecar called name and starts it with stdout and
// stderr captured. The returned channel delivers the process output as
// Events in the order it was produced and is closed once the process has
// closed both streams and exited.
//
// Both failure modes are fatal startup errors and come back as
// model.CLIError: ExitSidecarNotFound when no executable matches name, and
// ExitSidecarSpawnFailed when it exists but cannot be started.
//
// The process is not bound to ctx. Once started it runs until it exits on
// its own or the caller kills it through the returned Process.
func (l *Launcher) Spawn(ctx context.Context, name string) (*Process, <-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("spawn of backend sidecar %q cancelled", name), err)
	}

	path, err := l.locator.Locate(name)
	if err != nil {
		l.log.Error("backend sidecar not found",
			zap.String("sidecar", name),
			zap.Strings("dirs", l.locator.Dirs()),
		)
		return nil, nil, model.WrapCLIError(model.ExitSidecarNotFound,
			fmt.Sprintf("backend sidecar %q not found", name), err)
	}

	cmd := exec.Command(path, l.args...)
	cmd.Env = append(os.Environ(), l.envPairs()...)

	if l.logDir != "" {
		return l.spawnLogged(name, path, cmd)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to capture stdout of backend sidecar %q", name), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to capture stderr of backend sidecar %q", name), err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to spawn backend sidecar %q", name), err)
	}

	proc := l.started(name, path, cmd)
	events := make(chan Event, eventBuffer)
	proc.start(stdout, stderr, events)
	return proc, events, nil
}

// spawnLogged starts cmd with its output redirected to files in the log
// directory. The parent's copies of the file handles are closed once the
// child has them.
func (l *Launcher) spawnLogged(name, path string, cmd *exec.Cmd) (*Process, <-chan Event, error) {
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to create log directory for backend sidecar %q", name), err)
	}

	stdoutLog := filepath.Join(l.logDir, name+".stdout.log")
	stderrLog := filepath.Join(l.logDir, name+".stderr.log")

	stdout, err := createLog(stdoutLog)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to open stdout log of backend sidecar %q", name), err)
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := createLog(stderrLog)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to open stderr log of backend sidecar %q", name), err)
	}
	defer func() { _ = stderr.Close() }()

	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, model.WrapCLIError(model.ExitSidecarSpawnFailed,
			fmt.Sprintf("failed to spawn backend sidecar %q", name), err)
	}

	proc := l.started(name, path, cmd)
	proc.StdoutLog = stdoutLog
	proc.StderrLog = stderrLog
	proc.log.Debug("backend sidecar output redirected",
		zap.String("stdout", stdoutLog),
		zap.String("stderr", stderrLog),
	)

	events := make(chan Event, eventBuffer)
	proc.startTailing(events)
	return proc, events, nil
}

func (l *Launcher) started(name, path string, cmd *exec.Cmd) *Process {
	proc := newProcess(name, path, cmd, l.log.Named("sidecar").With(zap.String("sidecar", name)))
	proc.log.Info("backend sidecar started",
		zap.String("path", path),
		zap.Int("pid", proc.Pid()),
	)
	return proc
}

func createLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// envPairs renders the extra environment as sorted KEY=VALUE pairs.
func (l *Launcher) envPairs() []string {
	if len(l.env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(l.env))
	for k := range l.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+l.env[k])
	}
	return pairs
}
