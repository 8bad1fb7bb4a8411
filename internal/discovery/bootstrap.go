package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/config"
	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/port"
	"github.com/pagenode/pagenode-shell/internal/sidecar"
)

// Spawner starts a sidecar by logical name. *sidecar.Launcher implements it.
type Spawner interface {
	Spawn(ctx context.Context, name string) (*sidecar.Process, <-chan sidecar.Event, error)
}

// Options control a Bootstrap.
type Options struct {
	// SidecarName is the logical name of the backend executable.
	SidecarName string

	// Override is the raw PAGENODE_BACKEND_PORT value; OverridePresent
	// tells whether the variable was set.
	Override        string
	OverridePresent bool

	// ScanTimeout bounds the announcement scan. Zero waits forever.
	ScanTimeout time.Duration
}

// OptionsFromConfig extracts the discovery options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	raw, present := cfg.OverrideValue()
	return Options{
		SidecarName:     cfg.Sidecar.Name,
		Override:        raw,
		OverridePresent: present,
		ScanTimeout:     cfg.Discovery.ScanTimeout.Std(),
	}
}

// Bootstrap resolves the backend port once at startup.
type Bootstrap struct {
	opts    Options
	state   *port.State
	spawner Spawner
	log     *logging.Logger
}

// New creates a Bootstrap writing to state and starting sidecars with
// spawner.
func New(state *port.State, spawner Spawner, opts Options, log *logging.Logger) *Bootstrap {
	if log == nil {
		log = logging.NewNop()
	}
	return &Bootstrap{
		opts:    opts,
		state:   state,
		spawner: spawner,
		log:     log.Named("discovery"),
	}
}

// Start runs discovery.
//
// The override is checked synchronously first; when it applies, the
// returned Task is already done and no sidecar is spawned. Otherwise the
// sidecar is spawned synchronously, so a missing or unstartable executable
// is returned right here as a fatal model.CLIError, and the announcement
// scan continues in the background of the returned Task.
//
// ctx bounds the background scan: cancelling it aborts a scan that is still
// waiting. It does not stop the sidecar process.
func (b *Bootstrap) Start(ctx context.Context) (*Task, error) {
	if p, ok := ResolveOverride(b.opts.Override, b.opts.OverridePresent, b.state); ok {
		b.log.Info("backend port resolved from override",
			zap.String("env", OverrideEnv),
			zap.Uint16("port", p),
		)
		return completedTask(model.SourceOverride, Result{Phase: PhaseResolved, Port: p}), nil
	}
	if b.opts.OverridePresent {
		// Malformed overrides are deliberately not fatal.
		b.log.Debug("ignoring malformed override, starting sidecar",
			zap.String("env", OverrideEnv),
			zap.String("value", b.opts.Override),
		)
	}

	proc, events, err := b.spawner.Spawn(ctx, b.opts.SidecarName)
	if err != nil {
		return nil, err
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if b.opts.ScanTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, b.opts.ScanTimeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}

	task := &Task{
		source: model.SourceSidecar,
		proc:   proc,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go b.scan(scanCtx, task, events)
	return task, nil
}

// scan owns the Scanner for the lifetime of the task.
func (b *Bootstrap) scan(ctx context.Context, task *Task, events <-chan sidecar.Event) {
	defer task.cancel()

	scanner := NewScanner(b.state, b.log.With(zap.String("sidecar", b.opts.SidecarName)))
	result := scanner.Run(ctx, events)
	if task.proc != nil {
		task.proc.Release()
	}

	switch {
	case result.Phase == PhaseResolved:
		b.log.Info("backend port resolved from sidecar",
			zap.String("sidecar", b.opts.SidecarName),
			zap.Uint16("port", result.Port),
		)
	case result.Reason == ReasonTimeout:
		b.log.Warn("backend sidecar did not announce a port in time",
			zap.String("sidecar", b.opts.SidecarName),
			zap.Duration("timeout", b.opts.ScanTimeout),
		)
	default:
		// The error case was already reported by the scanner; end of
		// stream and cancellation stay quiet.
		b.log.Debug("backend port scan aborted",
			zap.String("sidecar", b.opts.SidecarName),
			zap.String("reason", string(result.Reason)),
		)
	}

	task.finish(result)
}

// Task tracks one discovery run. For the override path it is done on
// return from Start; for the sidecar path it finishes when the scan does.
type Task struct {
	source model.Source
	proc   *sidecar.Process
	cancel context.CancelFunc

	done   chan struct{}
	result Result
}

func completedTask(source model.Source, result Result) *Task {
	t := &Task{
		source: source,
		cancel: func() {},
		done:   make(chan struct{}),
	}
	t.finish(result)
	return t
}

func (t *Task) finish(result Result) {
	t.result = result
	close(t.done)
}

// Source returns the path this task took.
func (t *Task) Source() model.Source {
	return t.source
}

// Process returns the spawned sidecar, or nil on the override path.
func (t *Task) Process() *sidecar.Process {
	return t.proc
}

// Done returns a channel closed when discovery has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome. While the scan is still running it reports
// PhaseScanning.
func (t *Task) Result() Result {
	select {
	case <-t.done:
		return t.result
	default:
		return Result{Phase: PhaseScanning}
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{Phase: PhaseScanning}, ctx.Err()
	}
}

// Cancel aborts a scan that is still running. The sidecar keeps running.
func (t *Task) Cancel() {
	t.cancel()
}

// Resolution converts the task outcome into the externally reported form.
func (t *Task) Resolution() model.Resolution {
	result := t.Result()
	res := model.Resolution{
		Port:     result.Port,
		Resolved: result.Phase == PhaseResolved,
		Source:   t.source,
		Reason:   string(result.Reason),
	}
	if result.Phase == PhaseScanning {
		res.Reason = "pending"
	}
	if result.Err != nil {
		res.Detail = result.Err.Error()
	}
	return res
}
