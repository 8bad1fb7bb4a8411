package sidecar

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/logging"
)

// tailInterval is how often a log file is polled for new output.
const tailInterval = 50 * time.Millisecond

// Process is a running sidecar. Its lifetime is independent of whoever
// consumes its events: the scanner may stop reading long before the
// process exits.
type Process struct {
	Name string
	Path string

	// StdoutLog and StderrLog are the files the process writes to when it
	// was started with WithLogDir. Both are empty for piped output.
	StdoutLog string
	StderrLog string

	cmd *exec.Cmd
	log *logging.Logger

	// released is closed by Release; pumps then discard output instead of
	// delivering it.
	released    chan struct{}
	releaseOnce sync.Once

	// exited is closed after cmd.Wait returns.
	exited   chan struct{}
	exitCode int
	exitErr  error
}

func newProcess(name, path string, cmd *exec.Cmd, log *logging.Logger) *Process {
	return &Process{
		Name:     name,
		Path:     path,
		cmd:      cmd,
		log:      log,
		released: make(chan struct{}),
		exited:   make(chan struct{}),
		exitCode: -1,
	}
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Release tells the process that nobody reads its events any more. Output
// keeps being drained (and dropped) so the child never blocks on a full
// pipe. Safe to call more than once.
func (p *Process) Release() {
	p.releaseOnce.Do(func() { close(p.released) })
}

// Exited returns a channel that is closed once the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitCode returns the exit status and the error from Wait. It is only
// meaningful after Exited is closed; before that it returns -1.
func (p *Process) ExitCode() (int, error) {
	select {
	case <-p.exited:
		return p.exitCode, p.exitErr
	default:
		return -1, nil
	}
}

// Kill terminates the process. Killing a process that already exited is
// not an error.
func (p *Process) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill backend sidecar %q (pid %d): %w", p.Name, p.Pid(), err)
	}
	p.log.Info("backend sidecar killed", zap.Int("pid", p.Pid()))
	return nil
}

// start launches the pump goroutines and the waiter that closes events.
// exec.Cmd requires all pipe reads to finish before Wait, so the waiter
// joins both pumps first.
func (p *Process) start(stdout, stderr io.Reader, events chan<- Event) {
	var pumps sync.WaitGroup
	pumps.Add(2)
	go p.pump(stdout, KindStdout, events, &pumps)
	go p.pump(stderr, KindStderr, events, &pumps)

	go func() {
		pumps.Wait()
		p.wait()
		p.finish(events)
	}()
}

// startTailing is start for a process writing to log files. The child owns
// its output files, so Wait runs right away and the tails stop once the
// process has exited and the files are read to the end.
func (p *Process) startTailing(events chan<- Event) {
	go p.wait()

	var tails sync.WaitGroup
	tails.Add(2)
	go p.tail(p.StdoutLog, KindStdout, events, &tails)
	go p.tail(p.StderrLog, KindStderr, events, &tails)

	go func() {
		tails.Wait()
		<-p.exited
		p.finish(events)
	}()
}

// wait reaps the process and records its exit status.
func (p *Process) wait() {
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero status is reported through the code, not as a
		// failure to wait.
		err = nil
	}
	p.exitCode = code
	p.exitErr = err
	close(p.exited)

	p.log.Info("backend sidecar exited", zap.Int("code", code))
}

func (p *Process) finish(events chan<- Event) {
	p.emit(events, Terminated(p.exitCode))
	close(events)
}

// pump splits r into lines and emits one event per line. Once the process
// is released lines are read and dropped so the child never blocks on a
// full pipe. A read failure is emitted as KindError, after which the rest
// of the stream is discarded.
func (p *Process) pump(r io.Reader, kind Kind, events chan<- Event, wg *sync.WaitGroup) {
	defer wg.Done()

	lr := newLineReader(r)
	for {
		line, err := lr.next()
		if err != nil {
			if tail, ok := lr.flush(); ok {
				p.deliver(events, kind, tail)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.emit(events, Failure(fmt.Errorf("read %s of backend sidecar %q: %w", kind, p.Name, err)))
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		p.deliver(events, kind, line)
	}
}

// tail follows a log file the process writes to. It stops when the process
// is released, since the file keeps the output, or once the process has
// exited and the file is read to the end.
func (p *Process) tail(path string, kind Kind, events chan<- Event, wg *sync.WaitGroup) {
	defer wg.Done()

	f, err := os.Open(path)
	if err != nil {
		p.emit(events, Failure(fmt.Errorf("open %s log of backend sidecar %q: %w", kind, p.Name, err)))
		return
	}
	defer func() { _ = f.Close() }()

	lr := newLineReader(f)
	for {
		line, err := lr.next()
		if err == nil {
			if !p.emit(events, Event{Kind: kind, Line: line}) {
				return
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			p.emit(events, Failure(fmt.Errorf("read %s log of backend sidecar %q: %w", kind, p.Name, err)))
			return
		}

		select {
		case <-p.released:
			return
		case <-p.exited:
			p.drain(lr, kind, events)
			return
		case <-time.After(tailInterval):
		}
	}
}

// drain emits whatever is left in a finished log file.
func (p *Process) drain(lr *lineReader, kind Kind, events chan<- Event) {
	for {
		line, err := lr.next()
		if err != nil {
			break
		}
		p.deliver(events, kind, line)
	}
	if tail, ok := lr.flush(); ok {
		p.deliver(events, kind, tail)
	}
}

func (p *Process) deliver(events chan<- Event, kind Kind, line string) {
	if !p.emit(events, Event{Kind: kind, Line: line}) {
		p.log.Debug("dropped sidecar output", zap.Stringer("stream", kind), zap.String("line", line))
	}
}

// emit delivers ev unless the consumer has released the process. It
// reports whether the event was delivered.
func (p *Process) emit(events chan<- Event, ev Event) bool {
	select {
	case <-p.released:
		return false
	default:
	}
	select {
	case events <- ev:
		return true
	case <-p.released:
		return false
	}
}
