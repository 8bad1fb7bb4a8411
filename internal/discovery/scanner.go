package discovery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/port"
	"github.com/pagenode/pagenode-shell/internal/sidecar"
)

// Phase is the state of the announcement scanner.
//
//	Scanning --PORT=<n> on stdout--> Resolved
//	Scanning --other stdout/stderr--> Scanning
//	Scanning --error event / end of stream / ctx done--> Aborted
//
// Resolved and Aborted are terminal.
type Phase int

const (
	PhaseScanning Phase = iota
	PhaseResolved
	PhaseAborted
)

// String returns the phase name used in logs.
func (p Phase) String() string {
	switch p {
	case PhaseScanning:
		return "scanning"
	case PhaseResolved:
		return "resolved"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// AbortReason explains why a scan ended without a port.
type AbortReason string

const (
	ReasonNone        AbortReason = ""
	ReasonError       AbortReason = "error"
	ReasonEndOfStream AbortReason = "end-of-stream"
	ReasonTimeout     AbortReason = "timeout"
	ReasonCancelled   AbortReason = "cancelled"
)

// Result is the outcome of a scan.
type Result struct {
	Phase  Phase
	Port   uint16
	Reason AbortReason
	Err    error

	// Consumed counts the events the scanner accepted, including the one
	// that ended the scan.
	Consumed int
}

// Scanner watches a sidecar's event stream for the port announcement and
// records the first valid one in the shared port State.
//
// A Scanner is single-use and not safe for concurrent Feed calls; one
// goroutine owns it for the duration of the scan.
type Scanner struct {
	state  *port.State
	log    *logging.Logger
	result Result
}

// NewScanner creates a Scanner in PhaseScanning that writes to state.
func NewScanner(state *port.State, log *logging.Logger) *Scanner {
	if log == nil {
		log = logging.NewNop()
	}
	return &Scanner{state: state, log: log}
}

// Phase returns the current phase.
func (s *Scanner) Phase() Phase {
	return s.result.Phase
}

// Result returns the outcome so far.
func (s *Scanner) Result() Result {
	return s.result
}

// Feed applies one event. Events that arrive after a terminal phase are
// ignored and not counted.
func (s *Scanner) Feed(ev sidecar.Event) Phase {
	if s.result.Phase != PhaseScanning {
		return s.result.Phase
	}
	s.result.Consumed++

	switch ev.Kind {
	case sidecar.KindStdout:
		p, ok := port.ParseAnnouncement(ev.Line)
		if !ok {
			return s.result.Phase
		}
		if !s.state.Set(p) {
			// Another writer got there first; the stored value stands.
			s.log.Warn("backend port already resolved, ignoring announcement",
				zap.Uint16("announced", p),
				zap.Uint16("port", s.state.Get()),
			)
			p = s.state.Get()
		}
		s.result.Phase = PhaseResolved
		s.result.Port = p

	case sidecar.KindError:
		s.log.Error("backend sidecar error", zap.Error(ev.Err))
		s.abort(ReasonError, ev.Err)

	case sidecar.KindStderr:
		s.log.Debug("backend sidecar stderr", zap.String("line", ev.Line))

	case sidecar.KindTerminated:
		// The stream is about to close; End decides the outcome.
		s.log.Debug("backend sidecar terminated before announcing a port", zap.Int("code", ev.Code))
	}
	return s.result.Phase
}

// End signals that the stream closed. A scan still in progress aborts.
func (s *Scanner) End() Phase {
	if s.result.Phase == PhaseScanning {
		s.abort(ReasonEndOfStream, nil)
	}
	return s.result.Phase
}

// Run consumes events until the scan reaches a terminal phase. It stops
// reading at the first announcement, so later events stay in the channel.
// Cancelling ctx aborts the scan with ReasonTimeout (deadline) or
// ReasonCancelled.
func (s *Scanner) Run(ctx context.Context, events <-chan sidecar.Event) Result {
	for s.result.Phase == PhaseScanning {
		select {
		case <-ctx.Done():
			reason := ReasonCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = ReasonTimeout
			}
			s.abort(reason, ctx.Err())

		case ev, ok := <-events:
			if !ok {
				s.End()
				continue
			}
			s.Feed(ev)
		}
	}
	return s.result
}

func (s *Scanner) abort(reason AbortReason, err error) {
	s.result.Phase = PhaseAborted
	s.result.Reason = reason
	s.result.Err = err
}
