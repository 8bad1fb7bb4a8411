package sidecar

import "fmt"

// Kind tags the variant held by an Event.
type Kind int

const (
	// KindStdout carries one line the sidecar wrote to standard output.
	KindStdout Kind = iota + 1

	// KindStderr carries one line the sidecar wrote to standard error.
	KindStderr

	// KindError reports a failure reading the sidecar's output.
	KindError

	// KindTerminated reports that the process exited; Code holds its exit
	// status (-1 when it was killed by a signal).
	KindTerminated
)

// String returns the event kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindError:
		return "error"
	case KindTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one item on a sidecar's output stream. Only the fields that
// belong to Kind are set. The end of the stream is signalled by the event
// channel being closed, never by an Event value.
type Event struct {
	Kind Kind
	Line string
	Err  error
	Code int
}

// Stdout builds a KindStdout event.
func Stdout(line string) Event { return Event{Kind: KindStdout, Line: line} }

// Stderr builds a KindStderr event.
func Stderr(line string) Event { return Event{Kind: KindStderr, Line: line} }

// Failure builds a KindError event.
func Failure(err error) Event { return Event{Kind: KindError, Err: err} }

// Terminated builds a KindTerminated event.
func Terminated(code int) Event { return Event{Kind: KindTerminated, Code: code} }
