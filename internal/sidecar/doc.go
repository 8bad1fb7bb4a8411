// Package sidecar starts the backend executable and turns its output into
// an ordered stream of events.
//
// A sidecar is located by logical name (Locator), started by a Launcher and
// represented by a Process. Everything the process writes is delivered as
// Event values: one KindStdout or KindStderr event per line, KindError when
// a pipe cannot be read, and KindTerminated with the exit status. The event
// channel is closed after that, which is how consumers observe the end of
// the stream.
//
// Lines longer than 1 MiB are cut at that size; the rest of such a line is
// dropped and reading carries on.
//
// A consumer that stops early calls Process.Release so the remaining output
// is drained in the background instead of stalling the child.
//
// With WithLogDir the child writes to files instead of pipes and the events
// are read back by following those files. Such a child outlives the parent
// without losing its output.
package sidecar
