package model

import "fmt"

// Source identifies which startup path produced the backend port.
//
// The two paths are mutually exclusive: a valid dev override short-circuits
// the sidecar path entirely, so at most one of them ever writes the port.
type Source string

const (
	// SourceOverride means the port came from PAGENODE_BACKEND_PORT.
	SourceOverride Source = "override"

	// SourceSidecar means the port was scraped from the sidecar's stdout.
	SourceSidecar Source = "sidecar"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// Resolution is the externally visible outcome of backend port discovery.
// It is what the resolve command prints and what the run command logs once
// the discovery task finishes.
type Resolution struct {
	// Port is the resolved backend port. 0 means "not yet resolved".
	Port uint16 `json:"port"`

	// Resolved reports whether discovery recorded a port. An override of
	// "0" is resolved even though Port is 0.
	Resolved bool `json:"resolved"`

	// Source is the path that ran (override or sidecar).
	Source Source `json:"source"`

	// Reason explains why an unresolved scan stopped (e.g. "error",
	// "end-of-stream", "timeout"). Empty when resolved.
	Reason string `json:"reason,omitempty"`

	// Detail carries the underlying error text for an aborted scan.
	Detail string `json:"detail,omitempty"`
}

// String returns a one-line human-readable summary of the resolution.
func (r Resolution) String() string {
	if r.Resolved {
		return fmt.Sprintf("backend port %d (via %s)", r.Port, r.Source)
	}
	if r.Detail != "" {
		return fmt.Sprintf("backend port unresolved (via %s): %s: %s", r.Source, r.Reason, r.Detail)
	}
	return fmt.Sprintf("backend port unresolved (via %s): %s", r.Source, r.Reason)
}

// ExitCode defines the process exit codes of pagenode-shell.
// These codes let dev scripts tell a missing sidecar apart from a
// configuration mistake or a sidecar that never announced its port.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration file or environment
	// could not be loaded or failed validation.
	ExitConfigError ExitCode = 2

	// ExitSidecarNotFound indicates the backend executable could not be
	// located. This is a fatal startup failure.
	ExitSidecarNotFound ExitCode = 3

	// ExitSidecarSpawnFailed indicates the backend executable was found
	// but could not be started. This is a fatal startup failure.
	ExitSidecarSpawnFailed ExitCode = 4

	// ExitPortUnresolved indicates discovery finished without a port.
	ExitPortUnresolved ExitCode = 5

	// ExitPortAllocationFailed indicates no free port could be found.
	ExitPortAllocationFailed ExitCode = 6

	// ExitEndpointFailed indicates the port query endpoint could not
	// listen or stopped with an error.
	ExitEndpointFailed ExitCode = 7
)

// IsFatalStartup reports whether the code denotes a failure that must halt
// application startup rather than degrade it.
func (c ExitCode) IsFatalStartup() bool {
	return c == ExitSidecarNotFound || c == ExitSidecarSpawnFailed
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
