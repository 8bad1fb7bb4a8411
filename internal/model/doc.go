// Package model defines the shared value types of pagenode-shell.
//
// This package contains pure data structures with no external dependencies:
// the port Source, the Resolution reported once discovery finishes, and the
// exit codes (ExitCode) together with the CLIError type that carries them
// from a fatal startup failure up to the process exit.
package model
