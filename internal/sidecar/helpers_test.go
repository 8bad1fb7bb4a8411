package sidecar

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// skipOnWindows skips tests that rely on executable shell scripts.
func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script sidecars require a POSIX shell")
	}
}

// writeScript creates an executable /bin/sh script called name in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// collect reads events until the channel closes or the timeout expires.
func collect(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()

	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("event stream did not end within %s; got %d events", timeout, len(got))
			return nil
		}
	}
}

// linesOf returns the lines of all events of the given kind, in order.
func linesOf(events []Event, kind Kind) []string {
	var lines []string
	for _, ev := range events {
		if ev.Kind == kind {
			lines = append(lines, ev.Line)
		}
	}
	return lines
}
