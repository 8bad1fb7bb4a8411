package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagenode/pagenode-shell/internal/model"
)

// pagenodeEnv lists every variable the config layer reads.
var pagenodeEnv = []string{
	"PAGENODE_BACKEND_PORT",
	"PAGENODE_SIDECAR_NAME",
	"PAGENODE_SIDECAR_ARGS",
	"PAGENODE_SIDECAR_SEARCH_DIRS",
	"PAGENODE_SIDECAR_ENV",
	"PAGENODE_SIDECAR_LOG_DIR",
	"PAGENODE_DISCOVERY_SCAN_TIMEOUT",
	"PAGENODE_ENDPOINT_LISTEN",
	"PAGENODE_ENDPOINT_ALLOW_ORIGINS",
	"PAGENODE_LOGGING_LEVEL",
	"PAGENODE_LOGGING_DEVELOPMENT",
}

// cleanEnv clears all PAGENODE_* variables for the test and keeps the
// logger quiet.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range pagenodeEnv {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("PAGENODE_LOGGING_LEVEL", "error")
}

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine while the test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(ctx context.Context, out io.Writer, args ...string) error {
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// runCommand is executeCommand with a background context and a fresh
// buffer.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := executeCommand(context.Background(), &out, args...)
	return out.String(), err
}

// requireExitCode asserts that err is a CLIError carrying code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected *model.CLIError, got %T: %v", err, err)
	require.Equal(t, code, cliErr.Code, "unexpected exit code: %v", err)
}

// fakeBackend writes an executable pagenode-backend script into a temp
// dir, points the sidecar search path at it and returns the dir.
func fakeBackend(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script sidecars require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "pagenode-backend")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	t.Setenv("PAGENODE_SIDECAR_SEARCH_DIRS", dir)
	return dir
}
