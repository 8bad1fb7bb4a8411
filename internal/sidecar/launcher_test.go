package sidecar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pagenode/pagenode-shell/internal/logging"
	"github.com/pagenode/pagenode-shell/internal/model"
)

// requireExitCode asserts that err is a CLIError with the given code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected *model.CLIError, got %T", err)
	assert.Equal(t, code, cliErr.Code)
}

// TestSpawn_NotFound verifies a missing executable is a fatal
// ExitSidecarNotFound error and no process is returned.
func TestSpawn_NotFound(t *testing.T) {
	launcher := NewLauncher(NewLocatorInDirs(t.TempDir()))

	proc, events, err := launcher.Spawn(context.Background(), "pagenode-backend")
	requireExitCode(t, err, model.ExitSidecarNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Nil(t, proc)
	assert.Nil(t, events)
}

// TestSpawn_NotFoundLogsSearchDirs verifies the failed lookup is logged
// with every directory that was searched.
func TestSpawn_NotFoundLogsSearchDirs(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logging.Logger{Logger: zap.New(core)}

	_, _, err := NewLauncher(NewLocatorInDirs(first, second), WithLogger(log)).
		Spawn(context.Background(), "pagenode-backend")
	requireExitCode(t, err, model.ExitSidecarNotFound)

	entries := logs.FilterMessage("backend sidecar not found").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "pagenode-backend", fields["sidecar"])
	assert.Equal(t, []interface{}{first, second}, fields["dirs"])
}

// TestSpawn_StartFailure verifies that an executable the OS refuses to run
// is a fatal ExitSidecarSpawnFailed error.
func TestSpawn_StartFailure(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	// Execute bit set, but no shebang and not a binary: exec fails.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pagenode-backend"), []byte{0x00, 0x01, 0x02}, 0o755))

	_, _, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	requireExitCode(t, err, model.ExitSidecarSpawnFailed)
}

// TestSpawn_CancelledContext verifies a cancelled context prevents the spawn.
func TestSpawn_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewLauncher(NewLocatorInDirs(t.TempDir())).Spawn(ctx, "pagenode-backend")
	requireExitCode(t, err, model.ExitSidecarSpawnFailed)
}

// TestSpawn_EventStream verifies stdout lines arrive in order, stderr is
// captured separately, and the stream ends with the exit status.
func TestSpawn_EventStream(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `echo "starting up"
echo "warming cache" >&2
echo "PORT=5173"
echo "ready"
exit 3`)

	proc, events, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)
	assert.NotZero(t, proc.Pid())

	got := collect(t, events, 10*time.Second)
	assert.Equal(t, []string{"starting up", "PORT=5173", "ready"}, linesOf(got, KindStdout))
	assert.Equal(t, []string{"warming cache"}, linesOf(got, KindStderr))

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, KindTerminated, last.Kind)
	assert.Equal(t, 3, last.Code)

	<-proc.Exited()
	code, waitErr := proc.ExitCode()
	assert.Equal(t, 3, code)
	assert.NoError(t, waitErr)
}

// TestSpawn_ArgsAndEnv verifies configured arguments and environment
// reach the child.
func TestSpawn_ArgsAndEnv(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `echo "arg=$1"
echo "env=$PAGENODE_TEST_VALUE"`)

	launcher := NewLauncher(NewLocatorInDirs(dir),
		WithArgs("--port-file", "none"),
		WithEnv(map[string]string{"PAGENODE_TEST_VALUE": "hello"}),
	)
	_, events, err := launcher.Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)

	got := linesOf(collect(t, events, 10*time.Second), KindStdout)
	assert.Equal(t, []string{"arg=--port-file", "env=hello"}, got)
}

// TestSpawn_InvalidUTF8 verifies bytes that are not UTF-8 are replaced
// instead of dropping the line.
func TestSpawn_InvalidUTF8(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `printf 'caf\351\n'`)

	_, events, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)

	got := linesOf(collect(t, events, 10*time.Second), KindStdout)
	require.Len(t, got, 1)
	assert.Equal(t, "caf\uFFFD", got[0])
}

// TestSpawn_OverlongStderrLine verifies a line beyond the size cap is cut
// and the stream carries on to the announcement without a KindError.
func TestSpawn_OverlongStderrLine(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `head -c 2000000 /dev/zero | tr '\0' x >&2
echo >&2
echo "after" >&2
echo PORT=5173`)

	_, events, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)

	got := collect(t, events, 20*time.Second)
	assert.Empty(t, linesOf(got, KindError))
	assert.Equal(t, []string{"PORT=5173"}, linesOf(got, KindStdout))

	stderr := linesOf(got, KindStderr)
	require.Len(t, stderr, 2)
	assert.Len(t, stderr[0], maxLineSize)
	assert.Equal(t, strings.Repeat("x", 16), stderr[0][:16])
	assert.Equal(t, "after", stderr[1])
}

// TestSpawn_LogDirEventStream verifies that with a log directory the
// output is written to files and still delivered as events.
func TestSpawn_LogDirEventStream(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	logDir := filepath.Join(t.TempDir(), "logs")
	writeScript(t, dir, "pagenode-backend", `echo "starting up"
echo "warming cache" >&2
echo "PORT=5173"
printf 'no newline'
exit 2`)

	proc, events, err := NewLauncher(NewLocatorInDirs(dir), WithLogDir(logDir)).
		Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logDir, "pagenode-backend.stdout.log"), proc.StdoutLog)
	assert.Equal(t, filepath.Join(logDir, "pagenode-backend.stderr.log"), proc.StderrLog)

	got := collect(t, events, 10*time.Second)
	assert.Equal(t, []string{"starting up", "PORT=5173", "no newline"}, linesOf(got, KindStdout))
	assert.Equal(t, []string{"warming cache"}, linesOf(got, KindStderr))

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, KindTerminated, last.Kind)
	assert.Equal(t, 2, last.Code)

	data, err := os.ReadFile(proc.StdoutLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PORT=5173")
}

// TestSpawn_LogDirOutlivesReader verifies a sidecar started with a log
// directory has no pipe back to the parent, so it keeps writing after the
// reader has gone away.
func TestSpawn_LogDirOutlivesReader(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	logDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "marker")
	writeScript(t, dir, "pagenode-backend", `echo PORT=5173
sleep 0.5
echo "still alive"
if [ -p /dev/stdout ]; then echo piped > "`+marker+`"; else echo detached > "`+marker+`"; fi`)

	proc, events, err := NewLauncher(NewLocatorInDirs(dir), WithLogDir(logDir)).
		Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, Stdout("PORT=5173"), ev)
	case <-time.After(10 * time.Second):
		t.Fatal("no announcement from sidecar")
	}
	proc.Release()

	select {
	case <-proc.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("released sidecar did not run to completion")
	}
	code, _ := proc.ExitCode()
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "detached\n", string(got))

	data, err := os.ReadFile(proc.StdoutLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still alive")
}

// TestSpawn_LogDirUnwritable verifies a log directory that cannot be
// created is a spawn failure.
func TestSpawn_LogDirUnwritable(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `echo PORT=5173`)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, _, err := NewLauncher(NewLocatorInDirs(dir), WithLogDir(filepath.Join(blocker, "logs"))).
		Spawn(context.Background(), "pagenode-backend")
	requireExitCode(t, err, model.ExitSidecarSpawnFailed)
}

// TestProcess_ReleaseDrainsOutput verifies that a released process keeps
// running to completion even though nobody reads its events: the pumps must
// drain the pipes so the child never blocks on write.
func TestProcess_ReleaseDrainsOutput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `echo PORT=5173
i=0
while [ $i -lt 20000 ]; do
  echo "log line $i"
  i=$((i+1))
done`)

	proc, events, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, Stdout("PORT=5173"), first)
	proc.Release()
	proc.Release() // idempotent

	select {
	case <-proc.Exited():
	case <-time.After(20 * time.Second):
		t.Fatal("released sidecar did not run to completion")
	}
	code, _ := proc.ExitCode()
	assert.Equal(t, 0, code)
}

// TestProcess_Kill verifies the host can tear the sidecar down.
func TestProcess_Kill(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeScript(t, dir, "pagenode-backend", `echo PORT=5173
exec sleep 30`)

	proc, events, err := NewLauncher(NewLocatorInDirs(dir)).Spawn(context.Background(), "pagenode-backend")
	require.NoError(t, err)
	<-events
	proc.Release()

	code, _ := proc.ExitCode()
	assert.Equal(t, -1, code, "exit code is unknown while running")

	require.NoError(t, proc.Kill())
	select {
	case <-proc.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("killed sidecar did not exit")
	}
	assert.NoError(t, proc.Kill(), "killing an exited process is not an error")
}

// TestKind_String verifies log names for event kinds.
func TestKind_String(t *testing.T) {
	assert.Equal(t, "stdout", KindStdout.String())
	assert.Equal(t, "stderr", KindStderr.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "terminated", KindTerminated.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
