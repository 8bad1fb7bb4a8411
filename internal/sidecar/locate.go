package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned when no executable matches the logical name.
var ErrNotFound = errors.New("sidecar executable not found")

// targetTriples maps GOOS/GOARCH to the target triple bundlers append to
// external binaries in development layouts
// (e.g. binaries/pagenode-backend-x86_64-unknown-linux-gnu).
var targetTriples = map[string]string{
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
}

// TargetTriple returns the target triple for the running platform, or ""
// when the platform has no known triple.
func TargetTriple() string {
	return targetTriples[runtime.GOOS+"/"+runtime.GOARCH]
}

// Locator resolves a sidecar's logical name to an executable path.
//
// Directories are searched in order: the configured dirs first, then the
// directory containing the shell's own executable (where installers place
// bundled sidecars). In each directory the plain name is tried before the
// target-triple suffixed name.
type Locator struct {
	dirs []string
}

// NewLocator creates a Locator that searches dirs and then the shell
// executable's directory.
func NewLocator(dirs ...string) *Locator {
	all := append([]string(nil), dirs...)
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		all = append(all, filepath.Dir(exe))
	}
	return &Locator{dirs: all}
}

// NewLocatorInDirs creates a Locator that searches exactly dirs.
func NewLocatorInDirs(dirs ...string) *Locator {
	return &Locator{dirs: append([]string(nil), dirs...)}
}

// Dirs returns the directories the Locator searches, in order.
func (l *Locator) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Candidates returns every path Locate would try for name, in order.
func (l *Locator) Candidates(name string) []string {
	names := []string{name}
	if triple := TargetTriple(); triple != "" {
		names = append(names, name+"-"+triple)
	}
	if runtime.GOOS == "windows" {
		for i, n := range names {
			if !strings.HasSuffix(strings.ToLower(n), ".exe") {
				names[i] = n + ".exe"
			}
		}
	}

	paths := make([]string, 0, len(l.dirs)*len(names))
	for _, dir := range l.dirs {
		for _, n := range names {
			paths = append(paths, filepath.Join(dir, n))
		}
	}
	return paths
}

// Locate returns the absolute path of the first candidate that exists and
// is executable. The error wraps ErrNotFound and lists what was searched.
func (l *Locator) Locate(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty sidecar name", ErrNotFound)
	}

	candidates := l.Candidates(name)
	for _, path := range candidates {
		if isExecutable(path) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %q (searched %s)", ErrNotFound, name, strings.Join(candidates, ", "))
}

// isExecutable reports whether path is a regular file the current user may
// execute. Windows has no execute bit, so any regular file qualifies there.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
