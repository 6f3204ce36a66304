// Package processtest provides helpers for tests that need a stand-in for the
// server runtime.
package processtest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Scripts understood by FakeRuntime. Each one ignores the runtime arguments.
const (
	// Console prints READY, echoes every console line and exits on "stop".
	Console = `echo READY
while IFS= read -r line; do
  echo "console: $line"
  if [ "$line" = "stop" ]; then
    echo "Stopping server"
    exit 0
  fi
done
`
	// Hung prints READY and then never reads stdin nor exits on its own.
	Hung = `echo READY
exec sleep 600
`
	// ClosedStdin closes its stdin before printing READY and hanging.
	ClosedStdin = `exec 0<&-
echo READY
exec sleep 600
`
)

// SkipIfNoShell skips tests that rely on /bin/sh.
func SkipIfNoShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a Unix-like shell")
	}
}

// FakeRuntime writes an executable /bin/sh script named "java" into a fresh
// temp dir and returns its path, suitable for process.Spec.Runtime.
func FakeRuntime(t testing.TB, script string) string {
	t.Helper()
	SkipIfNoShell(t)
	path := filepath.Join(t.TempDir(), "java")
	// #nosec G306
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake runtime: %v", err)
	}
	return path
}
