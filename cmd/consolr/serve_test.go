package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/history/sqlite"
	"github.com/loykin/consolr/internal/pidfile"
	"github.com/loykin/consolr/internal/process/processtest"
)

func TestServe_EndToEnd(t *testing.T) {
	rt := processtest.FakeRuntime(t, processtest.Console)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfgPath := filepath.Join(dir, "consolr.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`[server]
name = "e2e"
runtime = %q
jar = "server.jar"
stop_timeout = "5s"

[http]
listen = "127.0.0.1:0"
token = "tok"

[metrics]
enabled = true

[history]
enabled = true
sinks = [%q]
`, rt, "sqlite://"+dbPath)), 0o600))

	var out, logs lockedBuffer
	c := command{out: &out, errOut: &logs}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	errc := make(chan error, 1)
	go func() { errc <- c.Serve(ctx, ServeFlags{ConfigPath: cfgPath, Ready: ready}) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errc:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not become ready")
	}

	api := APIFlags{APIUrl: "http://" + addr + "/api", Token: "tok", APITimeout: 10 * time.Second}
	d, err := c.connect(api)
	require.NoError(t, err)
	tailHas := func(s string) func() bool {
		return func() bool {
			lines, err := d.Tail(ctx, 50)
			return err == nil && strings.Contains(strings.Join(lines, "\n"), s)
		}
	}

	require.NoError(t, c.Start(ctx, api))
	require.Eventually(t, tailHas("READY"), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Send(ctx, api, []string{"say", "hi"}))
	require.Eventually(t, tailHas("console: say hi"), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Status(ctx, StatusFlags{API: api, JSON: true}))
	assert.Contains(t, out.String(), `"running": true`)

	require.NoError(t, c.Stop(ctx, api))
	assert.Contains(t, out.String(), "server stopped (graceful)")

	// wrong token
	bad := api
	bad.Token = "nope"
	assert.Error(t, c.Start(ctx, bad))

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}

	sink, err := sqlite.New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	recs, err := sink.Recent(context.Background(), "e2e", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestServe_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolr.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nname = \"x\"\n"), 0o600))
	c := command{out: &lockedBuffer{}, errOut: &lockedBuffer{}}
	err := c.Serve(context.Background(), ServeFlags{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestServe_PidFileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "consolr.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[server]\njar = \"server.jar\"\n"), 0o600))
	pidPath := filepath.Join(dir, "consolr.pid")
	// pid 1 always exists on Unix
	require.NoError(t, os.WriteFile(pidPath, []byte("1\n"), 0o600))
	processtest.SkipIfNoShell(t)

	c := command{out: &lockedBuffer{}, errOut: &lockedBuffer{}}
	err := c.Serve(context.Background(), ServeFlags{ConfigPath: cfgPath, PidFile: pidPath})
	require.Error(t, err)
	assert.ErrorIs(t, err, pidfile.ErrRunning)
}
