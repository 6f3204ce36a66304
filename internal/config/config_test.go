package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/process"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "consolr.toml")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeTOML(t, `
[server]
jar = "server.jar"
`))
	require.NoError(t, err)
	s := cfg.Server
	assert.Equal(t, "server.jar", s.Jar)
	assert.Equal(t, process.DefaultName, s.Name)
	assert.Equal(t, "java", s.Runtime)
	assert.Equal(t, "2G", s.MinMem)
	assert.Equal(t, "4G", s.MaxMem)
	assert.Equal(t, "stop", s.StopCommand)
	assert.Equal(t, 30*time.Second, s.StopTimeout)
	assert.False(t, s.AutoStart)
	assert.Equal(t, DefaultTailLines, s.TailLines)

	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, DefaultListen, cfg.HTTP.Listen)
	assert.Equal(t, "/api", cfg.HTTP.BasePath)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Full(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, "server.env")
	require.NoError(t, os.WriteFile(dotenv, []byte("WORLD=survival\n"), 0o600))

	cfg, err := Load(writeTOML(t, `
[server]
name = "lobby"
runtime = "/opt/jdk21/bin/java"
jar = "paper.jar"
work_dir = "`+dir+`"
min_mem = "1G"
max_mem = "6G"
jvm_args = ["-XX:+UseG1GC"]
env_files = ["`+dotenv+`"]
env = ["LEVEL=${WORLD}-1"]
stop_command = "end"
stop_timeout = "45s"
autostart = true
tail_lines = 50

[log]
level = "debug"
format = "json"
  [log.file]
  path = "`+filepath.Join(dir, "consolr.log")+`"
  max_backups = 5

[console_log]
path = "`+filepath.Join(dir, "console.log")+`"
compress = true

[http]
listen = ":9000"
base_path = "/console/"
token = "s3cret"

[metrics]
enabled = true
path = "prom"

[history]
enabled = true
sinks = ["sqlite://`+filepath.Join(dir, "history.db")+`"]
`))
	require.NoError(t, err)
	s := cfg.Server
	assert.Equal(t, "lobby", s.Name)
	assert.Equal(t, "/opt/jdk21/bin/java", s.Runtime)
	assert.Equal(t, dir, s.WorkDir)
	assert.Equal(t, []string{"-XX:+UseG1GC"}, s.JVMArgs)
	assert.Equal(t, []string{"LEVEL=survival-1", "WORLD=survival"}, s.Env)
	assert.Equal(t, "end", s.StopCommand)
	assert.Equal(t, 45*time.Second, s.StopTimeout)
	assert.True(t, s.AutoStart)
	assert.Equal(t, 50, s.TailLines)
	assert.Equal(t, []string{"-Xms1G", "-Xmx6G", "-XX:+UseG1GC", "-jar", "paper.jar", "nogui"}, s.Args())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Log.File.MaxBackups)
	assert.True(t, cfg.ConsoleLog.Compress)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, "/console", cfg.HTTP.BasePath)
	assert.Equal(t, "s3cret", cfg.HTTP.Token)
	assert.Equal(t, "/prom", cfg.Metrics.Path)
	assert.True(t, cfg.History.Enabled)
	assert.Len(t, cfg.History.Sinks, 1)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONSOLR_SERVER_JAR", "from-env.jar")
	t.Setenv("CONSOLR_SERVER_STOP_TIMEOUT", "5s")
	t.Setenv("CONSOLR_HTTP_LISTEN", "0.0.0.0:7000")
	t.Setenv("CONSOLR_METRICS_ENABLED", "true")

	cfg, err := Load(writeTOML(t, `
[server]
jar = "from-file.jar"
stop_timeout = "20s"
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env.jar", cfg.Server.Jar)
	assert.Equal(t, 5*time.Second, cfg.Server.StopTimeout)
	assert.Equal(t, "0.0.0.0:7000", cfg.HTTP.Listen)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_NoFileUsesEnvOnly(t *testing.T) {
	t.Setenv("CONSOLR_SERVER_JAR", "only-env.jar")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "only-env.jar", cfg.Server.Jar)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name        string
		toml        string
		errContains string
	}{
		{"missing jar", "[server]\nname = \"x\"\n", "jar is required"},
		{"negative timeout", "[server]\njar = \"s.jar\"\nstop_timeout = \"-1s\"\n", "cannot be negative"},
		{"huge timeout", "[server]\njar = \"s.jar\"\nstop_timeout = \"1h\"\n", "exceeds 10m"},
		{"bad log format", "[server]\njar = \"s.jar\"\n[log]\nformat = \"xml\"\n", "unknown format"},
		{"tls half pair", "[server]\njar = \"s.jar\"\n[http.tls]\nenabled = true\ncert_file = \"a.crt\"\n", "set together"},
		{"tls nothing", "[server]\njar = \"s.jar\"\n[http.tls]\nenabled = true\n", "dir is required"},
		{"history without sinks", "[server]\njar = \"s.jar\"\n[history]\nenabled = true\n", "without sinks"},
		{"missing env file", "[server]\njar = \"s.jar\"\nenv_files = [\"/nonexistent/consolr.env\"]\n", "server env"},
		{"bad schedule", "[server]\njar = \"s.jar\"\n[[schedule]]\nname = \"x\"\nschedule = \"hourly\"\ncommand = \"save-all\"\n", "unsupported schedule"},
		{"duplicate schedule", "[server]\njar = \"s.jar\"\n[[schedule]]\nname = \"x\"\nschedule = \"@every 1m\"\ncommand = \"a\"\n[[schedule]]\nname = \"x\"\nschedule = \"@every 2m\"\ncommand = \"b\"\n", "duplicate job"},
		{"malformed toml", "[server\njar=", "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTOML(t, tt.toml))
			require.Error(t, err)
			if tt.errContains != "" {
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadWith_OverridesWinOverFile(t *testing.T) {
	path := writeTOML(t, "[server]\njar = \"file.jar\"\nmax_mem = \"2G\"\n")
	cfg, err := LoadWith(path, map[string]any{
		"server.jar":          "flag.jar",
		"server.stop_timeout": "5s",
	})
	require.NoError(t, err)
	assert.Equal(t, "flag.jar", cfg.Server.Jar)
	assert.Equal(t, "2G", cfg.Server.MaxMem)
	assert.Equal(t, 5*time.Second, cfg.Server.StopTimeout)
}

func TestLoadWith_NoFile(t *testing.T) {
	cfg, err := LoadWith("", map[string]any{"server.jar": "server.jar"})
	require.NoError(t, err)
	assert.Equal(t, "server.jar", cfg.Server.Jar)
	assert.Equal(t, DefaultListen, cfg.HTTP.Listen)
}

func TestLoad_Schedule(t *testing.T) {
	path := writeTOML(t, `[server]
jar = "server.jar"

[[schedule]]
name = "autosave"
schedule = "@every 10m"
command = "save-all"

[[schedule]]
name = "nightly"
schedule = "@daily 04:00"
action = "restart"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Schedule, 2)
	assert.Equal(t, "autosave", cfg.Schedule[0].Name)
	assert.Equal(t, "save-all", cfg.Schedule[0].Command)
	assert.Equal(t, "restart", string(cfg.Schedule[1].Action))
}
