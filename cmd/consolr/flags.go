package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags override [server] keys for the foreground run command.
type RunFlags struct {
	ConfigPath  string
	Runtime     string
	Jar         string
	WorkDir     string
	MinMem      string
	MaxMem      string
	StopTimeout time.Duration
}

// overrides maps the flags that were set onto config keys.
func (f RunFlags) overrides() map[string]any {
	o := map[string]any{}
	set := func(key, v string) {
		if v != "" {
			o[key] = v
		}
	}
	set("server.runtime", f.Runtime)
	set("server.jar", f.Jar)
	set("server.work_dir", f.WorkDir)
	set("server.min_mem", f.MinMem)
	set("server.max_mem", f.MaxMem)
	if f.StopTimeout > 0 {
		o["server.stop_timeout"] = f.StopTimeout
	}
	return o
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
	// Ready receives the bound API address once serving; used by tests.
	Ready chan<- string
}

// APIFlags select the daemon a remote command talks to. When APIUrl is
// empty the address and token come from the config file.
type APIFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	Token      string
	CACert     string
	Insecure   bool
}

type StatusFlags struct {
	API  APIFlags
	JSON bool
}

type LogsFlags struct {
	API    APIFlags
	Tail   int
	Follow bool
}

type InitFlags struct {
	Type    string
	Output  string
	Force   bool
	Name    string
	Jar     string
	WorkDir string
	MinMem  string
	MaxMem  string
}
