package process

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestWithDefaults(t *testing.T) {
	s := Spec{Jar: "server.jar"}.WithDefaults()
	if s.Name != DefaultName || s.Runtime != DefaultRuntime {
		t.Fatalf("name/runtime defaults not applied: %+v", s)
	}
	if s.MinMem != "2G" || s.MaxMem != "4G" {
		t.Fatalf("heap defaults: got %q/%q", s.MinMem, s.MaxMem)
	}
	if s.StopCommand != "stop" || s.StopTimeout != 30*time.Second {
		t.Fatalf("stop defaults: got %q/%v", s.StopCommand, s.StopTimeout)
	}
	if s.WorkDir != "" || s.Jar != "server.jar" {
		t.Fatalf("jar/workdir must not be defaulted: %+v", s)
	}
}

func TestWithDefaults_KeepsExplicitValues(t *testing.T) {
	in := Spec{Name: "lobby", Runtime: "/opt/jdk/bin/java", MinMem: "512M", MaxMem: "1G", StopCommand: "end", StopTimeout: time.Second}
	if got := in.WithDefaults(); !reflect.DeepEqual(got, in) {
		t.Fatalf("explicit values overwritten: %+v", got)
	}
}

func TestArgs(t *testing.T) {
	got := Spec{Jar: "server.jar"}.Args()
	want := []string{"-Xms2G", "-Xmx4G", "-jar", "server.jar", "nogui"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args: got %#v want %#v", got, want)
	}

	got = Spec{Jar: "paper.jar", MinMem: "1G", MaxMem: "8G", JVMArgs: []string{"-XX:+UseG1GC", " ", "-Dfile.encoding=UTF-8"}}.Args()
	want = []string{"-Xms1G", "-Xmx8G", "-XX:+UseG1GC", "-Dfile.encoding=UTF-8", "-jar", "paper.jar", "nogui"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args with jvm flags: got %#v want %#v", got, want)
	}
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	cmd := Spec{Jar: "server.jar", WorkDir: dir, Runtime: "java"}.BuildCommand()
	if filepath.Base(cmd.Args[0]) != "java" {
		t.Fatalf("argv[0]: %q", cmd.Args[0])
	}
	if strings.Join(cmd.Args[1:], " ") != "-Xms2G -Xmx4G -jar server.jar nogui" {
		t.Fatalf("argv: %#v", cmd.Args)
	}
	if cmd.Dir != dir {
		t.Fatalf("dir: got %q want %q", cmd.Dir, dir)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name        string
		spec        Spec
		errContains string
	}{
		{name: "valid", spec: Spec{Jar: "server.jar"}},
		{name: "missing jar", spec: Spec{}, errContains: "jar is required"},
		{name: "blank jar", spec: Spec{Jar: "  "}, errContains: "jar is required"},
		{name: "heap with space", spec: Spec{Jar: "s.jar", MaxMem: "4 G"}, errContains: "max_mem"},
		{name: "multi-line stop", spec: Spec{Jar: "s.jar", StopCommand: "save-all\nstop"}, errContains: "single line"},
		{name: "negative timeout", spec: Spec{Jar: "s.jar", StopTimeout: -time.Second}, errContains: "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

func TestStopResultString(t *testing.T) {
	for r, want := range map[StopResult]string{StopNotRunning: "not_running", StopGraceful: "graceful", StopKilled: "killed"} {
		if r.String() != want {
			t.Fatalf("%d: got %q want %q", r, r.String(), want)
		}
	}
}
