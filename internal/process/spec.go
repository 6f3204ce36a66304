package process

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Defaults applied by WithDefaults.
const (
	DefaultName        = "server"
	DefaultRuntime     = "java"
	DefaultMinMem      = "2G"
	DefaultMaxMem      = "4G"
	DefaultStopCommand = "stop"
	DefaultStopTimeout = 30 * time.Second
)

// Spec describes how to launch the supervised server.
type Spec struct {
	Name        string        `json:"name" mapstructure:"name"`
	Runtime     string        `json:"runtime" mapstructure:"runtime"`           // runtime executable, "java" unless overridden
	Jar         string        `json:"jar" mapstructure:"jar"`                   // path to the runnable archive
	WorkDir     string        `json:"work_dir" mapstructure:"work_dir"`         // working directory of the child
	MinMem      string        `json:"min_mem" mapstructure:"min_mem"`           // -Xms token, e.g. "2G"
	MaxMem      string        `json:"max_mem" mapstructure:"max_mem"`           // -Xmx token, e.g. "4G"
	JVMArgs     []string      `json:"jvm_args" mapstructure:"jvm_args"`         // extra flags placed before -jar
	Env         []string      `json:"env" mapstructure:"env"`                   // KEY=VALUE entries added to the inherited env
	StopCommand string        `json:"stop_command" mapstructure:"stop_command"` // console line that asks the server to shut down
	StopTimeout time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"` // bounded wait before forced termination
}

// WithDefaults returns a copy of s with unset fields filled in.
// Jar and WorkDir are never defaulted.
func (s Spec) WithDefaults() Spec {
	if strings.TrimSpace(s.Name) == "" {
		s.Name = DefaultName
	}
	if strings.TrimSpace(s.Runtime) == "" {
		s.Runtime = DefaultRuntime
	}
	if strings.TrimSpace(s.MinMem) == "" {
		s.MinMem = DefaultMinMem
	}
	if strings.TrimSpace(s.MaxMem) == "" {
		s.MaxMem = DefaultMaxMem
	}
	if s.StopCommand == "" {
		s.StopCommand = DefaultStopCommand
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}
	return s
}

// Validate checks the fields a launch cannot do without.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Jar) == "" {
		return fmt.Errorf("jar is required")
	}
	for field, v := range map[string]string{"min_mem": s.MinMem, "max_mem": s.MaxMem} {
		if strings.ContainsAny(v, " \t\r\n") {
			return fmt.Errorf("%s %q must not contain whitespace", field, v)
		}
	}
	if strings.ContainsAny(s.StopCommand, "\r\n") {
		return fmt.Errorf("stop_command must be a single line")
	}
	if s.StopTimeout < 0 {
		return fmt.Errorf("stop_timeout cannot be negative")
	}
	return nil
}

// Args returns the argument vector passed to the runtime:
//
//	-Xms<min> -Xmx<max> [jvm args...] -jar <jar> nogui
func (s Spec) Args() []string {
	s = s.WithDefaults()
	args := make([]string, 0, 5+len(s.JVMArgs))
	args = append(args, "-Xms"+s.MinMem, "-Xmx"+s.MaxMem)
	for _, a := range s.JVMArgs {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return append(args, "-jar", s.Jar, "nogui")
}

// BuildCommand constructs the *exec.Cmd for the spec without a shell in between.
// Stdio and process attributes are wired by Start.
func (s Spec) BuildCommand() *exec.Cmd {
	s = s.WithDefaults()
	// #nosec G204
	cmd := exec.Command(s.Runtime, s.Args()...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	return cmd
}
