// Package template generates starter consolr.toml files for `consolr init`.
package template

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// TemplateType represents the type of template to generate
type TemplateType string

const (
	TypeMinimal TemplateType = "minimal" // [server] only, console API on loopback
	TypeBasic   TemplateType = "basic"
	TypeAPI     TemplateType = "api" // token-protected API with a rotating console log
	TypeRemote  TemplateType = "remote"
	TypeFull    TemplateType = "full" // TLS, metrics and an SQLite history sink
)

// Options parameterize the generated server section.
type Options struct {
	Name    string
	Jar     string
	WorkDir string
	MinMem  string
	MaxMem  string
}

// ConfigTemplate mirrors the TOML layout read by the config package.
// Durations are strings so the file stays human-editable.
type ConfigTemplate struct {
	Server     ServerSection   `toml:"server"`
	Log        LogSection      `toml:"log"`
	ConsoleLog *FileSection    `toml:"console_log,omitempty"`
	HTTP       HTTPSection     `toml:"http"`
	Metrics    *MetricsSection `toml:"metrics,omitempty"`
	History    *HistorySection `toml:"history,omitempty"`
}

type ServerSection struct {
	Name        string   `toml:"name"`
	Runtime     string   `toml:"runtime"`
	Jar         string   `toml:"jar"`
	WorkDir     string   `toml:"work_dir,omitempty"`
	MinMem      string   `toml:"min_mem"`
	MaxMem      string   `toml:"max_mem"`
	JVMArgs     []string `toml:"jvm_args,omitempty"`
	Env         []string `toml:"env,omitempty"`
	StopCommand string   `toml:"stop_command"`
	StopTimeout string   `toml:"stop_timeout"`
	AutoStart   bool     `toml:"autostart"`
	TailLines   int      `toml:"tail_lines"`
}

type LogSection struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type FileSection struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type HTTPSection struct {
	Enabled  bool        `toml:"enabled"`
	Listen   string      `toml:"listen"`
	BasePath string      `toml:"base_path"`
	Token    string      `toml:"token,omitempty"`
	TLS      *TLSSection `toml:"tls,omitempty"`
}

type TLSSection struct {
	Enabled      bool   `toml:"enabled"`
	Dir          string `toml:"dir"`
	AutoGenerate bool   `toml:"auto_generate"`
	MinVersion   string `toml:"min_version"`
}

type MetricsSection struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type HistorySection struct {
	Enabled bool     `toml:"enabled"`
	Sinks   []string `toml:"sinks"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a config template of the given type.
func (g *Generator) Generate(templateType TemplateType, opts Options) (*ConfigTemplate, error) {
	opts = opts.withDefaults()
	switch templateType {
	case TypeMinimal, TypeBasic, "":
		return g.generateMinimal(opts), nil
	case TypeAPI, TypeRemote:
		return g.generateAPI(opts), nil
	case TypeFull:
		return g.generateFull(opts), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: %s)",
			templateType, strings.Join(g.GetSupportedTypes(), ", "))
	}
}

// GenerateTOML renders the template of the given type as TOML.
func (g *Generator) GenerateTOML(templateType TemplateType, opts Options) ([]byte, error) {
	tmpl, err := g.Generate(templateType, opts)
	if err != nil {
		return nil, err
	}
	data, err := toml.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return data, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{string(TypeMinimal), string(TypeAPI), string(TypeFull)}
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "minecraft"
	}
	if o.Jar == "" {
		o.Jar = "server.jar"
	}
	if o.MinMem == "" {
		o.MinMem = "1G"
	}
	if o.MaxMem == "" {
		o.MaxMem = "2G"
	}
	return o
}

func (g *Generator) server(opts Options) ServerSection {
	return ServerSection{
		Name:        opts.Name,
		Runtime:     "java",
		Jar:         opts.Jar,
		WorkDir:     opts.WorkDir,
		MinMem:      opts.MinMem,
		MaxMem:      opts.MaxMem,
		StopCommand: "stop",
		StopTimeout: "30s",
		TailLines:   200,
	}
}

func (g *Generator) generateMinimal(opts Options) *ConfigTemplate {
	return &ConfigTemplate{
		Server: g.server(opts),
		Log:    LogSection{Level: "info", Format: "text"},
		HTTP:   HTTPSection{Enabled: true, Listen: "127.0.0.1:8765", BasePath: "/api"},
	}
}

func (g *Generator) generateAPI(opts Options) *ConfigTemplate {
	t := g.generateMinimal(opts)
	t.Server.AutoStart = true
	t.ConsoleLog = &FileSection{
		Path:       "logs/" + opts.Name + "-console.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Compress:   true,
	}
	t.HTTP.Listen = "0.0.0.0:8765"
	t.HTTP.Token = "change-me"
	return t
}

func (g *Generator) generateFull(opts Options) *ConfigTemplate {
	t := g.generateAPI(opts)
	t.Server.JVMArgs = []string{"-XX:+UseG1GC", "-XX:+ParallelRefProcEnabled"}
	t.Log.Format = "json"
	t.HTTP.TLS = &TLSSection{Enabled: true, Dir: "tls", AutoGenerate: true, MinVersion: "1.2"}
	t.Metrics = &MetricsSection{Enabled: true, Path: "/metrics"}
	t.History = &HistorySection{Enabled: true, Sinks: []string{"sqlite://consolr-history.db"}}
	return t
}
