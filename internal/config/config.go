// Package config loads consolr's TOML configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/consolr/internal/cron"
	"github.com/loykin/consolr/internal/env"
	"github.com/loykin/consolr/internal/logger"
	"github.com/loykin/consolr/internal/process"
)

// EnvPrefix is the prefix of environment overrides, e.g. CONSOLR_SERVER_JAR.
const EnvPrefix = "CONSOLR"

// Defaults applied when a key is absent.
const (
	DefaultListen      = "127.0.0.1:8765"
	DefaultBasePath    = "/api"
	DefaultMetricsPath = "/metrics"
	DefaultTailLines   = 200
)

// Config is the top-level TOML structure.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        logger.Config     `mapstructure:"log"`
	ConsoleLog logger.FileConfig `mapstructure:"console_log"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	History    HistoryConfig     `mapstructure:"history"`
	Schedule   []cron.Job        `mapstructure:"schedule"` // [[schedule]] tables
}

// ServerConfig is the [server] section: how to launch the supervised server.
type ServerConfig struct {
	process.Spec `mapstructure:",squash"`
	EnvFiles     []string `mapstructure:"env_files"` // .env files applied before Env
	AutoStart    bool     `mapstructure:"autostart"` // start with `serve`
	TailLines    int      `mapstructure:"tail_lines"`
}

// HTTPConfig is the [http] section for the console API.
type HTTPConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Listen   string    `mapstructure:"listen"`
	BasePath string    `mapstructure:"base_path"`
	Token    string    `mapstructure:"token"` // bearer token required on every request when set
	TLS      TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the console API.
type TLSConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	CertFile     string     `mapstructure:"cert_file"`
	KeyFile      string     `mapstructure:"key_file"`
	Dir          string     `mapstructure:"dir"` // holds tls.crt and tls.key
	AutoGenerate bool       `mapstructure:"auto_generate"`
	MinVersion   string     `mapstructure:"min_version"` // "1.2" or "1.3"
	MaxVersion   string     `mapstructure:"max_version"`
	AutoGen      AutoGenTLS `mapstructure:"auto_gen"`
}

// AutoGenTLS parameterizes the self-signed certificate.
type AutoGenTLS struct {
	CommonName   string   `mapstructure:"common_name"`
	Organization string   `mapstructure:"organization"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// MetricsConfig is the [metrics] section.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// HistoryConfig is the [history] section. Each DSN becomes one sink.
type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", process.DefaultName)
	v.SetDefault("server.runtime", process.DefaultRuntime)
	v.SetDefault("server.jar", "")
	v.SetDefault("server.work_dir", "")
	v.SetDefault("server.min_mem", process.DefaultMinMem)
	v.SetDefault("server.max_mem", process.DefaultMaxMem)
	v.SetDefault("server.stop_command", process.DefaultStopCommand)
	v.SetDefault("server.stop_timeout", process.DefaultStopTimeout)
	v.SetDefault("server.autostart", false)
	v.SetDefault("server.tail_lines", DefaultTailLines)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("console_log.path", "")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", DefaultListen)
	v.SetDefault("http.base_path", DefaultBasePath)
	v.SetDefault("http.token", "")
	v.SetDefault("http.tls.enabled", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("history.enabled", false)
}

// Load reads the TOML file at path (optional when empty), applies
// environment overrides and defaults, resolves env files and validates.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with explicit key overrides (e.g. "server.jar") taking
// precedence over the file and the environment, as command-line flags do.
func LoadWith(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve fills derived values: spec defaults and the composed server env.
func (c *Config) resolve() error {
	if c.Server.StopTimeout < 0 {
		return fmt.Errorf("server: stop_timeout cannot be negative")
	}
	c.Server.Spec = c.Server.Spec.WithDefaults()
	if c.Server.TailLines <= 0 {
		c.Server.TailLines = DefaultTailLines
	}
	if len(c.Server.EnvFiles) > 0 || len(c.Server.Env) > 0 {
		vars, err := env.Resolve(c.Server.EnvFiles, c.Server.Env)
		if err != nil {
			return fmt.Errorf("server env: %w", err)
		}
		c.Server.Env = vars
	}
	c.HTTP.BasePath = normalizePath(c.HTTP.BasePath)
	c.Metrics.Path = normalizePath(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	return nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	return "/" + strings.Trim(p, "/")
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if c.Server.StopTimeout > 10*time.Minute {
		errs = append(errs, fmt.Errorf("server: stop_timeout %s exceeds 10m", c.Server.StopTimeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Listen) == "" {
		errs = append(errs, errors.New("http: listen is required when enabled"))
	}
	if t := c.HTTP.TLS; t.Enabled && (t.CertFile == "") != (t.KeyFile == "") {
		errs = append(errs, errors.New("http.tls: cert_file and key_file must be set together"))
	}
	if t := c.HTTP.TLS; t.Enabled && t.CertFile == "" && t.Dir == "" {
		errs = append(errs, errors.New("http.tls: cert_file/key_file or dir is required"))
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		errs = append(errs, errors.New("history: enabled without sinks"))
	}
	seen := map[string]bool{}
	for _, j := range c.Schedule {
		if err := j.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		} else if seen[j.Name] {
			errs = append(errs, fmt.Errorf("schedule: duplicate job %s", j.Name))
		}
		seen[j.Name] = true
	}
	return errors.Join(errs...)
}
