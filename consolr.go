// Package consolr supervises a Java game server console: it launches
// `java -Xms.. -Xmx.. -jar <jar> nogui`, relays its output, forwards
// commands and stops it with "stop", killing it if it does not exit in time.
package consolr

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/consolr/internal/config"
	"github.com/loykin/consolr/internal/history"
	"github.com/loykin/consolr/internal/history/factory"
	"github.com/loykin/consolr/internal/metrics"
	"github.com/loykin/consolr/internal/process"
	iapi "github.com/loykin/consolr/internal/server"
	"github.com/loykin/consolr/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

// Handle is one launched server process. A nil *Handle means no process.
type Handle = process.Handle

type StopResult = process.StopResult

const (
	StopNotRunning = process.StopNotRunning
	StopGraceful   = process.StopGraceful
	StopKilled     = process.StopKilled
)

// Launch starts the server described by spec. It returns (nil, nil) when
// the runtime or working directory does not exist.
func Launch(spec Spec) (*Handle, error) { return process.Start(spec) }

// IsRunning reports whether h is a live process. It accepts nil.
func IsRunning(h *Handle) bool { return process.IsRunning(h) }

type Supervisor = supervisor.Supervisor

type Status = supervisor.Status

type Option = supervisor.Option

var (
	WithLogger         = supervisor.WithLogger
	WithHistory        = supervisor.WithHistory
	WithConsoleLog     = supervisor.WithConsoleLog
	WithTailSize       = supervisor.WithTailSize
	WithSampleInterval = supervisor.WithSampleInterval
)

var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrNotStarted     = supervisor.ErrNotStarted
	ErrInvalidCommand = supervisor.ErrInvalidCommand
	ErrClosed         = supervisor.ErrClosed
)

// New returns a supervisor for spec. Nothing is launched until Start.
func New(spec Spec, opts ...Option) *Supervisor { return supervisor.New(spec, opts...) }

type Config = cfg.Config

// LoadConfig reads a consolr.toml file with CONSOLR_ environment overrides.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

type HistorySink = history.Sink

type HistoryEvent = history.Event

// NewHistorySink opens a sink from a DSN such as "sqlite:///var/lib/h.db",
// "postgres://...", "clickhouse://..." or "opensearch://host:9200/index".
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Handler returns the console HTTP API for s mounted under basePath.
// A non-empty token is required as a bearer token on every request.
func Handler(s *Supervisor, basePath, token string) http.Handler {
	return iapi.NewRouter(s, basePath, iapi.WithToken(token)).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
