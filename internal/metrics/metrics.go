package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server launches.",
		}, []string{"name"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "launch_failures_total",
			Help:      "Number of launches that produced no process or failed.",
		}, []string{"name", "reason"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of stop protocol runs by result (graceful, killed).",
		}, []string{"name", "result"},
	)
	serverExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "exits_total",
			Help:      "Number of observed server exits, requested or not.",
		}, []string{"name", "requested"},
	)
	stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "stop_duration_seconds",
			Help:      "Time spent in the stop protocol.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		}, []string{"name"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "running",
			Help:      "1 while the server process is alive.",
		}, []string{"name"},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "console",
			Name:      "commands_total",
			Help:      "Number of console lines written to the server.",
		}, []string{"name"},
	)
	logLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "console",
			Name:      "log_lines_total",
			Help:      "Number of log lines read from the server.",
		}, []string{"name"},
	)
	droppedLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consolr",
			Subsystem: "console",
			Name:      "dropped_lines_total",
			Help:      "Log lines not delivered to a slow subscriber.",
		}, []string{"name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		serverStarts, launchFailures, serverStops, serverExits, stopDuration, running,
		commandsSent, logLines, droppedLines,
		residentMemory, cpuPercent, numThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name, reason string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name, reason).Inc()
	}
}

func ObserveStop(name, result string, seconds float64) {
	if regOK.Load() {
		serverStops.WithLabelValues(name, result).Inc()
		stopDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncExit(name string, requested bool) {
	if regOK.Load() {
		v := "false"
		if requested {
			v = "true"
		}
		serverExits.WithLabelValues(name, v).Inc()
	}
}

func SetRunning(name string, up bool) {
	if regOK.Load() {
		var value float64
		if up {
			value = 1
		}
		running.WithLabelValues(name).Set(value)
	}
}

func IncCommand(name string) {
	if regOK.Load() {
		commandsSent.WithLabelValues(name).Inc()
	}
}

func IncLogLine(name string) {
	if regOK.Load() {
		logLines.WithLabelValues(name).Inc()
	}
}

func IncDropped(name string) {
	if regOK.Load() {
		droppedLines.WithLabelValues(name).Inc()
	}
}
