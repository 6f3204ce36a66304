package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/consolr/internal/config"
	"github.com/loykin/consolr/internal/history"
	"github.com/loykin/consolr/internal/history/factory"
	"github.com/loykin/consolr/internal/logger"
	"github.com/loykin/consolr/internal/metrics"
	"github.com/loykin/consolr/internal/pidfile"
	"github.com/loykin/consolr/internal/server"
	"github.com/loykin/consolr/internal/supervisor"
	apptls "github.com/loykin/consolr/internal/tls"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the daemon until ctx ends or the API listener fails.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	if f.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=consolr.toml or provide as argument")
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Daemonize {
		if !isDaemonSupported() {
			return fmt.Errorf("--daemonize is not supported on this platform")
		}
		return daemonize(f.PidFile, f.LogFile)
	}

	if f.PidFile != "" {
		pf := pidfile.File{Path: f.PidFile}
		if err := pf.Acquire(os.Getpid()); err != nil {
			return fmt.Errorf("pid file: %w", err)
		}
		defer func() { _ = pf.Remove() }()
	}

	log, closer := logger.New(cfg.Log, c.errOut)
	defer func() { _ = closer.Close() }()

	opts := []supervisor.Option{
		supervisor.WithLogger(log),
		supervisor.WithTailSize(cfg.Server.TailLines),
	}
	if w := cfg.ConsoleLog.Writer(); w != nil {
		defer func() { _ = w.Close() }()
		opts = append(opts, supervisor.WithConsoleLog(w))
	}
	sink, err := openHistory(cfg.History, log)
	if err != nil {
		return err
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
		opts = append(opts, supervisor.WithHistory(sink))
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}
	sup := supervisor.New(cfg.Server.Spec, opts...)

	var srv *server.Server
	if cfg.HTTP.Enabled {
		srv, err = startAPI(cfg, sup, log)
		if err != nil {
			_ = sup.Close(context.Background())
			return err
		}
		if f.Ready != nil {
			f.Ready <- srv.Addr()
		}
	}

	if cfg.Server.AutoStart {
		if err := sup.Start(ctx); err != nil {
			log.Error("autostart failed", "error", err)
		}
	}

	sch, err := startSchedule(cfg.Schedule, sup, log)
	if err != nil {
		log.Warn("scheduler disabled", "error", err)
	}

	var serveErr error
	if srv != nil {
		select {
		case <-ctx.Done():
		case serveErr = <-srv.Err():
			if serveErr != nil {
				log.Error("API server failed", "error", serveErr)
			}
		}
	} else {
		<-ctx.Done()
	}

	log.Info("shutting down")
	if sch != nil {
		sch.Stop()
	}
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn("API shutdown", "error", err)
		}
		cancel()
	}
	cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout+10*time.Second)
	defer cancel()
	if err := sup.Close(cctx); err != nil {
		log.Warn("supervisor close", "error", err)
	}
	return serveErr
}

// startAPI builds the router and binds the listener.
func startAPI(cfg *config.Config, sup *supervisor.Supervisor, log *slog.Logger) (*server.Server, error) {
	ropts := []server.RouterOption{
		server.WithLogger(log),
		server.WithToken(cfg.HTTP.Token),
		server.WithDefaultTail(cfg.Server.TailLines),
	}
	if cfg.Metrics.Enabled {
		ropts = append(ropts, server.WithMetrics(cfg.Metrics.Path, metrics.Handler()))
	}
	router := server.NewRouter(sup, cfg.HTTP.BasePath, ropts...)

	var tlsConf *tls.Config
	protocol := "HTTP"
	if cfg.HTTP.TLS.Enabled {
		var err error
		if tlsConf, err = apptls.Setup(cfg.HTTP.TLS); err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		protocol = "HTTPS"
	}
	srv, err := server.NewServer(cfg.HTTP.Listen, router.Handler(), tlsConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s server: %w", protocol, err)
	}
	if cfg.HTTP.Token == "" {
		log.Warn("console API has no token; anyone who can reach it controls the server", "listen", srv.Addr())
	}
	log.Info("console API listening", "protocol", protocol, "addr", srv.Addr(), "base_path", cfg.HTTP.BasePath)
	return srv, nil
}

// openHistory opens one sink per DSN. It returns nil when history is off.
func openHistory(h config.HistoryConfig, log *slog.Logger) (history.Multi, error) {
	if !h.Enabled {
		return nil, nil
	}
	var sinks history.Multi
	for _, dsn := range h.Sinks {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("history sink %q: %w", redact(dsn), err)
		}
		sinks = append(sinks, s)
		log.Info("history sink enabled", "dsn", redact(dsn))
	}
	return sinks, nil
}
