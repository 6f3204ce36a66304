package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/consolr/internal/config"
	"github.com/loykin/consolr/internal/logger"
	"github.com/loykin/consolr/internal/supervisor"
)

// runBuffer is large so a burst at startup is not dropped on a slow terminal.
const runBuffer = 4096

// Run starts the server in the foreground. Output goes to c.out, every line
// read from c.in is sent as a command, and ctx ending triggers the stop
// protocol. It returns when the server has exited.
func (c command) Run(ctx context.Context, f RunFlags) error {
	cfg, err := config.LoadWith(f.ConfigPath, f.overrides())
	if err != nil {
		return err
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
	sup := supervisor.New(cfg.Server.Spec, opts...)

	// Subscribe before Start so the first lines are not missed.
	lines, cancel := sup.Subscribe(runBuffer)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		_ = sup.Close(context.Background())
		if errors.Is(err, supervisor.ErrNotStarted) {
			return fmt.Errorf("%w (runtime %q, work_dir %q)", err, cfg.Server.Runtime, cfg.Server.WorkDir)
		}
		return fmt.Errorf("start server: %w", err)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for l := range lines {
			_, _ = fmt.Fprintln(c.out, l)
		}
	}()
	if c.in != nil {
		go forwardInput(c.in, sup, log)
	}
	sch, err := startSchedule(cfg.Schedule, sup, log)
	if err != nil {
		log.Warn("scheduler disabled", "error", err)
	}

wait:
	for {
		select {
		case <-sup.Done():
			// a scheduled restart replaces the run
			sup.Sync()
			if sup.Running() {
				continue
			}
			st := sup.Status()
			log.Info("server exited", "exit_code", st.ExitCode)
			break wait
		case <-ctx.Done():
			log.Info("stopping server", "timeout", cfg.Server.StopTimeout)
			if sch != nil {
				sch.Stop()
			}
			res, err := sup.Stop(context.Background())
			if err != nil {
				log.Warn("stop failed", "error", err)
			} else {
				log.Info("server stopped", "result", res.String())
			}
			break wait
		}
	}

	if sch != nil {
		sch.Stop()
	}
	closeCtx, cancelClose := context.WithTimeout(context.Background(), cfg.Server.StopTimeout+10*time.Second)
	defer cancelClose()
	if err := sup.Close(closeCtx); err != nil {
		log.Warn("close supervisor", "error", err)
	}
	<-printed
	return nil
}

// forwardInput sends every line of r as a console command until r ends.
// Lines typed while the server is stopping are dropped.
func forwardInput(r io.Reader, sup *supervisor.Supervisor, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := sup.Send(line); err != nil {
			if errors.Is(err, supervisor.ErrNotRunning) {
				return
			}
			log.Warn("send command", "command", line, "error", err)
		}
	}
}
