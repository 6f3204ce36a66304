package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/consolr/internal/config"
	"github.com/loykin/consolr/pkg/client"
	"github.com/loykin/consolr/pkg/template"
)

type command struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// daemon is a connected API client plus the URL used in error messages.
type daemon struct {
	*client.Client
	url string
}

// connect builds a client from the flags, falling back to the [http]
// section of the config file for the address and token.
func (c command) connect(f APIFlags) (*daemon, error) {
	cc := client.Config{
		BaseURL:  f.APIUrl,
		Token:    f.Token,
		Timeout:  f.APITimeout,
		Insecure: f.Insecure,
		Logger:   slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if f.CACert != "" {
		cc.TLS = &client.TLSClientConfig{CACert: f.CACert}
	}
	if f.APIUrl == "" && f.ConfigPath != "" {
		cfg, err := config.Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cc.BaseURL = apiURLFromConfig(cfg.HTTP)
		if cc.Token == "" {
			cc.Token = cfg.HTTP.Token
		}
	}
	if cc.BaseURL == "" {
		cc.BaseURL = client.DefaultBaseURL
	}
	cl, err := client.New(cc)
	if err != nil {
		return nil, err
	}
	return &daemon{Client: cl, url: cc.BaseURL}, nil
}

// apiURLFromConfig turns a listen address into a URL a local client can dial.
func apiURLFromConfig(h config.HTTPConfig) string {
	scheme := "http"
	if h.TLS.Enabled {
		scheme = "https"
	}
	host, port, err := net.SplitHostPort(h.Listen)
	if err != nil {
		return scheme + "://" + h.Listen + h.BasePath
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + h.BasePath
}

// explain adds a hint to transport errors; API errors pass through.
func (d *daemon) explain(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("daemon not reachable at %s - start it with 'consolr serve': %w", d.url, err)
}

func (c command) Start(ctx context.Context, f APIFlags) error {
	d, err := c.connect(f)
	if err != nil {
		return err
	}
	if err := d.Client.Start(ctx); err != nil {
		return d.explain(err)
	}
	_, _ = fmt.Fprintln(c.out, "server started")
	return nil
}

func (c command) Stop(ctx context.Context, f APIFlags) error {
	d, err := c.connect(f)
	if err != nil {
		return err
	}
	result, err := d.Client.Stop(ctx)
	if err != nil {
		return d.explain(err)
	}
	if result == "not_running" {
		_, _ = fmt.Fprintln(c.out, "server was not running")
		return nil
	}
	_, _ = fmt.Fprintf(c.out, "server stopped (%s)\n", result)
	return nil
}

func (c command) Restart(ctx context.Context, f APIFlags) error {
	d, err := c.connect(f)
	if err != nil {
		return err
	}
	if err := d.Client.Restart(ctx); err != nil {
		return d.explain(err)
	}
	_, _ = fmt.Fprintln(c.out, "server restarted")
	return nil
}

func (c command) Send(ctx context.Context, f APIFlags, args []string) error {
	line := strings.Join(args, " ")
	if strings.TrimSpace(line) == "" {
		return fmt.Errorf("command is required")
	}
	d, err := c.connect(f)
	if err != nil {
		return err
	}
	return d.explain(d.Client.Send(ctx, line))
}

func (c command) Status(ctx context.Context, f StatusFlags) error {
	d, err := c.connect(f.API)
	if err != nil {
		return err
	}
	st, err := d.Client.Status(ctx)
	if err != nil {
		return d.explain(err)
	}
	if f.JSON {
		return printJSON(c.out, st)
	}
	printStatus(c.out, st)
	return nil
}

func (c command) Logs(ctx context.Context, f LogsFlags) error {
	d, err := c.connect(f.API)
	if err != nil {
		return err
	}
	if !f.Follow {
		lines, err := d.Client.Tail(ctx, f.Tail)
		if err != nil {
			return d.explain(err)
		}
		for _, l := range lines {
			_, _ = fmt.Fprintln(c.out, l)
		}
		return nil
	}
	return d.explain(d.Client.Follow(ctx, f.Tail, func(line string) bool {
		_, err := fmt.Fprintln(c.out, line)
		return err == nil
	}))
}

// Init writes a starter config file.
func (c command) Init(f InitFlags) error {
	if _, err := os.Stat(f.Output); err == nil && !f.Force {
		return fmt.Errorf("config file '%s' already exists (use --force to overwrite)", f.Output)
	}
	data, err := template.NewGenerator().GenerateTOML(template.TemplateType(f.Type), template.Options{
		Name:    f.Name,
		Jar:     f.Jar,
		WorkDir: f.WorkDir,
		MinMem:  f.MinMem,
		MaxMem:  f.MaxMem,
	})
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}
	// may hold the API token
	if err := os.WriteFile(f.Output, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(c.out, "Config written: %s\n", f.Output)
	_, _ = fmt.Fprintf(c.out, "Edit it and start with: consolr run --config %s\n", f.Output)
	return nil
}

func printStatus(w io.Writer, st client.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v any) { _, _ = fmt.Fprintf(tw, "%s:\t%v\n", k, v) }
	row("name", st.Name)
	row("state", st.State)
	if st.Running {
		row("pid", st.PID)
		row("run id", st.RunID)
		row("started", st.StartedAt.Format(time.RFC3339))
		row("uptime", time.Since(st.StartedAt).Truncate(time.Second))
	} else if !st.StoppedAt.IsZero() {
		row("stopped", st.StoppedAt.Format(time.RFC3339))
		row("exit code", st.ExitCode)
		if st.LastStop != "" {
			row("last stop", st.LastStop)
		}
		if st.ExitErr != "" {
			row("exit error", st.ExitErr)
		}
	}
	row("restarts", st.Restarts)
	if !st.LastLineAt.IsZero() {
		row("last output", st.LastLineAt.Format(time.RFC3339))
	}
	if r := st.Resources; r != nil {
		row("memory", fmt.Sprintf("%.1f MB", r.MemoryMB))
		row("cpu", fmt.Sprintf("%.1f%%", r.CPUPercent))
		row("threads", r.NumThreads)
	}
	_ = tw.Flush()
}
