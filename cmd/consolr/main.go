package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(command{in: os.Stdin, out: os.Stdout, errOut: os.Stderr})
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags, c.out, c.errOut)
	root.AddCommand(
		createRunCommand(c, globalFlags),
		createServeCommand(c, globalFlags),
		createStartCommand(c, globalFlags),
		createStopCommand(c, globalFlags),
		createRestartCommand(c, globalFlags),
		createSendCommand(c, globalFlags),
		createStatusCommand(c, globalFlags),
		createLogsCommand(c, globalFlags),
		createInitCommand(c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "consolr",
		Short: "Supervise a Minecraft server console",
		Long: `Consolr launches a Java game server, relays its console and stops it
gracefully with the "stop" command before resorting to a kill.

Examples:
  consolr init --jar paper.jar       # write consolr.toml
  consolr run --config consolr.toml  # foreground: console on this terminal
  consolr serve --config consolr.toml
  consolr send say hello             # against a running serve
  consolr logs -f`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func createRunCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server in the foreground",
		Long: `Start the server and attach this terminal to its console: output is
printed, every input line is sent as a command, and Ctrl-C stops the server
gracefully. Exits with status 1 when the server could not be started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Run(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Runtime, "runtime", "", "runtime executable (default java)")
	cmd.Flags().StringVar(&f.Jar, "jar", "", "server jar")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "server working directory")
	cmd.Flags().StringVar(&f.MinMem, "min-mem", "", "initial heap, e.g. 1G")
	cmd.Flags().StringVar(&f.MaxMem, "max-mem", "", "maximum heap, e.g. 4G")
	cmd.Flags().DurationVar(&f.StopTimeout, "stop-timeout", 0, "grace period before the server is killed")
	return cmd
}

func createServeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the consolr daemon",
		Long: `Start the daemon: the console HTTP API, metrics and history sinks, and
the server itself when [server].autostart is set.

Examples:
  consolr serve --config consolr.toml
  consolr serve consolr.toml --daemonize --pidfile consolr.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return c.Serve(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

// addAPIFlags registers the daemon connection flags on a remote command.
func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8765/api); default from --config")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 60*time.Second, "request timeout")
	cmd.Flags().StringVar(&f.Token, "token", os.Getenv("CONSOLR_TOKEN"), "bearer token (env CONSOLR_TOKEN)")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for an HTTPS daemon")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
}

func createStartCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server through the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Start(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStopCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server gracefully, killing it after the stop timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Stop(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createRestartCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop and start the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Restart(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createSendCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "send <command...>",
		Short: "Send a console command",
		Long: `Send one line to the server console. Arguments are joined with spaces.

Examples:
  consolr send say hello
  consolr send whitelist add Steve`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return c.Send(cmd.Context(), *f, args)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.API.ConfigPath = globalFlags.ConfigPath
			return c.Status(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, &f.API)
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print raw JSON")
	return cmd
}

func createLogsCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent server output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.API.ConfigPath = globalFlags.ConfigPath
			return c.Logs(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, &f.API)
	cmd.Flags().IntVarP(&f.Tail, "tail", "n", 50, "number of recent lines")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep streaming new lines")
	return cmd
}

func createInitCommand(c command) *cobra.Command {
	f := &InitFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter consolr.toml.

Types:
  minimal  [server] plus a loopback console API
  api      token-protected API on all interfaces, rotating console log, autostart
  full     api plus TLS, metrics and an SQLite history sink`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Init(*f)
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "minimal", "template type: minimal, api, full")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "consolr.toml", "output file")
	cmd.Flags().BoolVar(&f.Force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&f.Name, "name", "", "server name")
	cmd.Flags().StringVar(&f.Jar, "jar", "", "server jar")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "server working directory")
	cmd.Flags().StringVar(&f.MinMem, "min-mem", "", "initial heap")
	cmd.Flags().StringVar(&f.MaxMem, "max-mem", "", "maximum heap")
	return cmd
}
