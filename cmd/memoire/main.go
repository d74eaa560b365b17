package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"memoire/internal/banner"
	"memoire/internal/cli"
	"memoire/internal/config"
	"memoire/internal/domain"
	"memoire/internal/gateway"
	"memoire/internal/tooling"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("memoire %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

// scheduleRunTimeout bounds one scheduled instruction.
const scheduleRunTimeout = 5 * time.Minute

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "memoire",
		Short:         "Natural-language assistant for thesis writing",
		Long:          "Memoire turns instructions such as \"add a chapter on methodology\" into chapters, notes, sources and tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.PersistentFlags().StringP("config", "c", "", "config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath+")")

	askCmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Submit one instruction to the agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			asJSON, _ := cmd.Flags().GetBool("json")
			return cli.RunAsk(cmd.Context(), rt, strings.Join(args, " "), asJSON, cmd.OutOrStdout())
		},
	}
	askCmd.Flags().Bool("json", false, "print the full response as JSON")
	root.AddCommand(askCmd)

	root.AddCommand(&cobra.Command{
		Use:   "refine <prompt>",
		Short: "Improve a prompt using the recent prompt log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return cli.RunRefine(cmd.Context(), rt, strings.Join(args, " "), cmd.OutOrStdout())
		},
	})

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return cli.RunTools(cmd.OutOrStdout(), verbose)
		},
	}
	toolsCmd.Flags().BoolP("verbose", "v", false, "print input schemas")
	root.AddCommand(toolsCmd)

	promptsCmd := &cobra.Command{Use: "prompts", Short: "Read or append to the prompt log"}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent prompts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			return cli.RunPromptsList(cmd.Context(), rt, limit, cmd.OutOrStdout())
		},
	}
	listCmd.Flags().IntP("limit", "n", 20, "number of entries")
	logCmd := &cobra.Command{
		Use:   "log <prompt>",
		Short: "Record a prompt without refining it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			tags, _ := cmd.Flags().GetStringArray("tag")
			return cli.RunPromptsLog(cmd.Context(), rt, strings.Join(args, " "), tags, cmd.OutOrStdout())
		},
	}
	logCmd.Flags().StringArrayP("tag", "t", nil, "extra tag (repeatable, taken verbatim)")
	promptsCmd.AddCommand(listCmd, logCmd)
	root.AddCommand(promptsCmd)

	schedulesCmd := &cobra.Command{Use: "schedules", Short: "Inspect or trigger the configured schedules"}
	schedulesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show schedules with their next activation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return cli.RunSchedulesList(rt, time.Now(), cmd.OutOrStdout())
		},
	})
	runCmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Submit a schedule's instruction now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			asJSON, _ := cmd.Flags().GetBool("json")
			return cli.RunSchedulesRun(rt, args[0], scheduleRunTimeout, asJSON, cmd.OutOrStdout())
		},
	}
	runCmd.Flags().Bool("json", false, "print the full response as JSON")
	schedulesCmd.AddCommand(runCmd)
	root.AddCommand(schedulesCmd)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket gateway and the scheduled instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, bm, daemonShutdownCh)
		},
	})

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check config, oracle provider, store and schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")
			code := cli.RunCheck(cmd.Context(), configPath(cmd), cli.CheckOptions{Fix: fix}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	checkCmd.Flags().Bool("fix", false, "write default config if missing")
	root.AddCommand(checkCmd)

	return root
}

func configPath(cmd *cobra.Command) string {
	flag, _ := cmd.Flags().GetString("config")
	return config.ResolvePath(flag)
}

// loadConfig reads the config file. A missing file yields the defaults.
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cmd.ErrOrStderr(), "  (no config at %s, using defaults)\n", path)
		return config.Default(), nil
	}
	return cfg, err
}

func loadRuntime(cmd *cobra.Command) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Bootstrap(cmd.Context(), cfg, cmd.ErrOrStderr())
}

// runServe runs the gateway and the scheduler. If shutdownCh is non-nil, it
// returns when shutdownCh is closed (for tests). Otherwise it blocks on OS signals.
func runServe(cmd *cobra.Command, bm buildMeta, shutdownCh <-chan struct{}) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.Config

	sched, err := cli.NewScheduler(rt, scheduleRunTimeout)
	if err != nil {
		return err
	}

	srv, err := gateway.NewServer(&cfg.Gateway, rt.Agent, tooling.DefaultRegistry().Definitions(), gateway.WithLogger(rt.Logger))
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	gatewayShutdown := make(chan struct{})
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(gatewayShutdown) }()

	// Wait until the server has bound so "ready." means clients can connect.
	bound := ""
	for i := 0; i < daemonBindWaitIterations && bound == ""; i++ {
		if err := srv.ListenErr(); err != nil {
			return fmt.Errorf("gateway failed to bind: %w", err)
		}
		bound = srv.Addr()
		if bound == "" {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if bound == "" {
		close(gatewayShutdown)
		return errors.New("gateway failed to bind (check port or permissions)")
	}
	gatewayServerForTest.Store(srv)

	sched.Start()
	banner.Print(cmd.OutOrStdout(), bm.Version, banner.Options{
		LineDelay: bannerLineDelay,
		Details: []string{
			"listen " + bound,
			fmt.Sprintf("provider %s, store %s, %d schedule(s)", cfg.Agent.Provider, cfg.Store.Driver, len(cfg.Schedules)),
			"ready.",
		},
	})

	if shutdownCh != nil {
		<-shutdownCh
	} else {
		daemonWaitForShutdown()
	}
	sched.Stop()
	close(gatewayShutdown)
	return <-runErr
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=0.3.1" -o memoire ./cmd/memoire
var version string

// daemonShutdownCh is set by tests to unblock runServe without signals. Production leaves it nil.
var daemonShutdownCh <-chan struct{}

// daemonWaitForShutdown is set by init in main_signal*.go.
var daemonWaitForShutdown func()

// gatewayServerForTest is set when the gateway server starts so tests can read Addr().
var gatewayServerForTest atomic.Pointer[gateway.Server]

// daemonBindWaitIterations is the max loop count waiting for gateway to bind.
var daemonBindWaitIterations = 50

// bannerLineDelay animates the serve banner; tests set it to zero.
var bannerLineDelay = 35 * time.Millisecond

// exitCodeErr carries an exit code for the process. When returned from a command, runApp exits with that code.
type exitCodeErr int

func (e exitCodeErr) Error() string { return fmt.Sprintf("exit %d", int(e)) }
func (e exitCodeErr) ExitCode() int { return int(e) }

// runApp runs the root command with the given args and returns the exit code.
// A degraded ask exits with 2 after printing its response.
func runApp(args []string, stderr io.Writer) int {
	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		if errors.Is(err, cli.ErrDegraded) {
			return 2
		}
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
