package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/workledger/workledger/internal/config"
	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/client"
)

type globalFlags struct {
	configPath string
	server     string
	timeout    time.Duration
	json       bool
}

func (g *globalFlags) client() *client.Client {
	return client.New(g.server, client.WithHTTPClient(&http.Client{Timeout: g.timeout}))
}

// Main runs the workledger command line with args, excluding the program name.
func Main(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "workledger",
		Short:         "Multi-backend data access server for employees, companies and documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("WORKLEDGER_CONFIG"), "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&g.server, "server", envOr("WORKLEDGER_SERVER", "http://localhost:8080"), "base URL of a running server")
	rootCmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout for admin commands")
	rootCmd.PersistentFlags().BoolVar(&g.json, "json", false, "print raw JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print the store list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDRIVER\tPRIORITY\tENABLED")
			for _, s := range cfg.Stores {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", s.ID, s.Driver, s.Priority, s.IsEnabled())
			}
			return tw.Flush()
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the store status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := g.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep, g.json)
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <store-id>",
		Short: "Pin the active store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := g.client().SwitchTo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep, g.json)
		},
	}

	strategyCmd := &cobra.Command{
		Use:       "strategy <priority|round_robin|sticky_failover>",
		Short:     "Change the selection strategy",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(backend.StrategyPriority), string(backend.StrategyRoundRobin), string(backend.StrategyStickyFailover)},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := backend.ParseStrategy(args[0])
			if err != nil {
				return err
			}
			rep, err := g.client().SetStrategy(cmd.Context(), s)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep, g.json)
		},
	}

	enableCmd := &cobra.Command{
		Use:   "enable <store-id>",
		Short: "Enable a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, g, args[0], true)
		},
	}
	disableCmd := &cobra.Command{
		Use:   "disable <store-id>",
		Short: "Disable a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, g, args[0], false)
		},
	}

	probeCmd := &cobra.Command{
		Use:   "probe <store-id>",
		Short: "Run an immediate health probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := g.client().Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			state := "healthy"
			if !res.Healthy {
				state = "unhealthy: " + res.Error
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%.1fms)\n", res.StoreID, state, res.LatencyMS)
			return err
		},
	}

	readOnlyCmd := &cobra.Command{
		Use:   "readonly <on|off>",
		Short: "Toggle read-only maintenance mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			ro, err := g.client().SetReadOnly(cmd.Context(), on)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "read-only: %t\n", ro)
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version().String())
			return err
		},
	}

	rootCmd.AddCommand(serveCmd, checkCmd, statusCmd, switchCmd, strategyCmd,
		enableCmd, disableCmd, probeCmd, readOnlyCmd, versionCmd)
	return rootCmd
}

// runServe starts the fx application and blocks until the command context ends.
func runServe(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}

	app := fx.New(Module(cfg, LogOutput{cmd.ErrOrStderr()}), fx.NopLogger)
	startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-cmd.Context().Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

func setEnabled(cmd *cobra.Command, g *globalFlags, id string, enabled bool) error {
	rep, err := g.client().SetEnabled(cmd.Context(), id, enabled)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), rep, g.json)
}

func printReport(w io.Writer, rep backend.StatusReport, raw bool) error {
	if raw {
		return printJSON(w, rep)
	}
	pinned := rep.PinnedStoreID
	if pinned == "" {
		pinned = "-"
	}
	fmt.Fprintf(w, "strategy: %s  pinned: %s  open handles: %d\n\n", rep.Strategy, pinned, rep.OpenHandles)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDRIVER\tSTATUS\tPRIORITY\tENABLED\tFAILURES\tSUCCESSES")
	for _, s := range rep.Stores {
		marker := ""
		if s.ID == rep.ActiveStoreID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%d\t%d\n", marker, s.ID, s.Driver, s.Status,
			s.Priority, s.Enabled, s.ConsecutiveFailures, s.ConsecutiveSuccesses)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
