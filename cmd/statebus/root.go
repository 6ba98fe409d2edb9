package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/statebus/internal/app"
	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/demo"
	"github.com/dshills/statebus/internal/event/dispatch"
	"github.com/dshills/statebus/internal/logging"
)

type rootFlags struct {
	config    string
	logLevel  string
	logFormat string
}

// load reads the config file and applies flag overrides on top of it.
func (f *rootFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	return cfg, cfg.Validate()
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "statebus",
		Short:         "In-process typed state event bus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Config file (.toml, .yaml, .json)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug|info|warn|error|disabled")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "Log format: console|json")

	root.AddCommand(
		newRunCmd(flags),
		newDemoCmd(flags),
		newInspectConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bus service until interrupted",
		Long: "Starts the worker pool, the demo buses, configured Lua scripts, the demo\n" +
			"driver and, when enabled, the admin HTTP server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg)
		},
	}
}

func newDemoCmd(flags *rootFlags) *cobra.Command {
	opts := demo.DefaultScenario()
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sample scenario once and print what subscribers observed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			pool := dispatch.NewPool(dispatch.WithWorkers(cfg.Pool.Workers), dispatch.WithPoolLogger(log))
			defer pool.Shutdown(context.Background())

			buses, err := demo.NewBuses(pool, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if _, err := demo.RunScenario(ctx, buses, opts, cmd.OutOrStdout()); err != nil {
				return err
			}

			for _, b := range buses.Inspectors() {
				s := b.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "bus %s: %d publishes, %d deliveries, %d suppressed, %d topics\n",
					s.Name, s.SyncPublishes+s.AsyncPublishes, s.Deliveries, s.Suppressed, s.Topics)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Topic, "topic", opts.Topic, "Window topic")
	cmd.Flags().IntVar(&opts.Publishers, "publishers", opts.Publishers, "Concurrent frame publishers")
	cmd.Flags().IntVar(&opts.FramesPerPublisher, "frames", opts.FramesPerPublisher, "Frames per publisher")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Scenario timeout")
	return cmd
}

func newInspectConfigCmd(flags *rootFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect-config",
		Short: "Load, validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = "toml"
				if flags.config != "" {
					format = filepath.Ext(flags.config)[1:]
				}
			}
			data, err := config.Encode("effective."+format, cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format: toml|yaml|json (defaults to the input format)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statebus %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
