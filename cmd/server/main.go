package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/WalidBenTouhami/server-bench/internal/cli"
	"github.com/WalidBenTouhami/server-bench/internal/config"
	"github.com/WalidBenTouhami/server-bench/internal/logger"
	"github.com/WalidBenTouhami/server-bench/internal/metrics"
	"github.com/WalidBenTouhami/server-bench/internal/monitor"
	"github.com/WalidBenTouhami/server-bench/internal/server"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "serverbench",
		Short: "binary squaring and HTTP server backed by a fixed worker pool",
		Long: fmt.Sprintf(`serverbench (%s)

Accepts connections on a binary squaring port and a minimal HTTP/1.1 port,
queues them in a bounded job queue and serves them from a fixed pool of
workers. Connections that find the queue full are closed immediately.

Settings come from flags, SERVERBENCH_* environment variables (.env files
are loaded too) and a YAML config file, in that order of precedence.`, cli.Version),
		SilenceUsage: true,
		RunE:         serve,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "serverbench %s\n", cli.Version)
		},
	}
)

func init() {
	d := config.Default()
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", cli.WrapString(
		fmt.Sprintf("path to the YAML config file (default searches . and %s)", config.Dir())))

	flags.String("log-level", d.Logging.Level, cli.WrapString("log level (debug, info, warn, error)"))
	flags.String("log-format", d.Logging.Format, cli.WrapString("log encoding (json, console)"))
	flags.String("log-output", d.Logging.Output, cli.WrapString("log destination: stdout, stderr or a file path"))

	flags.Int("workers", d.Server.Workers, cli.WrapString("number of worker goroutines serving queued connections"))
	flags.Int("queue-size", d.Server.QueueSize, cli.WrapString("capacity of the job queue; connections beyond it are closed at once"))
	flags.Duration("read-timeout", d.Server.ReadTimeout, cli.WrapString("deadline for reading a request once a worker owns the connection"))
	flags.Duration("write-timeout", d.Server.WriteTimeout, cli.WrapString("deadline for writing the response"))
	flags.Duration("shutdown-timeout", d.Server.ShutdownTimeout, cli.WrapString("how long in-flight and queued connections may finish after a shutdown signal before they are force-closed"))

	flags.String("binary-listen", d.Binary.Listen, cli.WrapString("address of the binary squaring listener; empty disables it"))
	flags.String("http-listen", d.HTTP.Listen, cli.WrapString("address of the HTTP listener; empty disables it"))
	flags.Bool("workload", d.Binary.Workload.Enabled, cli.WrapString("simulate CPU and sleep work before every binary response"))

	flags.Bool("metrics", d.Metrics.Enabled, cli.WrapString("expose Prometheus metrics"))
	flags.String("metrics-listen", d.Metrics.Listen, cli.WrapString("address of the /metrics endpoint"))
	flags.Duration("monitor-interval", d.Monitor.Interval, cli.WrapString("period of the status log line; 0 disables it"))

	configInitCmd.Flags().Bool("force", false, cli.WrapString("overwrite an existing file"))

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{server.WithLogger(log)}
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, server.WithMetrics(metrics.NewPrometheus(reg)))
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, reg, log)
	}

	srv, err := server.New(*cfg, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		return monitor.New(srv, cfg.Monitor.Interval, log).Run(ctx)
	})
	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", zap.Error(err))
		return err
	}
	log.Info("bye", zap.Int64("processed", srv.Processed()))
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()
	if len(args) == 1 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
