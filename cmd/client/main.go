package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/WalidBenTouhami/server-bench/internal/cli"
	"github.com/WalidBenTouhami/server-bench/internal/config"
	"github.com/WalidBenTouhami/server-bench/internal/logger"
	"github.com/WalidBenTouhami/server-bench/internal/pbench"
)

var rootCmd = &cobra.Command{
	Use:   "serverbench-client",
	Short: "Load a running serverbench instance and report round-trip times",
	Long: `Sends a fixed number of requests to one of the server's ports, with
exponentially distributed gaps when a rate is given, and prints a summary.
Every flag can also be set as SERVERBENCH_CLIENT_<FLAG>, e.g.
SERVERBENCH_CLIENT_CONCURRENCY=32.`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: run,
}

func init() {
	viper.SetEnvPrefix("SERVERBENCH_CLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.Flags()
	flags.String("protocol", string(pbench.Binary), cli.WrapString("protocol to speak (binary, http)"))
	flags.String("addr", "127.0.0.1:5051", cli.WrapString("server address"))
	flags.Int("requests", 1000, cli.WrapString("total number of requests"))
	flags.Int("concurrency", 8, cli.WrapString("requests in flight at most"))
	flags.Float64("rate", 0, cli.WrapString("mean requests per second; 0 sends back to back"))
	flags.String("path", "/hello", cli.WrapString("request path for the http protocol"))
	flags.Duration("timeout", pbench.DefaultTimeout, cli.WrapString("per-request dial, write and read deadline"))
	flags.String("write", "", cli.WrapString("file to write one seq;status;rtt_us;error line per request to"))
	flags.String("log-level", "info", cli.WrapString("log level (debug, info, warn, error)"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log, err := logger.New(config.LoggingConfig{
		Level:  viper.GetString("log-level"),
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	c := pbench.Config{
		Protocol:    pbench.Protocol(strings.ToLower(viper.GetString("protocol"))),
		Addr:        viper.GetString("addr"),
		Requests:    viper.GetInt("requests"),
		Concurrency: viper.GetInt("concurrency"),
		Rate:        viper.GetFloat64("rate"),
		Path:        viper.GetString("path"),
		Timeout:     viper.GetDuration("timeout"),
	}
	log.Debug("bench config", zap.Any("config", c))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary pbench.Summary
	bench := func(out io.Writer) error {
		var err error
		summary, err = pbench.Bench(ctx, c, out)
		return err
	}
	if path := viper.GetString("write"); path != "" {
		err = cli.WriteFile(path, bench)
	} else {
		err = bench(nil)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if summary.Failed > 0 {
		log.Warn("some requests failed", zap.Int("failed", summary.Failed))
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
