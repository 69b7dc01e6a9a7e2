package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/WalidBenTouhami/server-bench/internal/cli"
	"github.com/WalidBenTouhami/server-bench/internal/config"
	"github.com/WalidBenTouhami/server-bench/internal/logger"
	"github.com/WalidBenTouhami/server-bench/internal/pbench"
)

var header = []string{
	"file",
	"requests",
	"succeeded",
	"failed",
	"mean_us",
	"p50_us",
	"p99_us",
}

type record struct {
	file    string
	summary pbench.Summary
}

var rootCmd = &cobra.Command{
	Use:   "serverbench-analyze <directory>",
	Short: "Summarise the result files written by serverbench-client --write",
	Args:  cobra.ExactArgs(1),
	RunE:  run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringP("output", "o", "", cli.WrapString("file to write the summary to (default stdout)"))
	rootCmd.Flags().Int("concurrency", 1, cli.WrapString("number of files to analyze concurrently"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	log, err := logger.New(config.LoggingConfig{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	directory, err := os.ReadDir(args[0])
	if err != nil {
		return err
	}
	var inFiles []string
	for _, content := range directory {
		if content.Type().IsRegular() {
			inFiles = append(inFiles, filepath.Join(args[0], content.Name()))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	files := make(chan string)
	records := make(chan record, len(inFiles))

	g.Go(func() error {
		defer close(files)
		for _, file := range inFiles {
			select {
			case files <- file:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers, wctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workers.Go(func() error {
			for file := range files {
				r, err := process(wctx, file, log)
				if err != nil {
					log.Warn("skipping file", zap.String("file", file), zap.Error(err))
					continue
				}
				records <- r
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(records)
		return workers.Wait()
	})

	var collected []record
	for r := range records {
		collected = append(collected, r)
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].file < collected[j].file })

	write := func(w io.Writer) error {
		return writeRecords(w, collected)
	}
	if output != "" {
		return cli.WriteFile(output, write)
	}
	return write(cmd.OutOrStdout())
}

func process(ctx context.Context, file string, log *zap.Logger) (record, error) {
	if err := ctx.Err(); err != nil {
		return record{}, err
	}
	f, err := os.Open(file)
	if err != nil {
		return record{}, fmt.Errorf("cannot open %q: %w", file, err)
	}
	defer f.Close()

	samples, err := pbench.ReadSamples(f, func(line int, err error) {
		log.Debug("bad line", zap.String("file", file), zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return record{}, err
	}
	if len(samples) == 0 {
		return record{}, errors.New("no samples")
	}
	return record{file: filepath.Base(file), summary: pbench.Summarize(samples)}, nil
}

func writeRecords(w io.Writer, records []record) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = ';'

	if err := csvWriter.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		s := r.summary
		row := []string{
			r.file,
			strconv.Itoa(s.Requests),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.FormatInt(s.Mean.Microseconds(), 10),
			strconv.FormatInt(s.P50.Microseconds(), 10),
			strconv.FormatInt(s.P99.Microseconds(), 10),
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
