package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hzcore/movingaverage/config"
	"github.com/hzcore/movingaverage/feed"
	"github.com/hzcore/movingaverage/outlier"
	"github.com/hzcore/movingaverage/promstats"
	"github.com/hzcore/movingaverage/registry"
	"github.com/hzcore/movingaverage/tracker"
)

func main() {
	if err := newCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:          "mavg",
		Short:        "Computes weighted moving averages of numbers read from stdin",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, stdin, stdout)
		},
	}
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

func newLogger(cfg config.Log) *slog.Logger {
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.Kitchen,
	}))
}

func run(ctx context.Context, v *viper.Viper, stdin io.Reader, stdout io.Writer) error {
	file, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := newLogger(file.Log)

	reg := registry.NewBuilder().
		WithLogger(logger).
		OnOutlier(func(name string, e outlier.Event) {
			logger.Warn("outlier", "tracker", name, "sample", e.Sample, "average", e.Average)
		}).
		Build()
	for _, cfg := range file.Trackers {
		if _, err := reg.Acquire(cfg); err != nil {
			return err
		}
	}
	defer func() {
		for _, name := range reg.Names() {
			_ = reg.Release(name)
		}
	}()

	// Samples read from stdin go to the first configured tracker
	primary, _ := reg.Get(file.Trackers[0].Name)

	g, ctx := errgroup.WithContext(ctx)
	if file.Metrics.Addr != "" {
		server := newMetricsServer(file.Metrics, reg)
		g.Go(func() error {
			logger.Info("serving metrics", "addr", file.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	samples := make(chan float64)
	g.Go(func() error {
		defer close(samples)
		return feed.ReadSamples(ctx, stdin, samples)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sample, ok := <-samples:
				if !ok {
					if file.Metrics.Addr == "" {
						return nil
					}
					// Keep serving metrics after stdin is drained until interrupted
					<-ctx.Done()
					return ctx.Err()
				}
				primary.Push(sample)
				if err := printSnapshot(stdout, primary.Snapshot()); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMetricsServer(cfg config.Metrics, reg *registry.Registry) *http.Server {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(promstats.NewCollector(reg, cfg.Namespace))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printSnapshot(w io.Writer, s tracker.Snapshot) error {
	_, err := fmt.Fprintf(w, "%s %s %s %t\n",
		formatFloat(s.Value),
		formatFloat(s.Deviation),
		formatFloat(s.Delta),
		s.Rolling)
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
