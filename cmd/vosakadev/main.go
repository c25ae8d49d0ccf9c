// Command vosakadev is a small demo/debug harness for the scheduler: it
// loads ambient config, wires a colorized logger and a Prometheus
// registry, awaits one task that sleeps briefly and returns a greeting, and
// prints its result and the scheduler's stats. It is not part of the
// scheduler's public API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/VennDev/VOsaka/internal/config"
	"github.com/VennDev/VOsaka/internal/watchdog"
	"github.com/VennDev/VOsaka/vosaka"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("VOSAKA_CONFIG_FILE"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []vosaka.Option{
		vosaka.WithLogger(logger),
		vosaka.WithLoggingEnabled(cfg.EnableLogging),
		vosaka.WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		vosaka.WithMemoryWatchdog(watchdog.Config{
			SoftLimitMB:   cfg.WatchdogSoftLimitMB,
			CheckInterval: cfg.WatchdogCheckEvery,
			GCInterval:    cfg.WatchdogGCEvery,
		}),
	}
	if cfg.MetricsEnabled {
		opts = append(opts, vosaka.WithMetricsRegisterer(prometheus.NewRegistry()))
	}

	sched := vosaka.NewScheduler(opts...)
	if cfg.EnableMaximumPeriod {
		sched.SetMaximumPeriod(cfg.MaximumPeriod)
		sched.SetEnableMaximumPeriod(true)
	}

	greeter := vosaka.RunnableFunc(func(y *vosaka.Yielder) (any, error) {
		if err := y.Sleep(0.05); err != nil {
			return nil, err
		}
		return "hello from vosaka", nil
	})

	handle, err := sched.Await(greeter)
	if err != nil {
		logger.Error("spawn failed", "error", err)
		os.Exit(1)
	}

	result, err := handle.Wait(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	if !result.Ok() {
		logger.Error("task failed", "error", result.Error())
		os.Exit(1)
	}
	fmt.Println(result.Value)
	logger.Info("demo run complete", "stats", sched.Stats())
}
