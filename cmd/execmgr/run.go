package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	execmgr "github.com/Swind/go-execution-manager"
	"github.com/Swind/go-execution-manager/config"
	"github.com/Swind/go-execution-manager/core"
	"github.com/Swind/go-execution-manager/logging"
	execprom "github.com/Swind/go-execution-manager/observability/prometheus"
)

const maxRate = 1_000_000

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Create the configured contexts and submit synthetic load to every executor",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "Stop after this long; zero runs until SIGINT or SIGTERM",
			},
			&cli.IntFlag{
				Name:  "rate",
				Value: 1000,
				Usage: "Tasks per second submitted to each executor",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics on this address; overrides metrics.addr",
			},
		},
		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	rate := c.Int("rate")
	if rate < 1 || rate > maxRate {
		return cli.Exit(fmt.Sprintf("rate must be between 1 and %d", maxRate), 1)
	}

	f, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	cfgs, err := f.Build()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	pollEvery, _ := f.Metrics.PollEvery()

	z, err := logging.New(f.Logging)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer func() { _ = z.Sync() }()

	reg := prom.NewRegistry()
	exporter, err := execprom.NewMetricsExporter(f.Metrics.Namespace, reg, execprom.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	m := execmgr.InitGlobalExecutionManager(
		execmgr.WithLogger(logging.NewCoreLogger(z)),
		execmgr.WithMetrics(exporter),
	)
	defer execmgr.ShutdownGlobalExecutionManager()

	for _, cfg := range cfgs {
		if err := m.Add(cfg); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	poller, err := execprom.NewSnapshotPoller(f.Metrics.Namespace, reg, pollEvery)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	for _, ec := range m.Contexts() {
		poller.AddContext(ec.Name(), ec)
	}
	poller.Start(ctx)
	defer poller.Stop()

	addr := f.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}
	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				z.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		z.Info("serving metrics", zap.String("addr", addr))
	}

	z.Info("execution manager running",
		zap.String("manager", m.ID()),
		zap.Strings("executors", m.ExecutorNames()),
		zap.Int("rate", rate),
	)

	var accepted, rejected, completed atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	for name, exec := range m.Executors() {
		gen := loadGenerator{name: name, exec: exec, rate: rate}
		g.Go(func() error {
			return gen.run(gctx, &accepted, &rejected, &completed)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	m.Stop()
	poller.CollectOnce()

	for _, ec := range m.Contexts() {
		st := ec.Stats()
		fmt.Fprintf(c.App.Writer, "✓ %-16s %-15s executed=%d panicked=%d\n", st.Name, st.Type, st.Executed, st.Panicked)
	}
	fmt.Fprintf(c.App.Writer, "accepted=%d rejected=%d completed=%d\n", accepted.Load(), rejected.Load(), completed.Load())
	return nil
}

func metricsMux(reg *prom.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// loadGenerator submits a small task to one executor at a fixed rate.
type loadGenerator struct {
	name string
	exec core.TaskExecutor
	rate int
}

func (l loadGenerator) run(ctx context.Context, accepted, rejected, completed *atomic.Uint64) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.rate))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		seq++
		n := seq
		task := func(ctx context.Context) {
			spin(n)
			completed.Add(1)
		}
		// Alternate between Execute and Defer so both paths carry load.
		var ok bool
		if n%2 == 0 {
			ok = l.exec.Execute(task)
		} else {
			ok = l.exec.Defer(task)
		}
		if ok {
			accepted.Add(1)
		} else {
			rejected.Add(1)
		}
	}
}

// spin burns a little CPU so task durations are not all zero.
func spin(n uint64) uint64 {
	x := n
	for i := 0; i < 256; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	return x
}
