package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/harness"
	"github.com/gotrs-io/e2eprobe/internal/logging"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/runner"
	"github.com/gotrs-io/e2eprobe/internal/runner/tasks"
	"github.com/gotrs-io/e2eprobe/internal/scenario"
	"github.com/gotrs-io/e2eprobe/internal/version"
)

func newWatchCmd(configFile *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run scenario sweeps on a schedule and export metrics",
		Long: `Watch runs the configured scenarios on scenarios.schedule (a cron
expression with a seconds field) and serves Prometheus metrics, a health check
and the last sweep as JSON on metrics.addr. Edits to the config file rebuild
the harness and reload the scenarios once the current sweep is done; changes to
scenarios.schedule and metrics.addr need a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), *configFile, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	return cmd
}

func runWatch(parent context.Context, configFile string, once bool) error {
	loader := config.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	log := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	resolveBaseURL(cfg, log)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	h, err := harness.New(ctx, cfg, log, harness.WithMetrics(m))
	if err != nil {
		return err
	}
	live := &liveHarness{h: h}
	defer live.close()

	scenarios, err := scenariosFor(cfg)
	if err != nil {
		return err
	}
	sweepLog := logging.Component(log, "watch")
	task := tasks.NewScenarioSweepTask(scenario.NewRunner(h, log, cfg.Mode), scenarios, cfg.Scenarios.Schedule, 0, log,
		func(s tasks.Sweep) {
			sweepLog.Info().Bool("passed", s.Passed).Int("scenarios", len(s.Results)).Dur("duration", s.Duration).Msg("sweep finished")
		})

	registry := runner.NewTaskRegistry()
	registry.Register(task)
	r := runner.NewRunner(registry, log)

	if once {
		return r.Execute(ctx, task)
	}

	loader.Watch(func(newCfg *config.Config) {
		resolveBaseURL(newCfg, log)
		scenarios, err := scenariosFor(newCfg)
		if err != nil {
			sweepLog.Warn().Err(err).Msg("scenario reload failed, keeping previous config")
			return
		}
		next, err := harness.New(ctx, newCfg, log, harness.WithMetrics(m))
		if err != nil {
			sweepLog.Warn().Err(err).Msg("harness rebuild failed, keeping previous config")
			return
		}
		task.SetRunner(scenario.NewRunner(next, log, newCfg.Mode))
		task.SetScenarios(scenarios)
		live.swap(next)

		if newCfg.Scenarios.Schedule != "" && newCfg.Scenarios.Schedule != task.Schedule() {
			sweepLog.Warn().Str("schedule", newCfg.Scenarios.Schedule).Msg("schedule changes take effect after a restart")
		}
		if newCfg.Metrics.Addr != cfg.Metrics.Addr {
			sweepLog.Warn().Str("addr", newCfg.Metrics.Addr).Msg("metrics.addr changes take effect after a restart")
		}
		sweepLog.Info().
			Str("base_url", newCfg.App.BaseURL).
			Int("scenarios", len(scenarios)).
			Msg("config reloaded")
	}, func(err error) {
		sweepLog.Warn().Err(err).Msg("config reload rejected")
	})

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           statusRouter(m, task),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go serve(srv, sweepLog)
	defer shutdown(srv, sweepLog)

	err = r.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// liveHarness owns the harness currently serving sweeps. A reload swaps in a
// new one only after the sweep task has let go of the old one.
type liveHarness struct {
	mu sync.Mutex
	h  *harness.Harness
}

func (l *liveHarness) swap(next *harness.Harness) {
	l.mu.Lock()
	old := l.h
	l.h = next
	l.mu.Unlock()
	_ = old.Close()
}

func (l *liveHarness) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.h.Close()
}

// statusRouter serves metrics, liveness and the last sweep.
func statusRouter(m *metrics.Metrics, task *tasks.ScenarioSweepTask) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
	})
	router.GET("/sweeps/last", func(c *gin.Context) {
		last, ok := task.Last()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sweep has completed yet"})
			return
		}
		c.JSON(http.StatusOK, last)
	})
	return router
}

func serve(srv *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", srv.Addr).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("status server failed")
	}
}

func shutdown(srv *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("status server shutdown")
	}
}
