// Package runner executes scheduled tasks, such as periodic scenario sweeps.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner schedules the tasks of a registry with cron.
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   zerolog.Logger
}

func NewRunner(registry *TaskRegistry, logger zerolog.Logger) *Runner {
	logger = logger.With().Str("component", "runner").Logger()
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		registry: registry,
		logger:   logger,
	}
}

// Start schedules every registered task and starts the scheduler. A task
// still running when its next tick fires is skipped for that tick.
func (r *Runner) Start(ctx context.Context) error {
	for _, name := range r.registry.Names() {
		task, _ := r.registry.Get(name)
		r.logger.Info().Str("task", name).Str("schedule", task.Schedule()).Msg("registering task")

		_, err := r.cron.AddFunc(task.Schedule(), func() {
			r.Execute(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", name, err)
		}
	}
	r.cron.Start()
	r.logger.Info().Int("tasks", len(r.registry.Names())).Msg("task runner started")
	return nil
}

// Run starts the runner and blocks until ctx ends or the process is
// interrupted, then stops gracefully.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	return r.waitForShutdown(ctx)
}

// Execute runs task once within its timeout.
func (r *Runner) Execute(ctx context.Context, task Task) error {
	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	r.logger.Info().Str("task", task.Name()).Msg("executing task")
	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error().Err(err).Str("task", task.Name()).Dur("duration", duration).Msg("task failed")
	} else {
		r.logger.Info().Str("task", task.Name()).Dur("duration", duration).Msg("task completed")
	}
	return err
}

// Stop stops scheduling and waits for running tasks to finish.
func (r *Runner) Stop() {
	r.logger.Info().Msg("stopping task runner")
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("task runner stopped")
}

func (r *Runner) waitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		r.logger.Info().Str("signal", sig.String()).Msg("received signal")
		r.Stop()
		return nil
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
