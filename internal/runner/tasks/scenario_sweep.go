package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/runner"
	"github.com/gotrs-io/e2eprobe/internal/scenario"
)

const (
	// DefaultSchedule runs a sweep every 15 minutes.
	DefaultSchedule = "0 */15 * * * *"
	// DefaultTimeout bounds a whole sweep.
	DefaultTimeout = 10 * time.Minute
)

// ScenarioRunner runs a list of scenarios.
type ScenarioRunner interface {
	RunAll(ctx context.Context, scenarios []scenario.Scenario) []scenario.Result
}

// Sweep is the last completed sweep.
type Sweep struct {
	At       time.Time         `json:"at"`
	Duration time.Duration     `json:"duration"`
	Passed   bool              `json:"passed"`
	Results  []scenario.Result `json:"results"`
}

// ScenarioSweepTask runs a scenario set on a schedule. The set and the runner
// can be swapped while the cron runner is live, e.g. after a config reload.
type ScenarioSweepTask struct {
	schedule string
	timeout  time.Duration
	logger   zerolog.Logger
	onSweep  func(Sweep)

	// sweeping is held for a whole sweep; SetRunner takes it to wait one out.
	sweeping sync.Mutex
	runner   ScenarioRunner

	mu        sync.RWMutex
	scenarios []scenario.Scenario
	last      *Sweep
}

// NewScenarioSweepTask creates the task. An empty schedule or a zero timeout
// selects the defaults. onSweep, if set, is called after every sweep.
func NewScenarioSweepTask(r ScenarioRunner, scenarios []scenario.Scenario, schedule string, timeout time.Duration, logger zerolog.Logger, onSweep func(Sweep)) *ScenarioSweepTask {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ScenarioSweepTask{
		runner:    r,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger.With().Str("component", "sweep").Logger(),
		onSweep:   onSweep,
		scenarios: scenarios,
	}
}

var _ runner.Task = (*ScenarioSweepTask)(nil)

func (t *ScenarioSweepTask) Name() string { return "scenario-sweep" }

func (t *ScenarioSweepTask) Schedule() string { return t.schedule }

func (t *ScenarioSweepTask) Timeout() time.Duration { return t.timeout }

// SetScenarios replaces the scenarios used by the next sweep.
func (t *ScenarioSweepTask) SetScenarios(scenarios []scenario.Scenario) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scenarios = scenarios
}

// SetRunner replaces the runner and returns the previous one. It waits for a
// sweep in progress to finish, so the caller may release the old runner's
// resources as soon as it returns.
func (t *ScenarioSweepTask) SetRunner(r ScenarioRunner) ScenarioRunner {
	t.sweeping.Lock()
	defer t.sweeping.Unlock()
	old := t.runner
	t.runner = r
	return old
}

// Last returns the most recent sweep, if any.
func (t *ScenarioSweepTask) Last() (Sweep, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Sweep{}, false
	}
	return *t.last, true
}

// Run executes one sweep. It fails when any scenario fails.
func (t *ScenarioSweepTask) Run(ctx context.Context) error {
	t.sweeping.Lock()
	defer t.sweeping.Unlock()

	t.mu.RLock()
	scenarios := t.scenarios
	t.mu.RUnlock()

	if len(scenarios) == 0 {
		t.logger.Warn().Msg("no scenarios configured, skipping sweep")
		return nil
	}

	start := time.Now()
	results := t.runner.RunAll(ctx, scenarios)
	sweep := Sweep{
		At:       start,
		Duration: time.Since(start),
		Passed:   scenario.Passed(results) && len(results) == len(scenarios),
		Results:  results,
	}

	t.mu.Lock()
	t.last = &sweep
	t.mu.Unlock()
	if t.onSweep != nil {
		t.onSweep(sweep)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sweep interrupted after %d of %d scenario(s): %w", len(results), len(scenarios), err)
	}
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenario(s) failed", failed, len(results))
	}
	return nil
}
