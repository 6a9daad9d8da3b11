package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/credentials"
	"github.com/gotrs-io/e2eprobe/internal/evidence"
	"github.com/gotrs-io/e2eprobe/internal/harness"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Navigation expectations beyond the outcome names.
const (
	ExpectReached    = "reached"
	ExpectNotReached = "not_reached"
	ExpectAny        = "any"
)

// Result is the outcome of one scenario.
type Result struct {
	Scenario string          `json:"scenario"`
	Mode     string          `json:"mode"`
	Passed   bool            `json:"passed"`
	Stopped  bool            `json:"stopped,omitempty"`
	Duration time.Duration   `json:"duration"`
	Findings check.Findings  `json:"findings"`
	Report   evidence.Report `json:"report"`
}

// Runner executes scenarios against a harness, one page per scenario.
type Runner struct {
	h    *harness.Harness
	log  zerolog.Logger
	mode string
	now  func() time.Time
}

// NewRunner creates a runner. mode overrides the configured mode for
// scenarios that do not set their own; empty keeps the configured one.
func NewRunner(h *harness.Harness, log zerolog.Logger, mode string) *Runner {
	if mode == "" {
		mode = h.Config().Mode
	}
	return &Runner{
		h:    h,
		log:  log.With().Str("component", "scenario").Logger(),
		mode: mode,
		now:  time.Now,
	}
}

// RunAll runs scenarios in order.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.Run(ctx, sc))
	}
	return results
}

// Run executes one scenario. In verify mode it stops at the first failed
// step; in investigate mode every step runs and failures become findings.
func (r *Runner) Run(ctx context.Context, sc Scenario) Result {
	start := r.now()
	mode := sc.EffectiveMode(r.mode)
	res := Result{Scenario: sc.Name, Mode: mode}
	log := r.log.With().Str("scenario", sc.Name).Str("mode", mode).Logger()

	ctx, cancel := r.h.TestContext(ctx)
	defer cancel()

	inv := check.NewInvestigation(sc.Name, check.WithMetrics(r.h.Metrics()))
	run, err := r.h.Begin(ctx, sc.Name)
	if err != nil {
		inv.Check("begin", err)
		res.Findings = inv.Findings()
		res.Duration = r.now().Sub(start)
		return res
	}
	inv = check.NewInvestigation(sc.Name, check.WithEvidence(run.Evidence), check.WithMetrics(r.h.Metrics()))

	exec := &executor{run: run, sc: sc}
	steps := sc.Steps
	var perr error
	if exec.ignore, perr = check.NewIgnoreList(sc.Ignore...); perr == nil {
		exec.ignoreNetwork, perr = check.NewIgnoreList(sc.IgnoreNetwork...)
	}
	if perr != nil {
		inv.Check(sc.Name+" ignore patterns", perr)
		steps = nil
	}

	for i, st := range steps {
		name := fmt.Sprintf("%s %02d %s", sc.Name, i+1, st)
		if inv.Check(name, exec.step(ctx, st)) {
			log.Debug().Str("step", name).Msg("step passed")
			continue
		}
		log.Warn().Str("step", name).Msg("step failed")
		if mode == config.ModeVerify {
			res.Stopped = i < len(steps)-1
			break
		}
	}

	report, err := run.End(ctx)
	if err != nil {
		inv.Check("end", err)
	}
	res.Report = report
	res.Findings = inv.Findings()
	res.Passed = res.Findings.Passed()
	res.Duration = r.now().Sub(start)
	r.h.Metrics().ObserveScenario(sc.Name, res.Duration)

	log.Info().
		Bool("passed", res.Passed).
		Int("failed", len(res.Findings.Failed())).
		Dur("duration", res.Duration).
		Msg("scenario finished")
	return res
}

type executor struct {
	run           *harness.Run
	sc            Scenario
	ignore        check.IgnoreList
	ignoreNetwork check.IgnoreList
}

func (e *executor) role(st Step) (credentials.Role, error) {
	name := st.Role
	if name == "" {
		name = e.sc.Role
	}
	return credentials.ParseRole(name)
}

func (e *executor) step(ctx context.Context, st Step) error {
	switch st.Kind {
	case StepLogin, StepLoginAPI:
		role, err := e.role(st)
		if err != nil {
			return err
		}
		if st.Kind == StepLoginAPI {
			_, err = e.run.LoginAPI(ctx, role)
		} else {
			_, err = e.run.Login(ctx, role)
		}
		return err

	case StepLogout:
		return e.run.Logout(ctx)

	case StepExpectAuthenticated:
		return check.ExpectAuthenticated(e.run.Session())

	case StepNavigate:
		return expectNavigation(e.run.NavigateTo(ctx, st.Navigate.Route), st.Navigate.Expect)

	case StepScreenshot:
		_, err := e.run.Screenshot(ctx, st.Label)
		return err

	case StepExpectNoConsoleErrors:
		return check.ExpectNoConsoleErrors(e.run.Evidence(), e.ignore)

	case StepExpectNoPageErrors:
		return check.ExpectNoPageErrors(e.run.Evidence())

	case StepExpectNoNetworkFailures:
		return check.ExpectNoNetworkFailures(e.run.Evidence(), e.ignoreNetwork)

	case StepAPI:
		doc, err := e.run.API().Get(ctx, st.API.Path)
		if err != nil {
			return err
		}
		if st.API.Field != "" {
			if err := check.ExpectField(doc, st.API.Field, st.API.Equals); err != nil {
				return err
			}
		}
		if st.API.Min != nil {
			return check.ExpectMinCount(doc, *st.API.Min)
		}
		return nil
	}
	return fmt.Errorf("unknown step %q", st.Kind)
}

func expectNavigation(res navigation.Result, expect string) error {
	switch expect {
	case "", ExpectReached:
		return check.ExpectReached(res)
	case ExpectNotReached:
		return check.ExpectNotReached(res)
	case ExpectAny:
		if res.Outcome == navigation.OutcomeError {
			return res.Err
		}
		return nil
	default:
		return check.ExpectOutcome(res, navigation.Outcome(expect))
	}
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Findings merges the findings of results into one document.
func Findings(title string, results []Result) check.Findings {
	out := check.Findings{Title: title, GeneratedAt: time.Now()}
	for _, r := range results {
		out.Merge(r.Findings)
	}
	return out
}
