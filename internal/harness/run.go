package harness

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/apiclient"
	"github.com/gotrs-io/e2eprobe/internal/auth"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/credentials"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/evidence"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Run is one test's page, session and evidence. Runs share nothing with each
// other and are not safe for concurrent use.
type Run struct {
	Name string

	h       *Harness
	log     zerolog.Logger
	page    browser.Page
	api     *apiclient.Client
	auth    *auth.Client
	prober  *navigation.Prober
	capture *evidence.Handle

	mu      sync.Mutex
	session *auth.Session
	ended   bool
}

// Session returns the current session, or nil before login.
func (r *Run) Session() *auth.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Run) setSession(s *auth.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = s
}

// Page exposes the run's browser page for UI actions the harness does not model.
func (r *Run) Page() browser.Page { return r.page }

// API returns the run's API client. It carries the token of an API login.
func (r *Run) API() *apiclient.Client { return r.api }

// Login signs in through the UI as role.
func (r *Run) Login(ctx context.Context, role credentials.Role) (*auth.Session, error) {
	sess, err := r.auth.Login(ctx, role)
	if err != nil {
		return nil, err
	}
	r.setSession(sess)
	return sess, nil
}

// LoginAPI signs in through the API and hands the session to the browser.
func (r *Run) LoginAPI(ctx context.Context, role credentials.Role) (*auth.Session, error) {
	sess, err := r.auth.LoginAPI(ctx, role)
	if err != nil {
		return nil, err
	}
	r.setSession(sess)
	return sess, nil
}

// Logout signs the current session out.
func (r *Run) Logout(ctx context.Context) error {
	sess := r.Session()
	if sess == nil {
		return &harnesserrors.InvalidSessionStateError{Operation: "logout", State: auth.StateUnauthenticated.String()}
	}
	return r.auth.Logout(ctx, sess)
}

// NavigateTo probes route with the current session and records the result.
func (r *Run) NavigateTo(ctx context.Context, route string) navigation.Result {
	res := r.prober.NavigateTo(ctx, r.Session(), route)
	if err := r.h.collector.Record(r.capture, res); err != nil {
		r.log.Warn().Err(err).Str("route", route).Msg("navigation not recorded")
	}
	return res
}

// Screenshot stores the current page under label.
func (r *Run) Screenshot(ctx context.Context, label string) (evidence.Screenshot, error) {
	return r.h.collector.Screenshot(ctx, r.capture, label)
}

// Evidence returns what has been captured so far.
func (r *Run) Evidence() evidence.Report {
	return r.capture.Snapshot()
}

// Verifier returns a checker that fails tb with this run's evidence attached.
func (r *Run) Verifier(tb check.TestingT) *check.Verifier {
	return check.NewVerifier(tb, check.WithEvidence(r.Evidence), check.WithMetrics(r.h.metrics))
}

// Investigation returns a checker that records findings with this run's
// evidence attached.
func (r *Run) Investigation() *check.Investigation {
	return check.NewInvestigation(r.Name, check.WithEvidence(r.Evidence), check.WithMetrics(r.h.metrics))
}

// End stops capture, ends the session, persists the report when configured
// and closes the page. It succeeds once.
func (r *Run) End(ctx context.Context) (evidence.Report, error) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return evidence.Report{}, &harnesserrors.CaptureAlreadyStoppedError{TestName: r.Name}
	}
	r.ended = true
	sess := r.session
	r.mu.Unlock()

	report, err := r.h.collector.StopCapture(r.capture)
	if err != nil {
		return evidence.Report{}, err
	}
	r.auth.Expire(sess, "teardown")

	var errs []error
	if r.h.cfg.Evidence.Persist {
		if _, err := r.h.collector.Persist(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	return report, stderrors.Join(errs...)
}

// TB is the part of testing.TB that ForTest uses.
type TB interface {
	check.TestingT
	Name() string
	Cleanup(func())
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
	Failed() bool
}

// ForTest begins a run named after tb and ends it in tb's cleanup. The
// returned context carries the per-test timeout.
func ForTest(tb TB, h *Harness) (*Run, context.Context) {
	tb.Helper()
	ctx, cancel := h.TestContext(context.Background())
	tb.Cleanup(cancel)

	r, err := h.Begin(ctx, tb.Name())
	if err != nil {
		tb.Fatalf("begin run: %v", err)
	}
	tb.Cleanup(func() {
		report, err := r.End(context.Background())
		if err != nil && !harnesserrors.IsCaptureAlreadyStopped(err) {
			tb.Errorf("end run: %v", err)
		}
		if tb.Failed() {
			tb.Logf("evidence: %s", report.Summary())
		}
	})
	return r, ctx
}
