package check

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotrs-io/e2eprobe/internal/evidence"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
)

// Checker accepts check results. Check reports whether the check passed.
type Checker interface {
	Check(name string, err error) bool
}

type options struct {
	evidence func() evidence.Report
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Verifier or an Investigation.
type Option func(*options)

// WithEvidence attaches the current evidence to every failure.
func WithEvidence(report func() evidence.Report) Option {
	return func(o *options) { o.evidence = report }
}

// WithMetrics counts failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for finding timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func failureName(err error) string {
	var f *AssertionFailure
	if stderrors.As(err, &f) {
		return f.Check
	}
	return "harness_error"
}

// TestingT is the part of testing.TB a Verifier needs.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Verifier fails the test on the first failed check.
type Verifier struct {
	tb   TestingT
	opts options
}

var _ Checker = (*Verifier)(nil)

func NewVerifier(tb TestingT, opts ...Option) *Verifier {
	return &Verifier{tb: tb, opts: buildOptions(opts)}
}

// Check calls tb.Fatalf when err is non-nil. Harness errors fail the test
// the same way assertion failures do.
func (v *Verifier) Check(name string, err error) bool {
	v.tb.Helper()
	if err == nil {
		return true
	}
	err = attachEvidence(err, v.opts.evidence)
	v.opts.metrics.ObserveAssertionFailure(failureName(err))
	v.tb.Fatalf("%s: %v", name, err)
	return false
}

// Investigation records every check as a finding and never fails.
type Investigation struct {
	opts options

	mu       sync.Mutex
	findings Findings
}

var _ Checker = (*Investigation)(nil)

func NewInvestigation(title string, opts ...Option) *Investigation {
	o := buildOptions(opts)
	return &Investigation{
		opts:     o,
		findings: Findings{Title: title, GeneratedAt: o.now()},
	}
}

// Check records err as a finding. Harness errors become failed findings
// instead of propagating.
func (i *Investigation) Check(name string, err error) bool {
	f := Finding{Name: name, Passed: err == nil, At: i.opts.now()}
	if err != nil {
		err = attachEvidence(err, i.opts.evidence)
		i.opts.metrics.ObserveAssertionFailure(failureName(err))
		var af *AssertionFailure
		if stderrors.As(err, &af) {
			f.Check = af.Check
			f.Expected = af.Expected
			f.Actual = af.Actual
			f.Context = af.Context
			f.Evidence = af.Evidence
		} else {
			f.Check = "harness_error"
			f.Actual = err.Error()
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.findings.Findings = append(i.findings.Findings, f)
	return f.Passed
}

// Note records an observation that is neither a pass nor a failure.
func (i *Investigation) Note(name, format string, args ...any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.findings.Findings = append(i.findings.Findings, Finding{
		Name:   name,
		Check:  "note",
		Passed: true,
		Actual: fmt.Sprintf(format, args...),
		At:     i.opts.now(),
	})
}

// Findings returns a copy of what has been recorded.
func (i *Investigation) Findings() Findings {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.findings
	out.Findings = append([]Finding{}, i.findings.Findings...)
	return out
}
