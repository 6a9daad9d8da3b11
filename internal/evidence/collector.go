package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/artifacts"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Evidence kinds, used as metric labels.
const (
	KindConsoleError   = "console_error"
	KindPageError      = "page_error"
	KindNetworkFailure = "network_failure"
	KindScreenshot     = "screenshot"
	KindNavigation     = "navigation"
)

// TestContext identifies the test a capture belongs to.
type TestContext struct {
	Name string
	// RunID groups the artifacts of several tests under one directory.
	RunID string
}

func (tc TestContext) dir() string {
	if tc.RunID == "" {
		return Slug(tc.Name)
	}
	return path.Join(Slug(tc.RunID), Slug(tc.Name))
}

// Collector starts captures and stores their artifacts. Every capture gets its
// own artifact directory: names that slug to the same directory get a numeric
// suffix.
type Collector struct {
	store   artifacts.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	dirs map[string]struct{}
}

// Option configures a Collector.
type Option func(*Collector)

// WithMetrics counts evidence events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func NewCollector(store artifacts.Store, log zerolog.Logger, opts ...Option) *Collector {
	c := &Collector{
		store: store,
		log:   log.With().Str("component", "evidence").Logger(),
		now:   time.Now,
		dirs:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle is one in-progress capture. It belongs to a single test.
type Handle struct {
	test TestContext
	page browser.Page
	dir  string

	mu      sync.Mutex
	report  Report
	labels  map[string]struct{}
	seq     int
	stopped bool
	cancel  func()
}

// Test returns the context the capture was started with.
func (h *Handle) Test() TestContext {
	return h.test
}

// Snapshot returns a copy of the evidence gathered so far.
func (h *Handle) Snapshot() Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report.Clone()
}

// StartCapture subscribes to page events until StopCapture. Console messages
// are kept only at error level; responses only with status >= 400.
func (c *Collector) StartCapture(tc TestContext, page browser.Page) *Handle {
	dir := c.claimDir(tc.dir())
	h := &Handle{
		test: tc,
		page: page,
		dir:  dir,
		report: Report{
			TestName:  tc.Name,
			RunID:     tc.RunID,
			Dir:       dir,
			StartedAt: c.now(),
		},
		labels: make(map[string]struct{}),
	}
	h.cancel = page.Listen(browser.Listener{
		OnConsole: func(level, text string) {
			if level != browser.LevelError {
				return
			}
			if h.append(func(r *Report) { r.ConsoleErrors = append(r.ConsoleErrors, text) }) {
				c.observe(tc, KindConsoleError, text)
			}
		},
		OnPageError: func(msg string) {
			if h.append(func(r *Report) { r.PageErrors = append(r.PageErrors, msg) }) {
				c.observe(tc, KindPageError, msg)
			}
		},
		OnResponse: func(method, url string, status int) {
			if status < 400 {
				return
			}
			f := NetworkFailure{Method: method, URL: url, Status: status}
			if h.append(func(r *Report) { r.NetworkFailures = append(r.NetworkFailures, f) }) {
				c.observe(tc, KindNetworkFailure, f.String())
			}
		},
		OnRequestFailed: func(method, url string) {
			f := NetworkFailure{Method: method, URL: url}
			if h.append(func(r *Report) { r.NetworkFailures = append(r.NetworkFailures, f) }) {
				c.observe(tc, KindNetworkFailure, f.String())
			}
		},
	})
	c.log.Debug().Str("test", tc.Name).Str("dir", dir).Msg("capture started")
	return h
}

func (c *Collector) claimDir(base string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := base
	for n := 2; ; n++ {
		if _, taken := c.dirs[dir]; !taken {
			break
		}
		dir = fmt.Sprintf("%s-%d", base, n)
	}
	c.dirs[dir] = struct{}{}
	return dir
}

// Dir is the artifact directory of the capture, relative to the store.
func (h *Handle) Dir() string {
	return h.dir
}

// append applies fn to the report unless the capture has stopped.
func (h *Handle) append(fn func(*Report)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	fn(&h.report)
	return true
}

func (c *Collector) observe(tc TestContext, kind, detail string) {
	c.metrics.ObserveEvidence(kind)
	c.log.Debug().Str("test", tc.Name).Str("kind", kind).Str("detail", detail).Msg("evidence recorded")
}

// Screenshot captures the page and stores it as
// <test>/<nn>-<label>.png. Labels are unique within a report.
func (c *Collector) Screenshot(ctx context.Context, h *Handle, label string) (Screenshot, error) {
	if label == "" {
		return Screenshot{}, fmt.Errorf("evidence: screenshot label must not be empty")
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return Screenshot{}, &harnesserrors.CaptureAlreadyStoppedError{TestName: h.test.Name}
	}
	if _, dup := h.labels[label]; dup {
		h.mu.Unlock()
		return Screenshot{}, &harnesserrors.DuplicateLabelError{Label: label}
	}
	h.labels[label] = struct{}{}
	h.seq++
	key := path.Join(h.dir, fmt.Sprintf("%02d-%s.png", h.seq, Slug(label)))
	h.mu.Unlock()

	shot, err := c.capture(ctx, h, label, key)
	if err != nil {
		h.mu.Lock()
		delete(h.labels, label)
		h.mu.Unlock()
		return Screenshot{}, err
	}

	if !h.append(func(r *Report) { r.Screenshots = append(r.Screenshots, shot) }) {
		return Screenshot{}, &harnesserrors.CaptureAlreadyStoppedError{TestName: h.test.Name}
	}
	c.metrics.ObserveEvidence(KindScreenshot)
	c.log.Debug().Str("test", h.test.Name).Str("label", label).Str("ref", shot.Ref).Msg("screenshot stored")
	return shot, nil
}

func (c *Collector) capture(ctx context.Context, h *Handle, label, key string) (Screenshot, error) {
	if err := ctx.Err(); err != nil {
		return Screenshot{}, &harnesserrors.TimeoutError{Operation: "screenshot " + label, LastState: "url=" + h.page.URL(), Err: err}
	}
	data, err := h.page.Screenshot()
	if err != nil {
		return Screenshot{}, fmt.Errorf("screenshot %q: %w", label, err)
	}
	ref, err := c.store.Put(ctx, key, data, "image/png")
	if err != nil {
		return Screenshot{}, fmt.Errorf("store screenshot %q: %w", label, err)
	}
	return Screenshot{Label: label, Ref: ref, URL: h.page.URL(), At: c.now()}, nil
}

// Record attaches a navigation result to the report.
func (c *Collector) Record(h *Handle, res navigation.Result) error {
	if !h.append(func(r *Report) { r.Navigations = append(r.Navigations, res) }) {
		return &harnesserrors.CaptureAlreadyStoppedError{TestName: h.test.Name}
	}
	c.metrics.ObserveEvidence(KindNavigation)
	return nil
}

// StopCapture unsubscribes from the page and returns the final report. It
// succeeds exactly once per handle.
func (c *Collector) StopCapture(h *Handle) (Report, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return Report{}, &harnesserrors.CaptureAlreadyStoppedError{TestName: h.test.Name}
	}
	h.stopped = true
	h.report.Timestamp = c.now()
	report := h.report.Clone()
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.log.Info().
		Str("test", report.TestName).
		Int("screenshots", len(report.Screenshots)).
		Int("console_errors", len(report.ConsoleErrors)).
		Int("page_errors", len(report.PageErrors)).
		Int("network_failures", len(report.NetworkFailures)).
		Dur("duration", report.Duration()).
		Msg("capture stopped")
	return report, nil
}

// Persist writes the report as <dir>/report.json and returns its reference.
// Reports that did not come from StartCapture get a directory claimed now.
func (c *Collector) Persist(ctx context.Context, report Report) (string, error) {
	if report.Dir == "" {
		report.Dir = c.claimDir(TestContext{Name: report.TestName, RunID: report.RunID}.dir())
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	ref, err := c.store.Put(ctx, path.Join(report.Dir, "report.json"), data, "application/json")
	if err != nil {
		return "", fmt.Errorf("persist report: %w", err)
	}
	c.log.Info().Str("test", report.TestName).Str("ref", ref).Msg("report persisted")
	return ref, nil
}
