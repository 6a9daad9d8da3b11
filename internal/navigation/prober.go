package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/auth"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/config"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/wait"
)

// Options configures a Prober.
type Options struct {
	BaseURL           string
	LoginRoute        string
	NavigationTimeout time.Duration
	LinkSearch        time.Duration
	Settle            time.Duration
	PollInterval      time.Duration
	Affordances       browser.Affordances
}

// OptionsFromConfig derives prober options from the harness configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:           cfg.App.BaseURL,
		LoginRoute:        cfg.App.LoginRoute,
		NavigationTimeout: cfg.Timeouts.Navigation,
		LinkSearch:        cfg.Timeouts.LinkSearch,
		Settle:            cfg.Timeouts.Settle,
		PollInterval:      cfg.Timeouts.PollInterval,
		Affordances:       browser.DefaultAffordances().WithOverrides(cfg.Affordances),
	}
}

// Prober navigates one page.
type Prober struct {
	page    browser.Page
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProber creates a prober for page. m may be nil.
func NewProber(page browser.Page, opts Options, log zerolog.Logger, m *metrics.Metrics) *Prober {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Prober{
		page:    page,
		opts:    opts,
		log:     log.With().Str("component", "nav").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// NavigateTo tries to reach route through an in-page link first and by direct
// navigation otherwise, then classifies the page it ends up on. Failures are
// reported in the Result, never returned, so callers probing for missing
// functionality can treat them as data. sess may be nil for anonymous probes.
func (p *Prober) NavigateTo(ctx context.Context, sess *auth.Session, route string) Result {
	statuses := newStatusLog()
	cancel := p.page.Listen(browser.Listener{OnResponse: statuses.record})
	defer cancel()

	res := p.navigate(ctx, route, statuses)
	res.At = p.now()
	if res.Err != nil {
		res.Message = res.Err.Error()
	}

	p.metrics.ObserveNavigation(string(res.Outcome), string(res.Strategy))
	level := zerolog.InfoLevel
	if res.Outcome == OutcomeError {
		level = zerolog.WarnLevel
	}
	ev := p.log.WithLevel(level).Err(res.Err)
	if sess != nil {
		ev = ev.Str("role", string(sess.Role))
	}
	ev.Str("route", route).
		Str("resolved_url", res.ResolvedURL).
		Str("outcome", string(res.Outcome)).
		Str("strategy", string(res.Strategy)).
		Int("status", res.Status).
		Msg("navigation classified")
	return res
}

func (p *Prober) navigate(ctx context.Context, route string, statuses *statusLog) Result {
	res := Result{RequestedRoute: route}
	if err := ctx.Err(); err != nil {
		return p.fail(res, &harnesserrors.TimeoutError{Operation: "navigate to " + route, LastState: "url=" + p.page.URL(), Err: err})
	}

	res.Strategy = StrategyLink
	clicked, err := p.followLink(ctx, route)
	if err != nil {
		return p.fail(res, err)
	}
	if !clicked {
		res.Strategy = StrategyDirect
		status, err := p.page.Goto(p.opts.BaseURL+routeWithSlash(route), p.opts.NavigationTimeout)
		if err != nil {
			return p.fail(res, p.timeoutAsNavigation(route, p.opts.NavigationTimeout, err))
		}
		res.Status = status
	}

	resolved, err := wait.Stable(ctx, wait.Options{Operation: "settle after navigating to " + route, Timeout: p.opts.Settle, Interval: p.opts.PollInterval}, p.page.URL)
	if err != nil {
		return p.fail(res, p.timeoutAsNavigation(route, p.opts.Settle, err))
	}
	res.ResolvedURL = resolved
	if res.Status == 0 {
		res.Status = statuses.get(resolved)
	}

	notFound, err := browser.Present(p.page, p.opts.Affordances.NotFoundMarker)
	if err != nil {
		return p.fail(res, err)
	}
	denied, err := browser.Present(p.page, p.opts.Affordances.AccessDeniedMarker)
	if err != nil {
		return p.fail(res, err)
	}

	res.Outcome = ClassifyPage(p.opts.BaseURL, p.opts.LoginRoute, route, resolved, Signals{
		Status:             res.Status,
		NotFoundMarker:     notFound,
		AccessDeniedMarker: denied,
	})
	if res.Outcome == OutcomeError {
		res.Err = fmt.Errorf("%w: navigate to %s resolved to %q", ErrNoPage, route, resolved)
	}
	return res
}

// followLink looks for an in-page link to route for at most LinkSearch and
// clicks it. It reports false when no link was found.
func (p *Prober) followLink(ctx context.Context, route string) (bool, error) {
	if p.opts.LinkSearch <= 0 || !strings.HasPrefix(p.page.URL(), p.opts.BaseURL) {
		return false, nil
	}
	selectors := linkSelectors(p.opts.BaseURL, route)

	var found string
	err := wait.Until(ctx, wait.Options{Operation: "link search", Timeout: p.opts.LinkSearch, Interval: p.opts.PollInterval}, func() (bool, string, error) {
		for _, sel := range selectors {
			n, err := p.page.Count(sel)
			if err != nil {
				return false, "", err
			}
			if n > 0 {
				found = sel
				return true, sel, nil
			}
		}
		return false, "no link", nil
	})
	if err != nil {
		if harnesserrors.IsTimeout(err) && ctx.Err() == nil {
			return false, nil
		}
		return false, err
	}

	before := p.page.URL()
	if err := p.page.Click(found); err != nil {
		p.log.Debug().Err(err).Str("selector", found).Msg("link click failed, navigating directly")
		return false, nil
	}

	target := normalisePath(routePath(route))
	err = wait.Until(ctx, wait.Options{Operation: "navigate to " + route, Timeout: p.opts.NavigationTimeout, Interval: p.opts.PollInterval}, func() (bool, string, error) {
		cur := p.page.URL()
		if cur != before {
			return true, cur, nil
		}
		u, err := url.Parse(cur)
		return err == nil && normalisePath(u.Path) == target, "url=" + cur, nil
	})
	if err != nil {
		return true, p.timeoutAsNavigation(route, p.opts.NavigationTimeout, err)
	}
	return true, nil
}

func (p *Prober) fail(res Result, err error) Result {
	res.Outcome = OutcomeError
	res.Err = err
	res.ResolvedURL = p.page.URL()
	return res
}

func (p *Prober) timeoutAsNavigation(route string, timeout time.Duration, err error) error {
	var te *harnesserrors.TimeoutError
	if !errors.As(err, &te) {
		return err
	}
	return &harnesserrors.NavigationTimeoutError{
		Route:     route,
		Timeout:   timeout,
		LastState: te.LastState,
		Err:       err,
	}
}

// linkSelectors matches anchors whose href is route, relative or absolute.
func linkSelectors(baseURL, route string) []string {
	r := routeWithSlash(route)
	return []string{
		fmt.Sprintf("a[href='%s']", r),
		fmt.Sprintf("a[href='%s%s']", baseURL, r),
	}
}

func routeWithSlash(route string) string {
	if !strings.HasPrefix(route, "/") {
		return "/" + route
	}
	return route
}

// statusLog remembers the last document status seen per URL.
type statusLog struct {
	mu    sync.Mutex
	byURL map[string]int
}

func newStatusLog() *statusLog {
	return &statusLog{byURL: make(map[string]int)}
}

func (s *statusLog) record(method, rawURL string, status int) {
	if method != "GET" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURL[rawURL] = status
}

func (s *statusLog) get(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byURL[rawURL]
}
