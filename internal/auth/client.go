// Package auth drives the application's login and logout flows and tracks the
// resulting sessions.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/apiclient"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/credentials"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/wait"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	LoginRoute        string
	LandingRoute      string
	LoginTimeout      time.Duration
	NavigationTimeout time.Duration
	PollInterval      time.Duration
	Attempts          int
	Affordances       browser.Affordances
}

// OptionsFromConfig derives client options from the harness configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:           cfg.App.BaseURL,
		LoginRoute:        cfg.App.LoginRoute,
		LandingRoute:      cfg.App.LandingRoute,
		LoginTimeout:      cfg.Timeouts.Login,
		NavigationTimeout: cfg.Timeouts.Navigation,
		PollInterval:      cfg.Timeouts.PollInterval,
		Attempts:          cfg.Auth.LoginAttempts,
		Affordances:       browser.DefaultAffordances().WithOverrides(cfg.Affordances),
	}
}

// TokenIssuer performs an API login.
type TokenIssuer interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResult, error)
}

// Client logs one browser page in and out.
type Client struct {
	page    browser.Page
	creds   credentials.Source
	api     TokenIssuer
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	memo map[credentials.Role]credentials.Credential
}

// Option customises a Client.
type Option func(*Client)

// WithAPI enables LoginAPI.
func WithAPI(api TokenIssuer) Option {
	return func(c *Client) { c.api = api }
}

// WithMetrics records login attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides time.Now, used for session timestamps and TOTP codes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for page.
func NewClient(page browser.Page, creds credentials.Source, opts Options, log zerolog.Logger, options ...Option) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	c := &Client{
		page:  page,
		creds: creds,
		opts:  opts,
		log:   log.With().Str("component", "auth").Logger(),
		now:   time.Now,
		memo:  make(map[credentials.Role]credentials.Credential),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// credential looks role up once per client; later logins reuse the result.
func (c *Client) credential(role credentials.Role) (credentials.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cred, ok := c.memo[role]; ok {
		return cred, nil
	}
	cred, err := c.creds.Get(role)
	if err != nil {
		return credentials.Credential{}, err
	}
	c.memo[role] = cred
	return cred, nil
}

// Login authenticates as role through the login form.
func (c *Client) Login(ctx context.Context, role credentials.Role) (*Session, error) {
	cred, err := c.credential(role)
	if err != nil {
		c.metrics.ObserveLogin(string(role), "unknown_role")
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		sess, err := c.attempt(ctx, cred)
		c.metrics.ObserveLogin(string(role), resultLabel(err))
		if err == nil {
			c.log.Info().
				Str("role", string(role)).
				Str("landing_url", sess.LandingURL).
				Int("attempt", attempt).
				Msg("login succeeded")
			return sess, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Str("role", string(role)).Int("attempt", attempt).Msg("login attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, cred credentials.Credential) (*Session, error) {
	aff := c.opts.Affordances

	if err := c.openLoginForm(ctx); err != nil {
		return nil, err
	}

	// Re-login in a browser that is already signed in. Without a marker there is
	// no way to tell a signed-in page from a public one, so this needs one.
	if len(aff.AuthenticatedMarker.Selectors) > 0 {
		if ok, err := c.authenticatedHere(); err != nil {
			return nil, err
		} else if ok {
			return newSession(cred.Role, c.page.URL(), MethodUI, c.now()), nil
		}
	}

	formWait := wait.Options{Operation: "login form", Timeout: c.opts.LoginTimeout, Interval: c.opts.PollInterval}
	emailSel, err := browser.ResolveWithin(ctx, c.page, aff.EmailInput, formWait)
	if err != nil {
		return nil, c.formNotFound(err)
	}
	passwordSel, err := browser.Resolve(c.page, aff.PasswordInput)
	if err != nil {
		return nil, c.formNotFound(err)
	}

	if err := c.page.Fill(emailSel, cred.Email); err != nil {
		return nil, fmt.Errorf("failed to fill email: %w", err)
	}
	if err := c.page.Fill(passwordSel, cred.Password); err != nil {
		return nil, fmt.Errorf("failed to fill password: %w", err)
	}
	if err := c.submit(); err != nil {
		return nil, err
	}

	return c.awaitOutcome(ctx, cred)
}

// openLoginForm follows the application's own login entry when it offers one
// and falls back to the login route.
func (c *Client) openLoginForm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &harnesserrors.TimeoutError{Operation: "login", LastState: "url=" + c.page.URL(), Err: err}
	}
	if _, err := c.page.Goto(c.opts.BaseURL+"/", c.opts.NavigationTimeout); err != nil {
		return fmt.Errorf("failed to open application: %w", err)
	}
	if sel, err := browser.Resolve(c.page, c.opts.Affordances.LoginEntry); err == nil {
		if err := c.page.Click(sel); err != nil {
			return fmt.Errorf("failed to click login entry: %w", err)
		}
		// The entry may open the form asynchronously; the form wait covers it.
		return nil
	} else if !harnesserrors.IsElementNotFound(err) {
		return err
	}
	if _, err := c.page.Goto(c.opts.BaseURL+c.opts.LoginRoute, c.opts.NavigationTimeout); err != nil {
		return fmt.Errorf("failed to navigate to login: %w", err)
	}
	return nil
}

func (c *Client) submit() error {
	sel, err := browser.Resolve(c.page, c.opts.Affordances.Submit)
	if err != nil {
		return err
	}
	if err := c.page.Click(sel); err != nil {
		return fmt.Errorf("failed to click submit: %w", err)
	}
	return nil
}

// awaitOutcome polls for an error banner, a second-factor prompt or a signed-in
// page until the login timeout.
func (c *Client) awaitOutcome(ctx context.Context, cred credentials.Credential) (*Session, error) {
	aff := c.opts.Affordances
	totpSent := false
	var banner string

	err := wait.Until(ctx, wait.Options{Operation: "login as " + string(cred.Role), Timeout: c.opts.LoginTimeout, Interval: c.opts.PollInterval}, func() (bool, string, error) {
		state := "url=" + c.page.URL()

		if sel, ok, err := firstVisible(c.page, aff.ErrorBanner); err != nil {
			return false, state, err
		} else if ok {
			text, _ := c.page.Text(sel)
			banner = strings.TrimSpace(text)
			if banner == "" {
				banner = "error indicator shown"
			}
			return true, state, nil
		}

		if !totpSent {
			if sel, ok, err := firstVisible(c.page, aff.TOTPInput); err != nil {
				return false, state, err
			} else if ok {
				if cred.TOTPSecret == "" {
					banner = "second factor required but no TOTP secret configured"
					return true, state, nil
				}
				code, err := totp.GenerateCode(cred.TOTPSecret, c.now())
				if err != nil {
					return false, state, fmt.Errorf("generate TOTP code: %w", err)
				}
				if err := c.page.Fill(sel, code); err != nil {
					return false, state, fmt.Errorf("failed to fill TOTP code: %w", err)
				}
				totpSent = true
				return false, state, c.submit()
			}
		}

		ok, err := c.authenticatedHere()
		return ok, state, err
	})

	if err == nil && banner == "" {
		return newSession(cred.Role, c.page.URL(), MethodUI, c.now()), nil
	}
	if err == nil {
		return nil, &harnesserrors.AuthenticationRejectedError{Role: string(cred.Role), URL: c.page.URL(), Message: banner}
	}
	if !harnesserrors.IsTimeout(err) || ctx.Err() != nil {
		return nil, err
	}
	if c.onLoginRoute() {
		return nil, &harnesserrors.AuthenticationRejectedError{
			Role:    string(cred.Role),
			URL:     c.page.URL(),
			Message: fmt.Sprintf("still on login route after %s", c.opts.LoginTimeout),
		}
	}
	return nil, &harnesserrors.AmbiguousStateError{Role: string(cred.Role), LastState: "url=" + c.page.URL()}
}

// authenticatedHere reports whether the page shows a signed-in screen: off the
// login route, and showing the authenticated marker when one is configured.
func (c *Client) authenticatedHere() (bool, error) {
	if c.onLoginRoute() || !c.inApp() {
		return false, nil
	}
	if len(c.opts.Affordances.AuthenticatedMarker.Selectors) == 0 {
		return true, nil
	}
	return browser.Present(c.page, c.opts.Affordances.AuthenticatedMarker)
}

func (c *Client) formNotFound(err error) error {
	if harnesserrors.IsElementNotFound(err) {
		return &harnesserrors.LoginFormNotFoundError{URL: c.page.URL(), Timeout: c.opts.LoginTimeout}
	}
	return err
}

func (c *Client) onLoginRoute() bool {
	return pathOf(c.page.URL()) == c.opts.LoginRoute
}

func (c *Client) inApp() bool {
	return strings.HasPrefix(c.page.URL(), c.opts.BaseURL)
}

// LoginAPI authenticates as role through the API and hands the resulting
// cookies to the browser context.
func (c *Client) LoginAPI(ctx context.Context, role credentials.Role) (*Session, error) {
	if c.api == nil {
		return nil, fmt.Errorf("API login is not configured")
	}
	cred, err := c.credential(role)
	if err != nil {
		c.metrics.ObserveLogin(string(role), "unknown_role")
		return nil, err
	}

	res, err := c.api.Login(ctx, cred.Email, cred.Password)
	if err != nil {
		c.metrics.ObserveLogin(string(role), resultLabel(err))
		if harnesserrors.IsUnauthorized(err) || harnesserrors.IsForbidden(err) {
			return nil, &harnesserrors.AuthenticationRejectedError{Role: string(role), URL: c.opts.BaseURL, Message: err.Error()}
		}
		return nil, err
	}
	if err := c.page.AddCookies(c.opts.BaseURL, res.Cookies); err != nil {
		return nil, fmt.Errorf("failed to transfer session cookies: %w", err)
	}

	// The browser must accept the transferred session on the landing route.
	if _, err := c.page.Goto(c.opts.BaseURL+c.opts.LandingRoute, c.opts.NavigationTimeout); err != nil {
		return nil, fmt.Errorf("failed to open landing route: %w", err)
	}
	if c.onLoginRoute() {
		err := &harnesserrors.AuthenticationRejectedError{Role: string(role), URL: c.page.URL(), Message: "API session not accepted by the browser"}
		c.metrics.ObserveLogin(string(role), resultLabel(err))
		return nil, err
	}

	sess := newSession(role, c.page.URL(), MethodAPI, c.now())
	sess.Token = res.Token
	sess.ExpiresAt = res.ExpiresAt
	c.metrics.ObserveLogin(string(role), "success")
	c.log.Info().Str("role", string(role)).Str("method", string(MethodAPI)).Msg("login succeeded")
	return sess, nil
}

// Logout signs the session out through the UI and ends it.
func (c *Client) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return &harnesserrors.InvalidSessionStateError{Operation: "logout", State: StateUnauthenticated.String()}
	}
	if err := sess.require("logout"); err != nil {
		return err
	}

	sel, err := browser.Resolve(c.page, c.opts.Affordances.LogoutControl)
	if err != nil {
		if harnesserrors.IsElementNotFound(err) {
			return &harnesserrors.LogoutControlNotFoundError{Err: err}
		}
		return err
	}
	if err := c.page.Click(sel); err != nil {
		return fmt.Errorf("failed to click logout: %w", err)
	}

	marker := c.opts.Affordances.AuthenticatedMarker
	err = wait.Until(ctx, wait.Options{Operation: "logout", Timeout: c.opts.LoginTimeout, Interval: c.opts.PollInterval}, func() (bool, string, error) {
		state := "url=" + c.page.URL()
		if len(marker.Selectors) == 0 {
			return c.onLoginRoute(), state, nil
		}
		present, err := browser.Present(c.page, marker)
		return !present, state, err
	})
	if err != nil {
		return err
	}

	sess.end("logout")
	c.log.Info().Str("role", string(sess.Role)).Msg("logged out")
	return nil
}

// Expire ends the session without touching the browser, as when the
// application's session lapses or the test tears down.
func (c *Client) Expire(sess *Session, reason string) {
	if sess == nil {
		return
	}
	if reason == "" {
		reason = "expired"
	}
	sess.end(reason)
}

func firstVisible(page browser.Page, aff browser.Affordance) (string, bool, error) {
	for _, sel := range aff.Selectors {
		ok, err := page.Visible(sel)
		if err != nil {
			return "", false, err
		}
		if ok {
			return sel, true, nil
		}
	}
	return "", false, nil
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case harnesserrors.IsUnknownRole(err):
		return "unknown_role"
	case harnesserrors.IsAuthenticationRejected(err), harnesserrors.IsUnauthorized(err):
		return "rejected"
	case harnesserrors.IsAmbiguousState(err):
		return "ambiguous"
	case harnesserrors.IsLoginFormNotFound(err):
		return "form_not_found"
	case harnesserrors.IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
