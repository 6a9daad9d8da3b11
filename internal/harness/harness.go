// Package harness wires credentials, the browser, authentication, navigation
// and evidence capture into isolated per-test runs.
package harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/apiclient"
	"github.com/gotrs-io/e2eprobe/internal/artifacts"
	"github.com/gotrs-io/e2eprobe/internal/auth"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/credentials"
	"github.com/gotrs-io/e2eprobe/internal/evidence"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Harness is shared by all runs of a process. It holds only read-only or
// internally synchronised collaborators.
type Harness struct {
	cfg       *config.Config
	log       zerolog.Logger
	creds     credentials.Source
	opener    browser.Opener
	launcher  *browser.Launcher
	store     artifacts.Store
	collector *evidence.Collector
	metrics   *metrics.Metrics
	runID     string
}

// Option configures a Harness.
type Option func(*Harness)

// WithOpener supplies pages instead of launching Playwright.
func WithOpener(o browser.Opener) Option {
	return func(h *Harness) { h.opener = o }
}

// WithCredentials replaces the credentials from the configuration.
func WithCredentials(src credentials.Source) Option {
	return func(h *Harness) { h.creds = src }
}

// WithStore replaces the artifact store selected by the configuration.
func WithStore(s artifacts.Store) Option {
	return func(h *Harness) { h.store = s }
}

// WithMetrics shares a metrics registry with the caller.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

// WithRunID groups artifacts under id instead of a random one.
func WithRunID(id string) Option {
	return func(h *Harness) { h.runID = id }
}

// New builds a harness. Unless WithOpener is given it starts Playwright,
// which Close stops again.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Harness, error) {
	h := &Harness{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(h)
	}

	if h.runID == "" {
		h.runID = uuid.NewString()[:8]
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.creds == nil {
		store, err := credentials.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		h.creds = store
	}
	if h.store == nil {
		store, err := artifacts.Open(ctx, cfg.Evidence)
		if err != nil {
			return nil, err
		}
		h.store = store
	}
	h.collector = evidence.NewCollector(h.store, log, evidence.WithMetrics(h.metrics))

	if h.opener == nil {
		launcher := browser.NewLauncher(cfg.Browser, cfg.Timeouts.Default, cfg.Evidence.OutputDir, log)
		if err := launcher.Start(); err != nil {
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		h.launcher = launcher
		h.opener = launcher
	}

	log.Info().
		Str("run_id", h.runID).
		Str("base_url", cfg.App.BaseURL).
		Str("mode", cfg.Mode).
		Msg("harness ready")
	return h, nil
}

// Close releases the browser if the harness launched it.
func (h *Harness) Close() error {
	if h.launcher == nil {
		return nil
	}
	return h.launcher.Stop()
}

func (h *Harness) Config() *config.Config { return h.cfg }

func (h *Harness) Metrics() *metrics.Metrics { return h.metrics }

func (h *Harness) RunID() string { return h.runID }

// TestContext bounds parent by the configured per-test timeout.
func (h *Harness) TestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.Timeouts.Test <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.cfg.Timeouts.Test)
}

// Begin opens an isolated page for test name and starts capturing evidence.
func (h *Harness) Begin(ctx context.Context, name string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := h.opener.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page for %q: %w", name, err)
	}

	log := h.log.With().Str("test", name).Logger()
	api := apiclient.NewClient(apiclient.Config{
		BaseURL:    h.cfg.App.APIBaseURL,
		LoginPath:  h.cfg.App.APILoginPath,
		UserPath:   h.cfg.App.APIUserPath,
		HealthPath: h.cfg.App.HealthPath,
		Timeout:    h.cfg.Timeouts.Default,
	}, log)

	r := &Run{
		Name:    name,
		h:       h,
		log:     log.With().Str("component", "run").Logger(),
		page:    page,
		api:     api,
		auth:    auth.NewClient(page, h.creds, auth.OptionsFromConfig(h.cfg), log, auth.WithAPI(api), auth.WithMetrics(h.metrics)),
		prober:  navigation.NewProber(page, navigation.OptionsFromConfig(h.cfg), log, h.metrics),
		capture: h.collector.StartCapture(evidence.TestContext{Name: name, RunID: h.runID}, page),
	}
	r.log.Debug().Msg("run started")
	return r, nil
}
