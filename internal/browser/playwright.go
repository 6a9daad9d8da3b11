package browser

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/e2eprobe/internal/config"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// Launcher owns the Playwright driver and one Chromium instance. Every call to
// NewPage gets a fresh BrowserContext so tests never share cookies or storage.
type Launcher struct {
	cfg       config.BrowserConfig
	timeout   time.Duration
	outputDir string
	log       zerolog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewLauncher creates a launcher; Start must be called before NewPage.
func NewLauncher(cfg config.BrowserConfig, defaultTimeout time.Duration, outputDir string, log zerolog.Logger) *Launcher {
	return &Launcher{
		cfg:       cfg,
		timeout:   defaultTimeout,
		outputDir: outputDir,
		log:       log.With().Str("component", "browser").Logger(),
	}
}

// Start installs the driver (unless PLAYWRIGHT_PREINSTALLED=1 or install is
// disabled), runs it and launches Chromium.
func (l *Launcher) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return nil
	}

	if l.cfg.Install && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(); err != nil {
			return fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		// Fallback: install the driver explicitly then retry
		_ = playwright.Install()
		pw, err = playwright.Run()
		if err != nil {
			return fmt.Errorf("could not start playwright after retry: %w", err)
		}
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		SlowMo:   playwright.Float(float64(l.cfg.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("could not launch browser: %w", err)
	}

	l.pw = pw
	l.browser = browser
	l.log.Debug().Bool("headless", l.cfg.Headless).Msg("chromium launched")
	return nil
}

// NewPage opens an isolated context and a page inside it.
func (l *Launcher) NewPage() (Page, error) {
	l.mu.Lock()
	browser := l.browser
	l.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not started")
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.cfg.Viewport.Width,
			Height: l.cfg.Viewport.Height,
		},
	}
	if l.cfg.RecordVideo {
		opts.RecordVideo = &playwright.RecordVideo{
			Dir: filepath.Join(l.outputDir, "videos"),
		}
	}
	bctx, err := browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultTimeout(float64(l.timeout.Milliseconds()))

	return newPlaywrightPage(bctx, page), nil
}

// Stop closes the browser and the driver.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.browser != nil {
		errs = append(errs, l.browser.Close())
		l.browser = nil
	}
	if l.pw != nil {
		errs = append(errs, l.pw.Stop())
		l.pw = nil
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	bctx     playwright.BrowserContext
	page     playwright.Page
	dispatch *Dispatcher
}

func newPlaywrightPage(bctx playwright.BrowserContext, page playwright.Page) *playwrightPage {
	p := &playwrightPage{bctx: bctx, page: page, dispatch: NewDispatcher()}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		p.dispatch.Console(normaliseLevel(msg.Type()), msg.Text())
	})
	page.OnPageError(func(err error) {
		p.dispatch.PageError(err.Error())
	})
	page.OnResponse(func(resp playwright.Response) {
		p.dispatch.Response(resp.Request().Method(), resp.URL(), resp.Status())
	})
	page.OnRequestFailed(func(req playwright.Request) {
		p.dispatch.RequestFailed(req.Method(), req.URL())
	})
	return p
}

func normaliseLevel(t string) string {
	switch t {
	case "error", "assert":
		return LevelError
	case "warning", "warn":
		return LevelWarning
	default:
		return LevelInfo
	}
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) (int, error) {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return 0, &harnesserrors.TimeoutError{Operation: "goto " + url, Timeout: timeout, LastState: p.page.URL(), Err: err}
		}
		if strings.Contains(err.Error(), "ERR_TOO_MANY_REDIRECTS") {
			return 0, fmt.Errorf("redirect loop navigating to %s: %w", url, err)
		}
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Visible(selector string) (bool, error) {
	return p.page.Locator(selector).First().IsVisible()
}

func (p *playwrightPage) Fill(selector, value string) error {
	return p.page.Locator(selector).First().Fill(value)
}

func (p *playwrightPage) Click(selector string) error {
	return p.page.Locator(selector).First().Click()
}

func (p *playwrightPage) Text(selector string) (string, error) {
	return p.page.Locator(selector).First().TextContent()
}

func (p *playwrightPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

func (p *playwrightPage) AddCookies(baseURL string, cookies []*http.Cookie) error {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			URL:      playwright.String(baseURL),
			HttpOnly: playwright.Bool(c.HttpOnly),
			Secure:   playwright.Bool(c.Secure),
		})
	}
	return p.bctx.AddCookies(out)
}

func (p *playwrightPage) Listen(l Listener) func() {
	return p.dispatch.Add(l)
}

// Close closes the page's context, which also flushes any recorded video.
func (p *playwrightPage) Close() error {
	return p.bctx.Close()
}
