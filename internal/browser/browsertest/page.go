// Package browsertest provides a scripted, in-memory browser.Page for unit tests.
//
// A Page is driven by a Router that maps the current path to a Screen. The
// router is consulted on every query, so state held in the router's closure
// (who is logged in, how many polls have happened) is reflected immediately.
package browsertest

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gotrs-io/e2eprobe/internal/browser"
)

// Element is a fake DOM element matched by its exact selector string.
type Element struct {
	Hidden bool
	Text   string
	// Href makes a click navigate to this path when Click is nil.
	Href  string
	Click func(p *Page) error
}

// Screen is what the page shows for a path.
type Screen struct {
	Status int
	// Redirect, when set, sends any navigation landing here on to this path.
	Redirect string
	Elements map[string]*Element
}

// Router returns the screen for path.
type Router func(path string) Screen

// Page implements browser.Page.
type Page struct {
	base   string
	router Router
	events *browser.Dispatcher

	mu      sync.Mutex
	path    string
	values  map[string]string
	cookies []*http.Cookie
	closed  bool
	gotos   []string
	clicks  []string
	shotErr error
	shotSeq int
}

var _ browser.Page = (*Page)(nil)

// New creates a page for base (e.g. "http://app.test") showing about:blank.
func New(base string, router Router) *Page {
	return &Page{
		base:   strings.TrimSuffix(base, "/"),
		router: router,
		events: browser.NewDispatcher(),
		values: make(map[string]string),
	}
}

// Show moves the page to path, following redirects, and returns the final status.
// Click handlers use it to simulate navigations.
func (p *Page) Show(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.showLocked(path)
}

func (p *Page) showLocked(path string) int {
	status := http.StatusOK
	for i := 0; i < 10; i++ {
		s := p.router(stripQuery(path))
		p.path = path
		if s.Status != 0 {
			status = s.Status
		}
		if s.Redirect == "" {
			break
		}
		path = s.Redirect
		status = http.StatusOK
	}
	p.values = make(map[string]string)
	return status
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

func (p *Page) screen() Screen {
	if p.path == "" {
		return Screen{}
	}
	return p.router(stripQuery(p.path))
}

func (p *Page) element(selector string) *Element {
	s := p.screen()
	if s.Elements == nil {
		return nil
	}
	return s.Elements[selector]
}

func (p *Page) Goto(rawURL string, _ time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, fmt.Errorf("page closed")
	}
	p.gotos = append(p.gotos, rawURL)

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		if u.Scheme+"://"+u.Host != p.base {
			return 0, fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", rawURL)
		}
		path = u.RequestURI()
	}
	return p.showLocked(path), nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return "about:blank"
	}
	return p.base + p.path
}

func (p *Page) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.element(selector) != nil {
		return 1, nil
	}
	return 0, nil
}

func (p *Page) Visible(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := p.element(selector)
	return el != nil && !el.Hidden, nil
}

func (p *Page) Fill(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.element(selector) == nil {
		return fmt.Errorf("fill: no element matches %q", selector)
	}
	p.values[selector] = value
	return nil
}

func (p *Page) Click(selector string) error {
	p.mu.Lock()
	el := p.element(selector)
	if el == nil {
		p.mu.Unlock()
		return fmt.Errorf("click: no element matches %q", selector)
	}
	p.clicks = append(p.clicks, selector)
	if el.Click == nil {
		if el.Href != "" {
			p.showLocked(el.Href)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return el.Click(p)
}

func (p *Page) Text(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := p.element(selector)
	if el == nil {
		return "", fmt.Errorf("text: no element matches %q", selector)
	}
	return el.Text, nil
}

// Screenshot returns a small fake PNG payload that names the current path.
func (p *Page) Screenshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	p.shotSeq++
	return []byte(fmt.Sprintf("\x89PNG fake %d %s", p.shotSeq, p.path)), nil
}

func (p *Page) AddCookies(_ string, cookies []*http.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) Listen(l browser.Listener) func() {
	return p.events.Add(l)
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Value returns what was last filled into selector on the current screen.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// Path returns the current path including any query.
func (p *Page) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Gotos lists every URL passed to Goto.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// Clicks lists every clicked selector.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Cookies lists cookies added to the page's context.
func (p *Page) Cookies() []*http.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*http.Cookie(nil), p.cookies...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailScreenshots makes subsequent Screenshot calls return err.
func (p *Page) FailScreenshots(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shotErr = err
}

// Listeners returns the number of active listeners.
func (p *Page) Listeners() int { return p.events.Len() }

func (p *Page) EmitConsole(level, text string)              { p.events.Console(level, text) }
func (p *Page) EmitPageError(msg string)                    { p.events.PageError(msg) }
func (p *Page) EmitResponse(method, url string, status int) { p.events.Response(method, url, status) }
func (p *Page) EmitRequestFailed(method, url string)        { p.events.RequestFailed(method, url) }

// Opener hands out pages built by a factory, recording each one.
type Opener struct {
	mu    sync.Mutex
	New   func() *Page
	Err   error
	pages []*Page
}

func (o *Opener) NewPage() (browser.Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	p := o.New()
	o.pages = append(o.pages, p)
	return p, nil
}

// Pages returns the pages opened so far.
func (o *Opener) Pages() []*Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Page(nil), o.pages...)
}
