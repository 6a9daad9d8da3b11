// Package browser defines the narrow browser surface the harness drives and
// its Playwright implementation.
package browser

import (
	"net/http"
	"time"
)

// Console levels reported to listeners.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Page is a single browser tab living in its own isolated context.
type Page interface {
	// Goto performs an address-bar navigation and returns the main response status
	// (0 when the browser produced no response, e.g. same-document navigations).
	Goto(url string, timeout time.Duration) (int, error)
	URL() string
	Count(selector string) (int, error)
	Visible(selector string) (bool, error)
	Fill(selector, value string) error
	Click(selector string) error
	Text(selector string) (string, error)
	Screenshot() ([]byte, error)
	AddCookies(baseURL string, cookies []*http.Cookie) error
	// Listen subscribes l to page events until the returned cancel is called.
	Listen(l Listener) (cancel func())
	Close() error
}

// Listener receives page events. Nil callbacks are ignored.
type Listener struct {
	OnConsole       func(level, text string)
	OnPageError     func(message string)
	OnResponse      func(method, url string, status int)
	OnRequestFailed func(method, url string)
}

// Opener hands out isolated pages, one per test.
type Opener interface {
	NewPage() (Page, error)
}
