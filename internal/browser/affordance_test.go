package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/browser/browsertest"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/wait"
)

func loggedInPage(t *testing.T, app *browsertest.App) *browsertest.Page {
	t.Helper()
	app.SignIn("admin")
	page := app.NewPage("http://app.test")
	_, err := page.Goto("http://app.test/dashboard", time.Second)
	require.NoError(t, err)
	return page
}

func TestResolveFirstMatchWins(t *testing.T) {
	page := loggedInPage(t, browsertest.NewApp())
	aff := browser.Affordance{Name: "logout control", Selectors: []string{"#missing", browsertest.SelLogout, browsertest.SelAuthMarker}}

	sel, err := browser.Resolve(page, aff)
	require.NoError(t, err)
	assert.Equal(t, browsertest.SelLogout, sel)
}

func TestResolveNotFound(t *testing.T) {
	app := browsertest.NewApp()
	app.NoLogoutControl = true
	page := loggedInPage(t, app)

	_, err := browser.Resolve(page, browser.DefaultAffordances().LogoutControl)

	var notFound *harnesserrors.ElementNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "logout control", notFound.Affordance)
	assert.Equal(t, "http://app.test/dashboard", notFound.URL)
	assert.NotEmpty(t, notFound.Selectors)
}

func TestResolveUsesReveal(t *testing.T) {
	app := browsertest.NewApp()
	app.LogoutInMenu = true
	page := loggedInPage(t, app)

	sel, err := browser.Resolve(page, browser.DefaultAffordances().LogoutControl)
	require.NoError(t, err)
	assert.Equal(t, browsertest.SelLogout, sel)
	assert.Equal(t, []string{browsertest.SelUserMenu}, page.Clicks())
}

func TestResolveWithinTimesOutAsNotFound(t *testing.T) {
	page := browsertest.NewApp().NewPage("http://app.test")
	_, err := page.Goto("http://app.test/", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = browser.ResolveWithin(context.Background(), page, browser.DefaultAffordances().EmailInput,
		wait.Options{Operation: "find email", Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond})

	assert.True(t, harnesserrors.IsElementNotFound(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPresent(t *testing.T) {
	page := loggedInPage(t, browsertest.NewApp())
	aff := browser.DefaultAffordances()

	ok, err := browser.Present(page, aff.AuthenticatedMarker)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = browser.Present(page, aff.ErrorBanner)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithOverrides(t *testing.T) {
	aff := browser.DefaultAffordances().WithOverrides(map[string][]string{
		"Logout_Control":       {"#sign-out"},
		"authenticated_marker": {},
		"logout_reveal":        {"#avatar"},
		"unknown":              {"x"},
	})

	assert.Equal(t, []string{"#sign-out"}, aff.LogoutControl.Selectors)
	assert.Equal(t, "#avatar", aff.LogoutControl.Reveal)
	assert.Empty(t, aff.AuthenticatedMarker.Selectors)
	assert.Equal(t, browser.DefaultAffordances().Submit, aff.Submit)
}

func TestDispatcherFanOut(t *testing.T) {
	d := browser.NewDispatcher()
	var a, b []string

	cancelA := d.Add(browser.Listener{OnConsole: func(level, text string) { a = append(a, level+":"+text) }})
	d.Add(browser.Listener{
		OnConsole:   func(level, text string) { b = append(b, text) },
		OnPageError: func(msg string) { b = append(b, "pageerror:"+msg) },
	})

	d.Console("error", "one")
	cancelA()
	cancelA()
	d.Console("error", "two")
	d.PageError("boom")
	d.Response("GET", "http://x", 500)

	assert.Equal(t, []string{"error:one"}, a)
	assert.Equal(t, []string{"one", "two", "pageerror:boom"}, b)
	assert.Equal(t, 1, d.Len())
}
