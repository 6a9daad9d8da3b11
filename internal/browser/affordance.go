package browser

import (
	"context"
	"strings"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/wait"
)

// Affordance describes one UI capability (the login submit control, the logout
// control, ...) as an ordered list of selectors resolved by a single strategy:
// the first selector with a match wins. Reveal, when set, is clicked once to
// expose a control hidden behind a menu.
type Affordance struct {
	Name      string
	Selectors []string
	Reveal    string
}

// Resolve returns the first selector of aff that matches an element on page.
func Resolve(page Page, aff Affordance) (string, error) {
	if sel, err := firstMatch(page, aff.Selectors); err != nil || sel != "" {
		return sel, err
	}
	if aff.Reveal != "" {
		if n, err := page.Count(aff.Reveal); err == nil && n > 0 {
			if err := page.Click(aff.Reveal); err != nil {
				return "", err
			}
			if sel, err := firstMatch(page, aff.Selectors); err != nil || sel != "" {
				return sel, err
			}
		}
	}
	return "", notFound(page, aff)
}

// ResolveWithin polls until a selector of aff matches. On expiry it makes one
// final Resolve, which also tries Reveal. Cancellation of ctx is returned as
// the wait's TimeoutError.
func ResolveWithin(ctx context.Context, page Page, aff Affordance, opts wait.Options) (string, error) {
	var found string
	err := wait.Until(ctx, opts, func() (bool, string, error) {
		sel, err := firstMatch(page, aff.Selectors)
		if err != nil {
			return false, "", err
		}
		found = sel
		return sel != "", "url=" + page.URL(), nil
	})
	if err != nil {
		if harnesserrors.IsTimeout(err) && ctx.Err() == nil {
			return Resolve(page, aff)
		}
		return "", err
	}
	return found, nil
}

// Present reports whether any selector of aff matches a visible element.
func Present(page Page, aff Affordance) (bool, error) {
	for _, sel := range aff.Selectors {
		ok, err := page.Visible(sel)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func firstMatch(page Page, selectors []string) (string, error) {
	for _, sel := range selectors {
		n, err := page.Count(sel)
		if err != nil {
			return "", err
		}
		if n > 0 {
			return sel, nil
		}
	}
	return "", nil
}

func notFound(page Page, aff Affordance) error {
	return &harnesserrors.ElementNotFoundError{
		Affordance: aff.Name,
		Selectors:  append([]string(nil), aff.Selectors...),
		URL:        page.URL(),
	}
}

// Affordances is the full set of UI capabilities the harness relies on.
type Affordances struct {
	LoginEntry          Affordance
	EmailInput          Affordance
	PasswordInput       Affordance
	Submit              Affordance
	ErrorBanner         Affordance
	AuthenticatedMarker Affordance
	LogoutControl       Affordance
	TOTPInput           Affordance
	NotFoundMarker      Affordance
	AccessDeniedMarker  Affordance
}

// DefaultAffordances matches conventional markup for a server-rendered login flow.
func DefaultAffordances() Affordances {
	return Affordances{
		LoginEntry: Affordance{
			Name:      "login entry",
			Selectors: []string{"a[href$='/login']", "a:has-text('Login')", "button:has-text('Login')", "a:has-text('Sign in')"},
		},
		EmailInput: Affordance{
			Name:      "email input",
			Selectors: []string{"input[type='email']", "input[name='email']", "input#email", "input[name='username']"},
		},
		PasswordInput: Affordance{
			Name:      "password input",
			Selectors: []string{"input[type='password']"},
		},
		Submit: Affordance{
			Name:      "submit control",
			Selectors: []string{"button[type='submit']", "input[type='submit']"},
		},
		ErrorBanner: Affordance{
			Name:      "error banner",
			Selectors: []string{"[role='alert']", "#error-message", ".alert-error"},
		},
		AuthenticatedMarker: Affordance{
			Name:      "authenticated marker",
			Selectors: []string{"[data-authenticated]", "a[href='/logout']"},
		},
		LogoutControl: Affordance{
			Name:      "logout control",
			Selectors: []string{"a[href='/logout']", "button:has-text('Logout')", "button:has-text('Sign out')"},
			Reveal:    "[data-user-menu]",
		},
		TOTPInput: Affordance{
			Name:      "totp input",
			Selectors: []string{"input[name='totp']", "input[autocomplete='one-time-code']"},
		},
		NotFoundMarker: Affordance{
			Name:      "not-found marker",
			Selectors: []string{"[data-not-found]", "h1:has-text('404')"},
		},
		AccessDeniedMarker: Affordance{
			Name:      "access-denied marker",
			Selectors: []string{"[data-access-denied]", "h1:has-text('403')"},
		},
	}
}

// WithOverrides replaces the selectors of the affordances named in overrides.
// Keys are snake_case field names (login_entry, logout_control, ...); an
// override of "reveal" for the logout control is given as logout_reveal.
func (a Affordances) WithOverrides(overrides map[string][]string) Affordances {
	fields := map[string]*Affordance{
		"login_entry":          &a.LoginEntry,
		"email_input":          &a.EmailInput,
		"password_input":       &a.PasswordInput,
		"submit":               &a.Submit,
		"error_banner":         &a.ErrorBanner,
		"authenticated_marker": &a.AuthenticatedMarker,
		"logout_control":       &a.LogoutControl,
		"totp_input":           &a.TOTPInput,
		"not_found_marker":     &a.NotFoundMarker,
		"access_denied_marker": &a.AccessDeniedMarker,
	}
	for key, selectors := range overrides {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "logout_reveal" {
			if len(selectors) > 0 {
				a.LogoutControl.Reveal = selectors[0]
			} else {
				a.LogoutControl.Reveal = ""
			}
			continue
		}
		if f, ok := fields[key]; ok {
			f.Selectors = append([]string(nil), selectors...)
		}
	}
	return a
}
