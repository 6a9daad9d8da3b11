package navigation

import (
	"net/url"
	"strings"
)

// Signals are page observations that refine a URL-based classification.
type Signals struct {
	Status             int
	NotFoundMarker     bool
	AccessDeniedMarker bool
}

// Classify decides the outcome of a navigation to route from the resolved URL
// alone. It is ClassifyPage without page signals.
func Classify(baseURL, loginRoute, route, resolved string) Outcome {
	return ClassifyPage(baseURL, loginRoute, route, resolved, Signals{})
}

// ClassifyPage applies, in order: landing on the login route when another route
// was requested means RedirectedToLogin; a 404 or not-found marker means
// NotFound; a 403 or access-denied marker means Forbidden; a path equal to the
// route means Reached; anything else is Redirected.
func ClassifyPage(baseURL, loginRoute, route, resolved string, sig Signals) Outcome {
	u, err := url.Parse(resolved)
	if err != nil || resolved == "" || u.Scheme == "about" {
		return OutcomeError
	}
	target := normalisePath(routePath(route))
	got := normalisePath(u.Path)
	login := normalisePath(loginRoute)

	if !sameOrigin(baseURL, u) {
		return OutcomeRedirected
	}
	if got == login && target != login {
		return OutcomeRedirectedToLogin
	}
	if sig.Status == 404 || sig.NotFoundMarker {
		return OutcomeNotFound
	}
	if sig.Status == 403 || sig.AccessDeniedMarker {
		return OutcomeForbidden
	}
	if got == target {
		return OutcomeReached
	}
	return OutcomeRedirected
}

func routePath(route string) string {
	if u, err := url.Parse(route); err == nil {
		return u.Path
	}
	return route
}

func normalisePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func sameOrigin(baseURL string, u *url.URL) bool {
	b, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Scheme, u.Scheme) && strings.EqualFold(b.Host, u.Host)
}
