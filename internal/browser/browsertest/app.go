package browsertest

import (
	"net/http"
	"strings"
	"sync"

	"github.com/pquerna/otp/totp"
)

// Standard selectors the App renders; they are the first entries of the
// default affordances.
const (
	SelLoginEntry   = "a[href$='/login']"
	SelEmail        = "input[type='email']"
	SelPassword     = "input[type='password']"
	SelSubmit       = "button[type='submit']"
	SelErrorBanner  = "[role='alert']"
	SelAuthMarker   = "[data-authenticated]"
	SelLogout       = "a[href='/logout']"
	SelUserMenu     = "[data-user-menu]"
	SelTOTP         = "input[name='totp']"
	SelNotFound     = "[data-not-found]"
	SelAccessDenied = "[data-access-denied]"
)

// User is an account known to the App.
type User struct {
	Email      string
	Password   string
	Role       string
	TOTPSecret string
}

// App simulates a small role-gated web application behind a login form.
type App struct {
	Users []User

	// Behaviour switches for failure-path tests.
	NoLoginEntry      bool // root page has no link to the login form
	HideLoginForm     bool // login page renders without inputs
	SilentReject      bool // bad credentials re-render the form without a banner
	LandWithoutMarker bool // successful login lands on /welcome with no marker
	LogoutInMenu      bool // logout link only exists after opening the user menu
	NoLogoutControl   bool
	BrokenLogout      bool // clicking logout does nothing
	LinklessDashboard bool // dashboard renders no admin links
	AdminOnly         []string

	mu       sync.Mutex
	submits  int
	role     string
	pending  *User
	failed   bool
	menuOpen bool
}

// NewApp returns an App with the conventional admin routes.
func NewApp(users ...User) *App {
	return &App{
		Users:     users,
		AdminOnly: []string{"/admin", "/admin/events", "/admin/users", "/admin/vetting"},
	}
}

// NewPage returns a page served by this app at base.
func (a *App) NewPage(base string) *Page {
	return New(base, a.Route)
}

// Role returns the logged-in role, or "".
func (a *App) Role() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

// SignIn marks role as logged in without going through the form.
func (a *App) SignIn(role string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.role = role
}

// SignOut forgets the session, as an expired cookie would.
func (a *App) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.role = ""
}

// Submits returns how many times the login form was submitted.
func (a *App) Submits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

func (a *App) isAdminOnly(path string) bool {
	for _, r := range a.AdminOnly {
		if r == path {
			return true
		}
	}
	return false
}

// Route implements Router.
func (a *App) Route(path string) Screen {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case path == "/":
		if a.role != "" {
			return Screen{Redirect: "/dashboard"}
		}
		s := Screen{Elements: map[string]*Element{"h1": {Text: "Welcome"}}}
		if !a.NoLoginEntry {
			s.Elements[SelLoginEntry] = &Element{Text: "Login", Href: "/login"}
		}
		return s

	case path == "/login":
		if a.role != "" {
			return Screen{Redirect: "/dashboard"}
		}
		s := Screen{Elements: map[string]*Element{}}
		if !a.HideLoginForm {
			s.Elements[SelEmail] = &Element{}
			s.Elements[SelPassword] = &Element{}
			s.Elements[SelSubmit] = &Element{Text: "Sign in", Click: a.submitLogin}
		}
		if a.failed && !a.SilentReject {
			s.Elements[SelErrorBanner] = &Element{Text: "Invalid email or password"}
		}
		return s

	case path == "/login/totp":
		if a.pending == nil {
			return Screen{Redirect: "/login"}
		}
		return Screen{Elements: map[string]*Element{
			SelTOTP:   {},
			SelSubmit: {Text: "Verify", Click: a.submitTOTP},
		}}

	case path == "/logout":
		a.role = ""
		return Screen{Redirect: "/login"}

	case path == "/welcome":
		return Screen{Elements: map[string]*Element{"h1": {Text: "Please wait"}}}

	case path == "/dashboard" || strings.HasPrefix(path, "/admin"):
		if a.role == "" {
			return Screen{Redirect: "/login"}
		}
		if path != "/dashboard" && !a.isAdminOnly(path) {
			return a.notFound()
		}
		if a.isAdminOnly(path) && a.role != "admin" {
			s := a.chrome()
			s.Status = http.StatusForbidden
			s.Elements[SelAccessDenied] = &Element{Text: "Access denied"}
			return s
		}
		s := a.chrome()
		if path == "/dashboard" && a.role == "admin" && !a.LinklessDashboard {
			for _, r := range a.AdminOnly {
				s.Elements["a[href='"+r+"']"] = &Element{Href: r}
			}
		}
		return s
	}
	return a.notFound()
}

func (a *App) notFound() Screen {
	return Screen{Status: http.StatusNotFound, Elements: map[string]*Element{
		SelNotFound: {Text: "Page not found"},
	}}
}

// chrome is the layout shared by authenticated pages. Callers hold a.mu.
func (a *App) chrome() Screen {
	s := Screen{Elements: map[string]*Element{
		SelAuthMarker: {Text: a.role},
	}}
	if a.NoLogoutControl {
		return s
	}
	logout := &Element{Text: "Logout", Click: a.clickLogout}
	if a.LogoutInMenu {
		s.Elements[SelUserMenu] = &Element{Click: func(p *Page) error {
			a.mu.Lock()
			a.menuOpen = true
			a.mu.Unlock()
			return nil
		}}
		if !a.menuOpen {
			return s
		}
	}
	s.Elements[SelLogout] = logout
	return s
}

func (a *App) clickLogout(p *Page) error {
	a.mu.Lock()
	if a.BrokenLogout {
		a.mu.Unlock()
		return nil
	}
	a.role = ""
	a.menuOpen = false
	a.mu.Unlock()
	p.Show("/login")
	return nil
}

func (a *App) submitLogin(p *Page) error {
	email, password := p.Value(SelEmail), p.Value(SelPassword)

	a.mu.Lock()
	a.submits++
	var user *User
	for i := range a.Users {
		if a.Users[i].Email == email && a.Users[i].Password == password {
			user = &a.Users[i]
			break
		}
	}
	next := "/login"
	switch {
	case user == nil:
		a.failed = true
	case user.TOTPSecret != "":
		a.failed = false
		a.pending = user
		next = "/login/totp"
	case a.LandWithoutMarker:
		a.failed = false
		next = "/welcome"
	default:
		a.failed = false
		a.role = user.Role
		next = "/dashboard"
	}
	a.mu.Unlock()

	p.Show(next)
	return nil
}

func (a *App) submitTOTP(p *Page) error {
	code := p.Value(SelTOTP)

	a.mu.Lock()
	next := "/login"
	if a.pending != nil && totp.Validate(code, a.pending.TOTPSecret) {
		a.role = a.pending.Role
		next = "/dashboard"
	} else {
		a.failed = true
	}
	a.pending = nil
	a.mu.Unlock()

	p.Show(next)
	return nil
}
