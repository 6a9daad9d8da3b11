// Package fakeapp is a small role-gated web application used as the system
// under test for the harness's own end-to-end tests and demos. It renders the
// conventional login markup the default affordances expect and exposes a
// JSON API beside it.
package fakeapp

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
)

const (
	// SessionCookie carries the browser session ID.
	SessionCookie = "fakeapp_session"

	ctxSession = "fakeapp.session"
)

// User seeds an account.
type User struct {
	Email      string
	Password   string
	Role       string
	TOTPSecret string
}

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Users            []User
	Secret           string
	SessionTTL       time.Duration
	TokenTTL         time.Duration
	MaxLoginAttempts int
	HashCost         int
}

// Server is the application. It is safe for concurrent use.
type Server struct {
	engine   *gin.Engine
	log      zerolog.Logger
	accounts *Accounts
	sessions *sessionStore
	tokens   *tokenIssuer
	limiter  *loginLimiter
	events   *eventBook
	pages    *renderer
}

// New builds the application and registers its routes.
func New(opts Options, log zerolog.Logger) (*Server, error) {
	if opts.Secret == "" {
		opts.Secret = "fakeapp-secret"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 15 * time.Minute
	}
	if opts.MaxLoginAttempts == 0 {
		opts.MaxLoginAttempts = 5
	}

	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}
	accounts := NewAccounts(opts.HashCost)
	for _, u := range opts.Users {
		if err := accounts.Add(u.Email, u.Password, u.Role, u.TOTPSecret); err != nil {
			return nil, err
		}
	}

	s := &Server{
		engine:   gin.New(),
		log:      log.With().Str("component", "fakeapp").Logger(),
		accounts: accounts,
		sessions: newSessionStore(opts.SessionTTL),
		tokens:   newTokenIssuer(opts.Secret, opts.TokenTTL),
		limiter:  newLoginLimiter(opts.MaxLoginAttempts, 5*time.Minute, 2*time.Second, time.Minute),
		events:   &eventBook{events: defaultEvents()},
		pages:    pages,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the application.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Accounts exposes the user directory.
func (s *Server) Accounts() *Accounts {
	return s.accounts
}

// ExpireSessions ends every browser session.
func (s *Server) ExpireSessions() {
	s.sessions.expireAll()
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), s.requestLogger(), s.loadSession())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Browsers ask for a favicon on every page; answer so it is not a 404.
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	r.GET("/", s.handleIndex)
	r.GET("/login", s.handleLoginForm)
	r.POST("/login", s.handleLogin)
	r.GET("/login/totp", s.handleTOTPForm)
	r.POST("/login/totp", s.handleTOTP)
	r.GET("/logout", s.handleLogout)

	app := r.Group("/", s.requireSession())
	app.GET("/dashboard", s.handleDashboard)

	admin := r.Group("/admin", s.requireSession(), s.requireAdmin())
	admin.GET("", s.handleAdminHome)
	admin.GET("/events", s.handleAdminEvents)
	admin.GET("/users", s.handleAdminUsers)
	admin.GET("/vetting", s.handleVetting)

	api := r.Group("/api")
	api.POST("/auth/login", s.handleAPILogin)
	authed := api.Group("", s.requireAPIAuth())
	authed.GET("/auth/user", s.handleAPIUser)
	authed.GET("/events", s.handleAPIEvents)
	authed.GET("/dashboard/summary", s.handleAPISummary)
	authed.GET("/admin/events", s.requireAPIAdmin(), s.handleAPIAdminEvents)

	r.NoRoute(s.handleNotFound)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// loadSession attaches the browser session, if any, to the request context.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
			if sess, ok := s.sessions.get(id); ok {
				c.Set(ctxSession, sess)
			}
		}
		c.Next()
	}
}

// sessionFrom returns the fully authenticated session of the request.
func sessionFrom(c *gin.Context) *session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*session)
	if sess == nil || sess.Pending {
		return nil
	}
	return sess
}

func pendingFrom(c *gin.Context) *session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*session)
	if sess == nil || !sess.Pending {
		return nil
	}
	return sess
}

func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionFrom(c) == nil {
			c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionFrom(c).Role != RoleAdmin {
			s.pages.HTML(c, http.StatusForbidden, "denied", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setSessionCookie(c *gin.Context, sess *session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.ID, int(time.Until(sess.Expires).Seconds()), "/", "", false, true)
}

func (s *Server) handleIndex(c *gin.Context) {
	if sessionFrom(c) != nil {
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}
	s.pages.HTML(c, http.StatusOK, "index", gin.H{"published": len(s.events.withStatus(EventPublished))})
}

func (s *Server) handleLoginForm(c *gin.Context) {
	if sessionFrom(c) != nil {
		c.Redirect(http.StatusSeeOther, safeNext(c.Query("next")))
		return
	}
	s.pages.HTML(c, http.StatusOK, "login", gin.H{"next": c.Query("next")})
}

func (s *Server) handleLogin(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	next := c.PostForm("next")
	ip := c.ClientIP()

	if blocked, wait := s.limiter.blocked(ip, email); blocked {
		s.pages.HTML(c, http.StatusOK, "login", gin.H{
			"error": "Too many failed attempts. Try again in " + wait.Round(time.Second).String() + ".",
			"email": email,
			"next":  next,
		})
		return
	}

	acct, ok := s.accounts.Authenticate(email, c.PostForm("password"))
	if !ok {
		s.limiter.failure(ip, email)
		s.log.Info().Str("email", email).Msg("login rejected")
		s.pages.HTML(c, http.StatusOK, "login", gin.H{"error": "Invalid email or password", "email": email, "next": next})
		return
	}
	s.limiter.success(ip, email)

	if acct.TOTPSecret != "" {
		sess := s.sessions.create(acct, true)
		s.setSessionCookie(c, sess)
		c.Redirect(http.StatusSeeOther, "/login/totp?next="+url.QueryEscape(next))
		return
	}
	sess := s.sessions.create(acct, false)
	s.setSessionCookie(c, sess)
	s.log.Info().Str("email", acct.Email).Str("role", acct.Role).Msg("login succeeded")
	c.Redirect(http.StatusSeeOther, safeNext(next))
}

func (s *Server) handleTOTPForm(c *gin.Context) {
	if pendingFrom(c) == nil {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	s.pages.HTML(c, http.StatusOK, "totp", gin.H{"next": c.Query("next")})
}

func (s *Server) handleTOTP(c *gin.Context) {
	pending := pendingFrom(c)
	if pending == nil {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	acct, ok := s.accounts.Lookup(pending.Email)
	if !ok || !totp.Validate(strings.TrimSpace(c.PostForm("totp")), acct.TOTPSecret) {
		s.sessions.delete(pending.ID)
		s.pages.HTML(c, http.StatusOK, "login", gin.H{"error": "Invalid verification code"})
		return
	}
	s.sessions.promote(pending.ID)
	s.log.Info().Str("email", acct.Email).Str("role", acct.Role).Msg("login succeeded")
	c.Redirect(http.StatusSeeOther, safeNext(c.PostForm("next")))
}

func (s *Server) handleLogout(c *gin.Context) {
	if id, err := c.Cookie(SessionCookie); err == nil {
		s.sessions.delete(id)
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) handleDashboard(c *gin.Context) {
	sess := sessionFrom(c)
	s.pages.HTML(c, http.StatusOK, "dashboard", gin.H{
		"admin":   sess.Role == RoleAdmin,
		"visible": len(s.events.visibleTo(sess.Role)),
		"pending": len(s.events.withStatus(EventPending)),
	})
}

func (s *Server) handleAdminHome(c *gin.Context) {
	s.pages.HTML(c, http.StatusOK, "admin", gin.H{"heading": "Administration"})
}

func (s *Server) handleAdminEvents(c *gin.Context) {
	s.pages.HTML(c, http.StatusOK, "admin", gin.H{"heading": "All events", "events": s.events.visibleTo(RoleAdmin)})
}

func (s *Server) handleAdminUsers(c *gin.Context) {
	s.pages.HTML(c, http.StatusOK, "admin", gin.H{"heading": "Users", "accounts": s.accounts.list()})
}

func (s *Server) handleVetting(c *gin.Context) {
	s.pages.HTML(c, http.StatusOK, "admin", gin.H{"heading": "Vetting queue", "events": s.events.withStatus(EventPending)})
}

func (s *Server) handleNotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.pages.HTML(c, http.StatusNotFound, "notfound", gin.H{"path": c.Request.URL.Path})
}

// safeNext keeps post-login redirects on this origin.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/login") {
		return "/dashboard"
	}
	return next
}
