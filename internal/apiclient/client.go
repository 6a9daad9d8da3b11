// Package apiclient talks to the REST API of the application under test.
//
// Responses are treated as comparison data only: callers read the few
// documented fields they need through gjson and ignore everything else, so the
// client tolerates arbitrary response shapes.
package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// Config represents client configuration
type Config struct {
	BaseURL    string
	LoginPath  string
	UserPath   string
	HealthPath string
	UserAgent  string
	Timeout    time.Duration
	RetryCount int
	Debug      bool
}

// Client is a thin resty wrapper carrying the session obtained at login.
type Client struct {
	http    *resty.Client
	baseURL string
	cfg     Config

	mu      sync.RWMutex
	token   string
	cookies []*http.Cookie
}

// NewClient creates a new API client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "e2eprobe/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/api/auth/login"
	}
	if cfg.UserPath == "" {
		cfg.UserPath = "/api/auth/user"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetLogger(restyLogger{log: log.With().Str("component", "api").Logger()}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	if cfg.Debug {
		httpClient.SetDebug(true)
	}

	c := &Client{http: httpClient, baseURL: cfg.BaseURL, cfg: cfg}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.token != "" {
			req.SetAuthToken(c.token)
		}
		if len(c.cookies) > 0 {
			req.SetCookies(c.cookies)
		}
		return nil
	})

	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetCookies sets the session cookies sent with every request.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = append([]*http.Cookie(nil), cookies...)
}

// LoginResult is what a successful API login yields.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Role      string
	Cookies   []*http.Cookie
}

// Login posts credentials to the login endpoint and keeps the returned token
// and cookies for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"email": email, "password": password}).
		Post(c.cfg.LoginPath)
	if err != nil {
		return LoginResult{}, &harnesserrors.NetworkError{Operation: "POST", URL: c.baseURL + c.cfg.LoginPath, Err: err}
	}
	if !resp.IsSuccess() {
		return LoginResult{}, apiError(resp, http.MethodPost, c.cfg.LoginPath)
	}

	body := resp.Body()
	result := LoginResult{
		Token:   firstString(body, "token", "accessToken", "access_token", "data.token"),
		Role:    firstString(body, "user.role", "role", "data.role", "data.user.role"),
		Cookies: resp.Cookies(),
	}
	if result.Token != "" {
		if exp, err := TokenExpiry(result.Token); err == nil {
			result.ExpiresAt = exp
		}
	}

	c.mu.Lock()
	c.token = result.Token
	c.cookies = append([]*http.Cookie(nil), result.Cookies...)
	c.mu.Unlock()
	return result, nil
}

// Get fetches path and returns the body as a Document.
func (c *Client) Get(ctx context.Context, path string) (Document, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return Document{}, &harnesserrors.NetworkError{Operation: "GET", URL: c.baseURL + path, Err: err}
	}
	if !resp.IsSuccess() {
		return Document{}, apiError(resp, http.MethodGet, path)
	}
	if !gjson.ValidBytes(resp.Body()) {
		return Document{}, fmt.Errorf("GET %s: response is not JSON", path)
	}
	return Document{Path: path, raw: resp.Body()}, nil
}

// User is the documented part of the current-user endpoint.
type User struct {
	Email string
	Role  string
}

// CurrentUser reads the authenticated user's email and role.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	doc, err := c.Get(ctx, c.cfg.UserPath)
	if err != nil {
		return User{}, err
	}
	return User{
		Email: doc.String("email", "user.email", "data.email"),
		Role:  doc.String("role", "user.role", "data.role"),
	}, nil
}

// Ping checks if the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.HealthPath)
	if err != nil {
		return &harnesserrors.NetworkError{Operation: "PING", URL: c.baseURL + c.cfg.HealthPath, Err: err}
	}
	if !resp.IsSuccess() {
		return apiError(resp, http.MethodGet, c.cfg.HealthPath)
	}
	return nil
}

func apiError(resp *resty.Response, method, path string) error {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return &harnesserrors.APIError{
		StatusCode: resp.StatusCode(),
		Method:     method,
		Path:       path,
		Body:       body,
	}
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() && r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature;
// the harness only needs to know when to log in again.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
