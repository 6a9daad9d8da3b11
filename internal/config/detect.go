package config

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ProbeFunc reports whether an application answers at base.
type ProbeFunc func(base string) bool

// ResolveBaseURL applies autodetection when enabled: if the configured base URL does
// not answer, common local alternatives are tried in order and the first reachable
// one is used. The configured URL is kept when nothing answers.
func (c *Config) ResolveBaseURL(logger zerolog.Logger, probe ProbeFunc) {
	if !c.App.Autodetect {
		return
	}
	if probe == nil {
		probe = Reachable
	}
	initial := c.App.BaseURL
	resolved := DetectBaseURL(logger, initial, probe)
	if resolved == initial {
		return
	}
	c.App.BaseURL = resolved
	if c.App.APIBaseURL == initial {
		c.App.APIBaseURL = resolved
	}
}

// DetectBaseURL returns initial when it is reachable, else the first reachable
// candidate, else initial.
func DetectBaseURL(logger zerolog.Logger, initial string, probe ProbeFunc) string {
	start := time.Now()
	if probe(initial) {
		return initial
	}

	tried := []string{initial}
	for _, c := range candidateBaseURLs(initial) {
		tried = append(tried, c)
		if probe(c) {
			logger.Info().
				Str("from", initial).
				Str("to", c).
				Dur("elapsed", time.Since(start)).
				Strs("tried", tried).
				Msg("autodetect switched base URL")
			return c
		}
	}
	logger.Warn().
		Str("base_url", initial).
		Strs("tried", tried).
		Dur("elapsed", time.Since(start)).
		Msg("autodetect kept unreachable base URL")
	return initial
}

func candidateBaseURLs(initial string) []string {
	var candidates []string
	if u, err := url.Parse(initial); err == nil {
		host := u.Hostname()
		port := u.Port()
		if port == "" {
			port = "8080"
		}
		ports := []string{port, "8080", "18080", "8081"}
		if host != "localhost" && host != "127.0.0.1" {
			for _, p := range ports {
				candidates = append(candidates, "http://localhost:"+p)
			}
			for _, p := range ports {
				candidates = append(candidates, "http://127.0.0.1:"+p)
			}
		}
		if strings.Contains(host, "backend") {
			for _, p := range []string{"8080", "18080", "8081"} {
				candidates = append(candidates, "http://backend:"+p)
			}
		}
	}
	candidates = append(candidates, "http://localhost:8080")

	seen := map[string]struct{}{initial: {}}
	uniq := candidates[:0]
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		uniq = append(uniq, c)
	}
	return uniq
}

// Reachable does a quick TCP dial followed by a GET of /healthz or the login page.
func Reachable(base string) bool {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	d := net.Dialer{Timeout: 250 * time.Millisecond}
	conn, err := d.Dial("tcp", host)
	if err != nil {
		return false
	}
	_ = conn.Close()

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(800 * time.Millisecond)
	for _, path := range []string{"/healthz", "/login"} {
		if _, err := client.R().Get(path); err == nil {
			return true
		}
	}
	return false
}
