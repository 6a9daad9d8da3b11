package config

import (
	"path/filepath"
	"strings"
	"time"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

type validator struct {
	config *Config
	errors []error
}

// Validate checks the configuration and returns the first problem found as a
// *errors.ConfigError.
func (c *Config) Validate() error {
	v := &validator{config: c}
	v.validateApp()
	v.validateTimeouts()
	v.validateEvidence()
	v.validateMode()
	if len(v.errors) > 0 {
		return v.errors[0]
	}
	return nil
}

func (v *validator) addError(field, message string) {
	v.errors = append(v.errors, &harnesserrors.ConfigError{Field: field, Message: message})
}

func (v *validator) validateApp() {
	app := v.config.App
	if app.BaseURL == "" {
		v.addError("app.base_url", "must be set")
	} else if !strings.HasPrefix(app.BaseURL, "http://") && !strings.HasPrefix(app.BaseURL, "https://") {
		v.addError("app.base_url", "must start with http:// or https://")
	}
	for _, r := range []struct {
		field string
		route string
	}{
		{"app.login_route", app.LoginRoute},
		{"app.landing_route", app.LandingRoute},
		{"app.api_login_path", app.APILoginPath},
		{"app.api_user_path", app.APIUserPath},
		{"app.health_path", app.HealthPath},
	} {
		if !strings.HasPrefix(r.route, "/") {
			v.addError(r.field, "must be an absolute path starting with /")
		}
	}
	if app.LoginRoute == app.LandingRoute {
		v.addError("app.landing_route", "must differ from app.login_route")
	}
}

func (v *validator) validateTimeouts() {
	t := v.config.Timeouts
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"timeouts.default", t.Default},
		{"timeouts.login", t.Login},
		{"timeouts.navigation", t.Navigation},
		{"timeouts.link_search", t.LinkSearch},
		{"timeouts.settle", t.Settle},
		{"timeouts.poll_interval", t.PollInterval},
		{"timeouts.test", t.Test},
	} {
		if d.value <= 0 {
			v.addError(d.field, "must be positive")
		}
	}
	if t.PollInterval > 0 && t.Settle > 0 && t.PollInterval >= t.Settle {
		v.addError("timeouts.poll_interval", "must be shorter than timeouts.settle")
	}
	if v.config.Auth.LoginAttempts < 1 {
		v.addError("auth.login_attempts", "must be at least 1")
	}
}

func (v *validator) validateEvidence() {
	ev := v.config.Evidence
	if ev.OutputDir == "" {
		v.addError("evidence.output_dir", "must be set")
	}
	for _, part := range strings.Split(filepath.ToSlash(ev.OutputDir), "/") {
		if part == ".." {
			v.addError("evidence.output_dir", "must not contain ..")
			break
		}
	}
	switch ev.Store {
	case StoreLocal:
	case StoreS3:
		if ev.S3.Bucket == "" {
			v.addError("evidence.s3.bucket", "must be set when evidence.store is s3")
		}
	default:
		v.addError("evidence.store", "must be local or s3")
	}
}

func (v *validator) validateMode() {
	switch v.config.Mode {
	case ModeVerify, ModeInvestigate:
	default:
		v.addError("mode", "must be verify or investigate")
	}
}
