package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "e2eprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "mode: verify\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.App.BaseURL)
	assert.Equal(t, cfg.App.BaseURL, cfg.App.APIBaseURL)
	assert.Equal(t, "/login", cfg.App.LoginRoute)
	assert.Equal(t, "/dashboard", cfg.App.LandingRoute)
	assert.Equal(t, "/api/auth/user", cfg.App.APIUserPath)
	assert.Equal(t, "/healthz", cfg.App.HealthPath)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.Viewport.Width)
	assert.Equal(t, 720, cfg.Browser.Viewport.Height)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeouts.PollInterval)
	assert.Equal(t, "local", cfg.Evidence.Store)
	assert.False(t, cfg.IsInvestigation())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app:
  base_url: http://app.test:9000/
  landing_route: /welcome
timeouts:
  login: 3s
  settle: 500ms
mode: Investigate
credentials:
  admin:
    email: admin@example.test
    password: s3cret
  member:
    email: member@example.test
    password: pw
affordances:
  logout_control:
    - "#sign-out"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://app.test:9000", cfg.App.BaseURL)
	assert.Equal(t, "/welcome", cfg.App.LandingRoute)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.Settle)
	assert.True(t, cfg.IsInvestigation())
	require.Contains(t, cfg.Credentials, "admin")
	assert.Equal(t, "s3cret", cfg.Credentials["admin"].Password)
	assert.Equal(t, []string{"#sign-out"}, cfg.Affordances["logout_control"])
	assert.NotContains(t, cfg.Credentials, "teacher", "empty roles are dropped")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("E2E_APP_LOGIN_ROUTE", "/signin")
	t.Setenv("E2E_CREDENTIALS_VETTED_EMAIL", "vetted@example.test")
	t.Setenv("E2E_CREDENTIALS_VETTED_PASSWORD", "pw")
	t.Setenv("DEMO_ADMIN_EMAIL", "root@example.test")
	t.Setenv("DEMO_ADMIN_PASSWORD", "rootpw")

	cfg, err := Load(writeConfig(t, "mode: verify\n"))
	require.NoError(t, err)

	assert.Equal(t, "/signin", cfg.App.LoginRoute)
	assert.Equal(t, "vetted@example.test", cfg.Credentials["vetted"].Email)
	assert.Equal(t, "root@example.test", cfg.Credentials["admin"].Email)
	assert.Equal(t, "rootpw", cfg.Credentials["admin"].Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad scheme", "app:\n  base_url: ftp://x\n", "app.base_url"},
		{"relative login route", "app:\n  login_route: login\n", "app.login_route"},
		{"relative user path", "app:\n  api_user_path: api/me\n", "app.api_user_path"},
		{"same routes", "app:\n  landing_route: /login\n", "app.landing_route"},
		{"zero timeout", "timeouts:\n  login: 0s\n", "timeouts.login"},
		{"poll slower than settle", "timeouts:\n  poll_interval: 5s\n  settle: 1s\n", "timeouts.poll_interval"},
		{"escaping output dir", "evidence:\n  output_dir: ../elsewhere\n", "evidence.output_dir"},
		{"s3 without bucket", "evidence:\n  store: s3\n", "evidence.s3.bucket"},
		{"unknown store", "evidence:\n  store: ftp\n", "evidence.store"},
		{"unknown mode", "mode: yolo\n", "mode"},
		{"no attempts", "auth:\n  login_attempts: 0\n", "auth.login_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			var cfgErr *harnesserrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidateReportsFirstProblemInOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, "mode: verify\n"))
	require.NoError(t, err)

	cfg.App.LoginRoute = "login"
	cfg.App.LandingRoute = "dashboard"
	cfg.Timeouts.Login = 0
	cfg.Timeouts.Test = 0

	fieldOf := func() string {
		var cfgErr *harnesserrors.ConfigError
		require.ErrorAs(t, cfg.Validate(), &cfgErr)
		return cfgErr.Field
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "app.login_route", fieldOf())
	}

	cfg.App.LoginRoute = "/login"
	cfg.App.LandingRoute = "/dashboard"
	for i := 0; i < 20; i++ {
		assert.Equal(t, "timeouts.login", fieldOf())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "mode: verify\n")
	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	loader.Watch(func(c *Config) { changed <- c }, nil)

	require.NoError(t, os.WriteFile(path, []byte("mode: investigate\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.True(t, cfg.IsInvestigation())
		assert.True(t, loader.Get().IsInvestigation())
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestAppURL(t *testing.T) {
	app := AppConfig{BaseURL: "http://app.test"}
	assert.Equal(t, "http://app.test/admin", app.URL("/admin"))
	assert.Equal(t, "http://app.test/admin", app.URL("admin"))
	assert.Equal(t, "https://other/x", app.URL("https://other/x"))
}

func TestDetectBaseURL(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("keeps reachable initial", func(t *testing.T) {
		got := DetectBaseURL(logger, "http://backend:8080", func(string) bool { return true })
		assert.Equal(t, "http://backend:8080", got)
	})

	t.Run("switches to first reachable candidate", func(t *testing.T) {
		var tried []string
		got := DetectBaseURL(logger, "http://backend:18080", func(base string) bool {
			tried = append(tried, base)
			return base == "http://127.0.0.1:18080"
		})
		assert.Equal(t, "http://127.0.0.1:18080", got)
		assert.Equal(t, "http://backend:18080", tried[0])
		assert.Equal(t, "http://localhost:18080", tried[1])
	})

	t.Run("keeps initial when nothing answers", func(t *testing.T) {
		got := DetectBaseURL(logger, "http://nowhere:1", func(string) bool { return false })
		assert.Equal(t, "http://nowhere:1", got)
	})

	t.Run("resolve updates api base", func(t *testing.T) {
		cfg := &Config{App: AppConfig{BaseURL: "http://backend:8080", APIBaseURL: "http://backend:8080", Autodetect: true}}
		cfg.ResolveBaseURL(logger, func(base string) bool { return base == "http://localhost:8080" })
		assert.Equal(t, "http://localhost:8080", cfg.App.BaseURL)
		assert.Equal(t, "http://localhost:8080", cfg.App.APIBaseURL)
	})
}

func TestParseDotEnvLine(t *testing.T) {
	tests := []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"BASE_URL=http://x", "BASE_URL", "http://x", true},
		{"export HEADLESS=false", "HEADLESS", "false", true},
		{`DEMO_ADMIN_PASSWORD="quoted pw"`, "DEMO_ADMIN_PASSWORD", "quoted pw", true},
		{"# comment", "", "", false},
		{"EMPTY=", "", "", false},
		{"=value", "", "", false},
	}
	for _, tt := range tests {
		key, val, ok := parseDotEnvLine(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.key, key, tt.line)
		assert.Equal(t, tt.val, val, tt.line)
	}
}
