package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/runner/tasks"
	"github.com/gotrs-io/e2eprobe/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "e2eprobe "+version.Full()+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}

func TestValidate(t *testing.T) {
	good := writeFile(t, "good.yaml", `
scenarios:
  - name: smoke
    role: admin
    steps:
      - login
      - navigate: {route: /dashboard}
`)
	bad := writeFile(t, "bad.yaml", `
scenarios:
  - name: smoke
    steps:
      - navigate: {route: dashboard}
`)
	unknown := writeFile(t, "unknown.yaml", "hello: world\n")

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good+" (scenarios)")

	out, err = execute(t, "validate", good, bad, unknown)
	assert.EqualError(t, err, "2 of 3 document(s) invalid")
	assert.Contains(t, out, "FAIL "+bad)
	assert.Contains(t, out, "FAIL "+unknown)
}

func TestRender(t *testing.T) {
	var doc bytes.Buffer
	require.NoError(t, check.RenderJSON(&doc, check.Findings{
		Title:       "nightly",
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Findings: []check.Finding{
			{Name: "admin reaches vetting", Check: "expect_reached", Passed: true, At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "member denied", Check: "expect_not_reached", Passed: false, Expected: "not reached", Actual: "reached", At: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)},
		},
	}))
	in := writeFile(t, "findings.json", doc.String())

	out, err := execute(t, "render", in, "--format", "md")
	require.NoError(t, err)
	assert.Contains(t, out, "# nightly")
	assert.Contains(t, out, "| FAIL | member denied |")

	target := filepath.Join(t.TempDir(), "out", "report.html")
	_, err = execute(t, "render", in, "-o", target, "--title", "Merged")
	require.NoError(t, err)
	html, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Merged</title>")

	_, err = execute(t, "render", writeFile(t, "x.json", `{"findings": "nope"}`))
	assert.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	out, err := execute(t, "synthesize", "-o", path, "--base-url", "http://app.test")
	require.NoError(t, err)
	assert.Contains(t, out, "generated value(s)")
	assert.Equal(t, "http://app.test", config.ReadEnvFile(path)["E2E_APP_BASE_URL"])

	out, err = execute(t, "synthesize", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]string{
		"-":            check.FormatMarkdown,
		"r.JSON":       check.FormatJSON,
		"r.htm":        check.FormatHTML,
		"out/r.xlsx":   check.FormatXLSX,
		"report.md":    check.FormatMarkdown,
		"no-extension": check.FormatMarkdown,
	} {
		assert.Equal(t, want, formatFromPath(path), path)
	}
}

func TestLoadTargetConfigAutodetect(t *testing.T) {
	orig := baseURLProbe
	t.Cleanup(func() { baseURLProbe = orig })
	var probed []string
	baseURLProbe = func(base string) bool {
		probed = append(probed, base)
		return base == "http://localhost:8080"
	}

	t.Run("switches to a reachable base URL", func(t *testing.T) {
		probed = nil
		path := writeFile(t, "e2eprobe.yaml", "app:\n  base_url: http://app.internal:9000\n  autodetect: true\n")
		cfg, _, err := loadTargetConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", cfg.App.BaseURL)
		assert.Equal(t, "http://localhost:8080", cfg.App.APIBaseURL)
		require.NotEmpty(t, probed)
		assert.Equal(t, "http://app.internal:9000", probed[0])
	})

	t.Run("disabled keeps the configured URL", func(t *testing.T) {
		probed = nil
		path := writeFile(t, "e2eprobe.yaml", "app:\n  base_url: http://app.internal:9000\n")
		cfg, _, err := loadTargetConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "http://app.internal:9000", cfg.App.BaseURL)
		assert.Empty(t, probed)
	})
}

func TestFakeAppUsers(t *testing.T) {
	cfg := &config.Config{Credentials: map[string]config.CredentialConfig{
		"member": {Email: "m@example.com", Password: "pw"},
		"admin":  {Email: "a@example.com", Password: "pw", TOTPSecret: "JBSWY3DPEHPK3PXP"},
		"guest":  {Email: "g@example.com"},
	}}
	users := fakeAppUsers(cfg)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Role)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", users[0].TOTPSecret)
	assert.Equal(t, "member", users[1].Role)
}

func TestStatusRouter(t *testing.T) {
	m := metrics.New()
	m.ObserveNavigation("reached", "link")
	task := tasks.NewScenarioSweepTask(nil, nil, "", 0, zerolog.Nop(), nil)
	router := statusRouter(m, task)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get("/sweeps/last").Code)

	w := get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `e2eprobe_navigation_results_total{outcome="reached",strategy="link"} 1`))
}
