package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gotrs-io/e2eprobe/internal/artifacts"
	"github.com/gotrs-io/e2eprobe/internal/browser"
	"github.com/gotrs-io/e2eprobe/internal/browser/browsertest"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/metrics"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

const base = "http://app.test"

func testPage() *browsertest.Page {
	page := browsertest.New(base, func(string) browsertest.Screen {
		return browsertest.Screen{Elements: map[string]*browsertest.Element{"h1": {Text: "Dashboard"}}}
	})
	page.Show("/dashboard")
	return page
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestCaptureRecordsEventsInOrder(t *testing.T) {
	m := metrics.New()
	c := NewCollector(artifacts.NewLocalStore(t.TempDir()), zerolog.Nop(), WithMetrics(m), WithClock(fixedClock()))
	page := testPage()

	h := c.StartCapture(TestContext{Name: "admin vetting"}, page)
	page.EmitConsole(browser.LevelWarning, "deprecated API")
	page.EmitConsole(browser.LevelError, "first error")
	page.EmitPageError("TypeError: x is undefined")
	page.EmitResponse("GET", base+"/api/events", 200)
	page.EmitResponse("GET", base+"/api/admin/events", 500)
	page.EmitRequestFailed("GET", base+"/static/app.css")
	page.EmitConsole(browser.LevelError, "second error")

	report, err := c.StopCapture(h)
	require.NoError(t, err)

	assert.Equal(t, "admin vetting", report.TestName)
	assert.Equal(t, []string{"first error", "second error"}, report.ConsoleErrors)
	assert.Equal(t, []string{"TypeError: x is undefined"}, report.PageErrors)
	assert.Equal(t, []NetworkFailure{
		{Method: "GET", URL: base + "/api/admin/events", Status: 500},
		{Method: "GET", URL: base + "/static/app.css"},
	}, report.NetworkFailures)
	assert.True(t, report.Timestamp.After(report.StartedAt))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvidenceEvents.WithLabelValues(KindConsoleError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvidenceEvents.WithLabelValues(KindNetworkFailure)))
}

func TestStopCaptureReleasesListenerAndFreezesReport(t *testing.T) {
	c := NewCollector(artifacts.NewLocalStore(t.TempDir()), zerolog.Nop())
	page := testPage()

	h := c.StartCapture(TestContext{Name: "freeze"}, page)
	require.Equal(t, 1, page.Listeners())

	report, err := c.StopCapture(h)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Listeners())

	report.ConsoleErrors = append(report.ConsoleErrors, "mutated by caller")
	page.EmitConsole(browser.LevelError, "after stop")
	assert.Empty(t, h.Snapshot().ConsoleErrors)
}

func TestStopCaptureTwiceFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCollector(artifacts.NewLocalStore(os.TempDir()), zerolog.Nop())
		name := rapid.String().Draw(t, "name")
		events := rapid.IntRange(0, 5).Draw(t, "events")
		page := testPage()

		h := c.StartCapture(TestContext{Name: name}, page)
		for i := 0; i < events; i++ {
			page.EmitPageError("boom")
		}
		if _, err := c.StopCapture(h); err != nil {
			t.Fatalf("first stop: %v", err)
		}
		repeats := rapid.IntRange(1, 3).Draw(t, "repeats")
		for i := 0; i < repeats; i++ {
			_, err := c.StopCapture(h)
			if !harnesserrors.IsCaptureAlreadyStopped(err) {
				t.Fatalf("stop #%d returned %v", i+2, err)
			}
		}
	})
}

func TestScreenshotLabelRoundTrip(t *testing.T) {
	root := t.TempDir()
	rapid.Check(t, func(t *rapid.T) {
		c := NewCollector(artifacts.NewLocalStore(root), zerolog.Nop())
		page := testPage()
		labels := rapid.SliceOfNDistinct(rapid.StringN(1, 20, -1), 1, 6, rapid.ID[string]).Draw(t, "labels")
		h := c.StartCapture(TestContext{Name: "round trip", RunID: rapid.StringMatching(`[a-z0-9]{6}`).Draw(t, "run")}, page)

		for _, label := range labels {
			if _, err := c.Screenshot(context.Background(), h, label); err != nil {
				t.Fatalf("screenshot %q: %v", label, err)
			}
		}
		report, err := c.StopCapture(h)
		if err != nil {
			t.Fatal(err)
		}
		for _, label := range labels {
			if n := len(report.ScreenshotsLabelled(label)); n != 1 {
				t.Fatalf("label %q appears %d times", label, n)
			}
		}
	})
}

func TestScreenshotStoresUnderTestDirectory(t *testing.T) {
	root := t.TempDir()
	c := NewCollector(artifacts.NewLocalStore(root), zerolog.Nop())
	page := testPage()
	h := c.StartCapture(TestContext{Name: "Scenario A: Admin Vetting", RunID: "nightly"}, page)

	first, err := c.Screenshot(context.Background(), h, "After login")
	require.NoError(t, err)
	second, err := c.Screenshot(context.Background(), h, "Vetting page")
	require.NoError(t, err)

	assert.Equal(t, "nightly/scenario-a-admin-vetting/01-after-login.png", first.Ref)
	assert.Equal(t, "nightly/scenario-a-admin-vetting/02-vetting-page.png", second.Ref)
	assert.Equal(t, base+"/dashboard", first.URL)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(first.Ref)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "PNG")
}

func TestScreenshotErrors(t *testing.T) {
	c := NewCollector(artifacts.NewLocalStore(t.TempDir()), zerolog.Nop())

	t.Run("duplicate label", func(t *testing.T) {
		h := c.StartCapture(TestContext{Name: "dup"}, testPage())
		_, err := c.Screenshot(context.Background(), h, "landing")
		require.NoError(t, err)
		_, err = c.Screenshot(context.Background(), h, "landing")
		assert.True(t, harnesserrors.IsDuplicateLabel(err))
		assert.Len(t, h.Snapshot().Screenshots, 1)
	})

	t.Run("empty label", func(t *testing.T) {
		h := c.StartCapture(TestContext{Name: "empty"}, testPage())
		_, err := c.Screenshot(context.Background(), h, "")
		assert.Error(t, err)
	})

	t.Run("failed capture frees the label", func(t *testing.T) {
		page := testPage()
		h := c.StartCapture(TestContext{Name: "retry"}, page)
		page.FailScreenshots(errors.New("target closed"))
		_, err := c.Screenshot(context.Background(), h, "landing")
		require.Error(t, err)

		page.FailScreenshots(nil)
		_, err = c.Screenshot(context.Background(), h, "landing")
		assert.NoError(t, err)
	})

	t.Run("after stop", func(t *testing.T) {
		h := c.StartCapture(TestContext{Name: "stopped"}, testPage())
		_, err := c.StopCapture(h)
		require.NoError(t, err)
		_, err = c.Screenshot(context.Background(), h, "late")
		assert.True(t, harnesserrors.IsCaptureAlreadyStopped(err))
		assert.True(t, harnesserrors.IsCaptureAlreadyStopped(c.Record(h, navigation.Result{})))
	})

	t.Run("cancelled context", func(t *testing.T) {
		h := c.StartCapture(TestContext{Name: "cancelled"}, testPage())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Screenshot(ctx, h, "landing")
		assert.True(t, harnesserrors.IsTimeout(err))
	})
}

func TestRecordAndPersist(t *testing.T) {
	root := t.TempDir()
	c := NewCollector(artifacts.NewLocalStore(root), zerolog.Nop())
	h := c.StartCapture(TestContext{Name: "member admin"}, testPage())

	require.NoError(t, c.Record(h, navigation.Result{RequestedRoute: "/admin", Outcome: navigation.OutcomeForbidden, Status: 403}))
	report, err := c.StopCapture(h)
	require.NoError(t, err)
	require.Len(t, report.Navigations, 1)

	ref, err := c.Persist(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "member-admin/report.json", ref)

	data, err := os.ReadFile(filepath.Join(root, "member-admin", "report.json"))
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "member admin", decoded.TestName)
	assert.Equal(t, navigation.OutcomeForbidden, decoded.Navigations[0].Outcome)
}

func TestCaptureDirectoriesAreUnique(t *testing.T) {
	long := "TestAdminWalksEveryPageOfTheVettingQueueAndTheEventsAdministration"

	tests := []struct {
		name  string
		first string
		other string
		dir   string
	}{
		{"names that slug alike", "TestX/admin login", "TestX/admin-login", "run1/testx-admin-login"},
		{"names equal after truncation", long + "/first", long + "/second", "run1/" + Slug(long+"/first")},
		{"same name twice", "TestX/landing", "TestX/landing", "run1/testx-landing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			c := NewCollector(artifacts.NewLocalStore(root), zerolog.Nop())

			var refs []string
			for _, name := range []string{tt.first, tt.other} {
				h := c.StartCapture(TestContext{Name: name, RunID: "run1"}, testPage())
				shot, err := c.Screenshot(context.Background(), h, "landing")
				require.NoError(t, err)
				report, err := c.StopCapture(h)
				require.NoError(t, err)
				ref, err := c.Persist(context.Background(), report)
				require.NoError(t, err)
				refs = append(refs, shot.Ref, ref)
			}

			assert.Equal(t, []string{
				tt.dir + "/01-landing.png",
				tt.dir + "/report.json",
				tt.dir + "-2/01-landing.png",
				tt.dir + "-2/report.json",
			}, refs)

			for i, name := range []string{tt.first, tt.other} {
				data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(refs[2*i+1])))
				require.NoError(t, err)
				var decoded Report
				require.NoError(t, json.Unmarshal(data, &decoded))
				assert.Equal(t, name, decoded.TestName)
			}
		})
	}
}

func TestReportSummary(t *testing.T) {
	r := Report{
		TestName:      "t",
		ConsoleErrors: []string{"a"},
		Screenshots:   []Screenshot{{Label: "x", Ref: "t/01-x.png"}},
	}
	assert.Contains(t, r.Summary(), "1 console error(s)")
	assert.Contains(t, r.Summary(), "t/01-x.png")

	_, ok := Report{}.LastScreenshot()
	assert.False(t, ok)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Scenario A: Admin Vetting": "scenario-a-admin-vetting",
		"Café Déjà vu":              "cafe-deja-vu",
		"  --weird__input--  ":      "weird-input",
		"":                          "untitled",
		"../../etc/passwd":          "etc-passwd",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
	assert.Equal(t, "untitled", Slug("日本語"))
}
