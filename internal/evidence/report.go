// Package evidence records what happened in the browser during one test:
// screenshots, console and page errors, failed network traffic and
// navigation results.
package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Screenshot references one stored image.
type Screenshot struct {
	Label string    `json:"label"`
	Ref   string    `json:"ref"`
	URL   string    `json:"url"`
	At    time.Time `json:"at"`
}

// NetworkFailure is a response with status >= 400, or a request that never
// got a response (Status 0).
type NetworkFailure struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
}

func (f NetworkFailure) String() string {
	if f.Status == 0 {
		return fmt.Sprintf("%s %s failed", f.Method, f.URL)
	}
	return fmt.Sprintf("%s %s -> %d", f.Method, f.URL, f.Status)
}

// Report is the evidence gathered for one test. Reports handed out by the
// collector are copies and are never modified afterwards.
type Report struct {
	TestName        string              `json:"test_name"`
	RunID           string              `json:"run_id,omitempty"`
	Dir             string              `json:"dir,omitempty"`
	Screenshots     []Screenshot        `json:"screenshots"`
	ConsoleErrors   []string            `json:"console_errors"`
	PageErrors      []string            `json:"page_errors"`
	NetworkFailures []NetworkFailure    `json:"network_failures"`
	Navigations     []navigation.Result `json:"navigations"`
	StartedAt       time.Time           `json:"started_at"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Clone returns a deep copy of r.
func (r Report) Clone() Report {
	out := r
	out.Screenshots = append([]Screenshot{}, r.Screenshots...)
	out.ConsoleErrors = append([]string{}, r.ConsoleErrors...)
	out.PageErrors = append([]string{}, r.PageErrors...)
	out.NetworkFailures = append([]NetworkFailure{}, r.NetworkFailures...)
	out.Navigations = append([]navigation.Result{}, r.Navigations...)
	return out
}

// LastScreenshot returns the most recent screenshot, if any.
func (r Report) LastScreenshot() (Screenshot, bool) {
	if len(r.Screenshots) == 0 {
		return Screenshot{}, false
	}
	return r.Screenshots[len(r.Screenshots)-1], true
}

// ScreenshotsLabelled returns every screenshot carrying label.
func (r Report) ScreenshotsLabelled(label string) []Screenshot {
	var out []Screenshot
	for _, s := range r.Screenshots {
		if s.Label == label {
			out = append(out, s)
		}
	}
	return out
}

// Duration is the time between capture start and finalisation.
func (r Report) Duration() time.Duration {
	if r.Timestamp.IsZero() {
		return 0
	}
	return r.Timestamp.Sub(r.StartedAt)
}

// Summary is a short human-readable digest used in failure messages.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d screenshot(s), %d console error(s), %d page error(s), %d network failure(s)",
		r.TestName, len(r.Screenshots), len(r.ConsoleErrors), len(r.PageErrors), len(r.NetworkFailures))
	if s, ok := r.LastScreenshot(); ok {
		fmt.Fprintf(&b, "; last screenshot %s", s.Ref)
	}
	return b.String()
}
