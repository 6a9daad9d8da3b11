package check

import (
	"fmt"
	"strings"

	"github.com/gotrs-io/e2eprobe/internal/apiclient"
	"github.com/gotrs-io/e2eprobe/internal/auth"
	"github.com/gotrs-io/e2eprobe/internal/evidence"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

// Check names, also used as metric labels.
const (
	CheckReached           = "expect_reached"
	CheckOutcome           = "expect_outcome"
	CheckNotReached        = "expect_not_reached"
	CheckNoConsoleErrors   = "expect_no_console_errors"
	CheckNoPageErrors      = "expect_no_page_errors"
	CheckNoNetworkFailures = "expect_no_network_failures"
	CheckAuthenticated     = "expect_authenticated"
	CheckField             = "expect_field"
	CheckMinCount          = "expect_min_count"
)

// Every check returns nil when it passes and an *AssertionFailure otherwise.

func describe(res navigation.Result) string {
	s := fmt.Sprintf("%s at %s", res.Outcome, res.ResolvedURL)
	if res.Status != 0 {
		s += fmt.Sprintf(" (HTTP %d)", res.Status)
	}
	return s
}

func navContext(res navigation.Result) string {
	ctx := fmt.Sprintf("route %s via %s", res.RequestedRoute, res.Strategy)
	if res.Message != "" {
		ctx += ": " + res.Message
	}
	return ctx
}

// ExpectReached passes when the navigation reached its route.
func ExpectReached(res navigation.Result) error {
	if res.Reached() {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckReached,
		Expected: fmt.Sprintf("%s reached", res.RequestedRoute),
		Actual:   describe(res),
		Context:  navContext(res),
	}
}

// ExpectOutcome passes when the navigation ended with want.
func ExpectOutcome(res navigation.Result, want navigation.Outcome) error {
	if res.Outcome == want {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckOutcome,
		Expected: string(want),
		Actual:   describe(res),
		Context:  navContext(res),
	}
}

// ExpectNotReached passes when the navigation was turned away. An Error
// outcome does not count: a broken probe proves nothing about access.
func ExpectNotReached(res navigation.Result) error {
	if !res.Reached() && res.Outcome != navigation.OutcomeError {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckNotReached,
		Expected: fmt.Sprintf("%s not reachable", res.RequestedRoute),
		Actual:   describe(res),
		Context:  navContext(res),
	}
}

// ExpectNoConsoleErrors passes when every console error matches ignore.
func ExpectNoConsoleErrors(r evidence.Report, ignore IgnoreList) error {
	kept := ignore.Filter(r.ConsoleErrors)
	if len(kept) == 0 {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckNoConsoleErrors,
		Expected: "no console errors",
		Actual:   fmt.Sprintf("%d console error(s): %s", len(kept), firstLines(kept)),
		Context:  ignoredContext(r.TestName, len(r.ConsoleErrors)-len(kept)),
	}
}

// ExpectNoPageErrors passes when no uncaught page error was captured.
func ExpectNoPageErrors(r evidence.Report) error {
	if len(r.PageErrors) == 0 {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckNoPageErrors,
		Expected: "no uncaught page errors",
		Actual:   fmt.Sprintf("%d page error(s): %s", len(r.PageErrors), firstLines(r.PageErrors)),
		Context:  r.TestName,
	}
}

// ExpectNoNetworkFailures passes when every failed request matches ignore
// by its "METHOD URL -> status" description.
func ExpectNoNetworkFailures(r evidence.Report, ignore IgnoreList) error {
	var kept []string
	for _, f := range r.NetworkFailures {
		if s := f.String(); !ignore.Matches(s) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &AssertionFailure{
		Check:    CheckNoNetworkFailures,
		Expected: "no failed requests",
		Actual:   fmt.Sprintf("%d failed request(s): %s", len(kept), firstLines(kept)),
		Context:  ignoredContext(r.TestName, len(r.NetworkFailures)-len(kept)),
	}
}

// ExpectAuthenticated passes for an authenticated session.
func ExpectAuthenticated(sess *auth.Session) error {
	if sess == nil {
		return &AssertionFailure{Check: CheckAuthenticated, Expected: "authenticated session", Actual: "no session"}
	}
	if sess.Authenticated() {
		return nil
	}
	actual := sess.State().String()
	if by := sess.EndedBy(); by != "" {
		actual += " by " + by
	}
	return &AssertionFailure{
		Check:    CheckAuthenticated,
		Expected: "authenticated session",
		Actual:   actual,
		Context:  fmt.Sprintf("role %s", sess.Role),
	}
}

// ExpectField passes when the document has want at path.
func ExpectField(doc apiclient.Document, path, want string) error {
	got := doc.Field(path)
	if got.Exists() && got.String() == want {
		return nil
	}
	actual := "missing"
	if got.Exists() {
		actual = fmt.Sprintf("%q", got.String())
	}
	return &AssertionFailure{
		Check:    CheckField,
		Expected: fmt.Sprintf("%s = %q", path, want),
		Actual:   actual,
		Context:  doc.Path,
	}
}

// ExpectMinCount passes when the document lists at least minItems items.
func ExpectMinCount(doc apiclient.Document, minItems int) error {
	n := doc.Count()
	if n >= minItems {
		return nil
	}
	actual := fmt.Sprintf("%d item(s)", n)
	if n < 0 {
		actual = "no list in response"
	}
	return &AssertionFailure{
		Check:    CheckMinCount,
		Expected: fmt.Sprintf("at least %d item(s)", minItems),
		Actual:   actual,
		Context:  doc.Path,
	}
}

func firstLines(msgs []string) string {
	if len(msgs) > maxEvidenceLines {
		return strings.Join(msgs[:maxEvidenceLines], "; ") + fmt.Sprintf("; ... %d more", len(msgs)-maxEvidenceLines)
	}
	return strings.Join(msgs, "; ")
}

func ignoredContext(test string, ignored int) string {
	if ignored == 0 {
		return test
	}
	return fmt.Sprintf("%s, %d ignored", test, ignored)
}
