// Package check turns navigation results, sessions and evidence into pass or
// fail outcomes. A Verifier fails the running test on the first failure; an
// Investigation records every outcome as a finding and never fails.
package check

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/gotrs-io/e2eprobe/internal/evidence"
)

// maxEvidenceLines caps how many console and page errors a failure carries.
const maxEvidenceLines = 5

// AssertionFailure describes a failed check.
type AssertionFailure struct {
	Check    string   `json:"check"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Context  string   `json:"context,omitempty"`
	Evidence []string `json:"evidence,omitempty"`
}

func (f *AssertionFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: expected %s, got %s", f.Check, f.Expected, f.Actual)
	if f.Context != "" {
		fmt.Fprintf(&b, " (%s)", f.Context)
	}
	for _, e := range f.Evidence {
		b.WriteString("\n  evidence: ")
		b.WriteString(e)
	}
	return b.String()
}

// IsAssertionFailure reports whether err is or wraps an AssertionFailure.
func IsAssertionFailure(err error) bool {
	var target *AssertionFailure
	return stderrors.As(err, &target)
}

// EvidenceLines summarises a report for a failure message: the last
// screenshot, then console and page errors.
func EvidenceLines(r evidence.Report) []string {
	var out []string
	if s, ok := r.LastScreenshot(); ok {
		out = append(out, fmt.Sprintf("screenshot %q: %s", s.Label, s.Ref))
	}
	for i, msg := range r.ConsoleErrors {
		if i == maxEvidenceLines {
			out = append(out, fmt.Sprintf("... %d more console error(s)", len(r.ConsoleErrors)-i))
			break
		}
		out = append(out, "console: "+msg)
	}
	for i, msg := range r.PageErrors {
		if i == maxEvidenceLines {
			out = append(out, fmt.Sprintf("... %d more page error(s)", len(r.PageErrors)-i))
			break
		}
		out = append(out, "page error: "+msg)
	}
	return out
}

// attachEvidence adds report evidence to err when it is an AssertionFailure
// that carries none yet.
func attachEvidence(err error, report func() evidence.Report) error {
	var f *AssertionFailure
	if report == nil || !stderrors.As(err, &f) || len(f.Evidence) > 0 {
		return err
	}
	f.Evidence = EvidenceLines(report())
	return err
}
