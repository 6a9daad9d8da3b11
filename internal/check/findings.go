package check

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Finding is one recorded check outcome.
type Finding struct {
	Name     string    `json:"name"`
	Check    string    `json:"check,omitempty"`
	Passed   bool      `json:"passed"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Context  string    `json:"context,omitempty"`
	Evidence []string  `json:"evidence,omitempty"`
	At       time.Time `json:"at"`
}

// Findings is an investigation document.
type Findings struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Findings    []Finding `json:"findings"`
}

// Failed returns the failed findings.
func (f Findings) Failed() []Finding {
	var out []Finding
	for _, x := range f.Findings {
		if !x.Passed {
			out = append(out, x)
		}
	}
	return out
}

// Passed reports whether no finding failed.
func (f Findings) Passed() bool {
	return len(f.Failed()) == 0
}

// Merge appends other's findings to f.
func (f *Findings) Merge(other Findings) {
	f.Findings = append(f.Findings, other.Findings...)
}

// DecodeFindings reads a findings document written by RenderJSON.
func DecodeFindings(r io.Reader) (Findings, error) {
	var f Findings
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Findings{}, fmt.Errorf("decode findings: %w", err)
	}
	return f, nil
}
