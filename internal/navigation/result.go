// Package navigation reaches application routes the way a user would and
// classifies where the browser ended up.
package navigation

import (
	"errors"
	"time"
)

// ErrNoPage is the cause recorded when the browser ends a navigation on no
// application page at all, such as about:blank or an empty URL.
var ErrNoPage = errors.New("navigation ended on no page")

// Outcome classifies where a navigation ended.
type Outcome string

const (
	OutcomeReached           Outcome = "reached"
	OutcomeRedirectedToLogin Outcome = "redirected_to_login"
	OutcomeRedirected        Outcome = "redirected"
	OutcomeForbidden         Outcome = "forbidden"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeError             Outcome = "error"
)

// Strategy records how the route was reached.
type Strategy string

const (
	StrategyLink   Strategy = "link"
	StrategyDirect Strategy = "direct"
)

// Result is the immutable record of one navigation attempt.
type Result struct {
	RequestedRoute string    `json:"requested_route"`
	ResolvedURL    string    `json:"resolved_url"`
	Outcome        Outcome   `json:"outcome"`
	Strategy       Strategy  `json:"strategy"`
	Status         int       `json:"status,omitempty"`
	Message        string    `json:"error,omitempty"`
	At             time.Time `json:"at"`

	// Err is set when Outcome is OutcomeError.
	Err error `json:"-"`
}

// Reached reports whether the requested route was reached.
func (r Result) Reached() bool {
	return r.Outcome == OutcomeReached
}
