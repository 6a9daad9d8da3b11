// Package errors defines the typed failures reported by the harness.
//
// Every harness operation that can fail returns one of these types (possibly
// wrapped). Callers match them with the Is* helpers, which unwrap.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// UnknownRoleError is returned when a role has no registered credential.
type UnknownRoleError struct {
	Role string `json:"role"`
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q: no credential registered", e.Role)
}

// LoginFormNotFoundError means no email/password input pair appeared.
type LoginFormNotFoundError struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

func (e *LoginFormNotFoundError) Error() string {
	return fmt.Sprintf("login form not found at %s within %s", e.URL, e.Timeout)
}

// AuthenticationRejectedError means the application refused the credentials.
type AuthenticationRejectedError struct {
	Role    string `json:"role"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

func (e *AuthenticationRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication rejected for %s at %s: %s", e.Role, e.URL, e.Message)
	}
	return fmt.Sprintf("authentication rejected for %s at %s", e.Role, e.URL)
}

// AmbiguousStateError means neither success nor failure indicators appeared.
type AmbiguousStateError struct {
	Role      string `json:"role"`
	LastState string `json:"last_state"`
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("login outcome for %s is ambiguous (last state: %s)", e.Role, e.LastState)
}

// ElementNotFoundError is returned when a UI affordance cannot be resolved.
type ElementNotFoundError struct {
	Affordance string   `json:"affordance"`
	Selectors  []string `json:"selectors"`
	URL        string   `json:"url"`
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s not found on %s (tried %v)", e.Affordance, e.URL, e.Selectors)
}

// LogoutControlNotFoundError wraps the failed resolution of the logout control.
type LogoutControlNotFoundError struct {
	Err error `json:"-"`
}

func (e *LogoutControlNotFoundError) Error() string {
	return fmt.Sprintf("logout control not found: %v", e.Err)
}

func (e *LogoutControlNotFoundError) Unwrap() error {
	return e.Err
}

// NavigationTimeoutError is attached to navigation results that did not settle in time.
type NavigationTimeoutError struct {
	Route     string        `json:"route"`
	Timeout   time.Duration `json:"timeout"`
	LastState string        `json:"last_state"`
	Err       error         `json:"-"`
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation to %s timed out after %s (last state: %s)", e.Route, e.Timeout, e.LastState)
}

func (e *NavigationTimeoutError) Unwrap() error {
	return e.Err
}

// DuplicateLabelError is returned when a screenshot label is reused within one report.
type DuplicateLabelError struct {
	Label string `json:"label"`
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("screenshot label %q already used in this report", e.Label)
}

// CaptureAlreadyStoppedError is returned by a second StopCapture on the same handle.
type CaptureAlreadyStoppedError struct {
	TestName string `json:"test_name"`
}

func (e *CaptureAlreadyStoppedError) Error() string {
	return fmt.Sprintf("evidence capture for %q already stopped", e.TestName)
}

// TimeoutError is returned when a bounded wait expires or its context ends.
type TimeoutError struct {
	Operation string        `json:"operation"`
	Timeout   time.Duration `json:"timeout"`
	LastState string        `json:"last_state"`
	Err       error         `json:"-"`
}

func (e *TimeoutError) Error() string {
	if e.LastState == "" {
		return fmt.Sprintf("timeout during %s after %s", e.Operation, e.Timeout)
	}
	return fmt.Sprintf("timeout during %s after %s (last state: %s)", e.Operation, e.Timeout, e.LastState)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// InvalidSessionStateError is returned when a session is used outside its legal state.
type InvalidSessionStateError struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("cannot %s: session is %s", e.Operation, e.State)
}

// APIError represents a non-2xx answer from the application's REST API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Body       string `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d) on %s %s", e.StatusCode, e.Method, e.Path)
}

// NetworkError represents a transport failure talking to the application.
type NetworkError struct {
	Operation string `json:"operation"`
	URL       string `json:"url"`
	Err       error  `json:"-"`
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s to %s: %v", e.Operation, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// SchemaError lists JSON-schema violations of a document.
type SchemaError struct {
	Document   string   `json:"document"`
	Violations []string `json:"violations"`
}

func (e *SchemaError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s does not match schema: %s", e.Document, e.Violations[0])
	}
	return fmt.Sprintf("%s does not match schema: %d violations", e.Document, len(e.Violations))
}

// IsUnknownRole reports whether err is or wraps an UnknownRoleError.
func IsUnknownRole(err error) bool {
	var target *UnknownRoleError
	return stderrors.As(err, &target)
}

// IsLoginFormNotFound reports whether err is or wraps a LoginFormNotFoundError.
func IsLoginFormNotFound(err error) bool {
	var target *LoginFormNotFoundError
	return stderrors.As(err, &target)
}

// IsAuthenticationRejected reports whether err is or wraps an AuthenticationRejectedError.
func IsAuthenticationRejected(err error) bool {
	var target *AuthenticationRejectedError
	return stderrors.As(err, &target)
}

// IsAmbiguousState reports whether err is or wraps an AmbiguousStateError.
func IsAmbiguousState(err error) bool {
	var target *AmbiguousStateError
	return stderrors.As(err, &target)
}

func IsElementNotFound(err error) bool {
	var target *ElementNotFoundError
	return stderrors.As(err, &target)
}

func IsLogoutControlNotFound(err error) bool {
	var target *LogoutControlNotFoundError
	return stderrors.As(err, &target)
}

func IsNavigationTimeout(err error) bool {
	var target *NavigationTimeoutError
	return stderrors.As(err, &target)
}

func IsDuplicateLabel(err error) bool {
	var target *DuplicateLabelError
	return stderrors.As(err, &target)
}

func IsCaptureAlreadyStopped(err error) bool {
	var target *CaptureAlreadyStoppedError
	return stderrors.As(err, &target)
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return stderrors.As(err, &target)
}

func IsInvalidSessionState(err error) bool {
	var target *InvalidSessionStateError
	return stderrors.As(err, &target)
}

// IsNotFound checks if an error is an API not found error
func IsNotFound(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsUnauthorized checks if an error is an API unauthorized error
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsForbidden checks if an error is an API forbidden error
func IsForbidden(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
