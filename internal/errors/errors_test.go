package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"unknown role", &UnknownRoleError{Role: "janitor"}, `unknown role "janitor"`},
		{"form not found", &LoginFormNotFoundError{URL: "http://app/login", Timeout: 2 * time.Second}, "within 2s"},
		{"rejected with message", &AuthenticationRejectedError{Role: "admin", URL: "/login", Message: "bad password"}, "bad password"},
		{"ambiguous", &AmbiguousStateError{Role: "member", LastState: "url=/welcome"}, "url=/welcome"},
		{"element", &ElementNotFoundError{Affordance: "logout control", URL: "/dashboard"}, "logout control not found"},
		{"duplicate label", &DuplicateLabelError{Label: "after-login"}, `"after-login"`},
		{"stopped", &CaptureAlreadyStoppedError{TestName: "TestX"}, "already stopped"},
		{"timeout without state", &TimeoutError{Operation: "login", Timeout: time.Second}, "timeout during login after 1s"},
		{"api", &APIError{StatusCode: 500, Method: "GET", Path: "/api/events"}, "(500) on GET /api/events"},
		{"schema single", &SchemaError{Document: "report", Violations: []string{"x is required"}}, "x is required"},
		{"schema many", &SchemaError{Document: "report", Violations: []string{"a", "b"}}, "2 violations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}

func TestHelpersUnwrap(t *testing.T) {
	t.Run("wrapped with fmt", func(t *testing.T) {
		err := fmt.Errorf("login as admin: %w", &UnknownRoleError{Role: "admin"})
		assert.True(t, IsUnknownRole(err))
		assert.False(t, IsTimeout(err))
	})

	t.Run("logout wraps element not found", func(t *testing.T) {
		err := &LogoutControlNotFoundError{Err: &ElementNotFoundError{Affordance: "logout control"}}
		assert.True(t, IsLogoutControlNotFound(err))
		assert.True(t, IsElementNotFound(err))
	})

	t.Run("navigation timeout wraps timeout", func(t *testing.T) {
		err := &NavigationTimeoutError{Route: "/admin", Err: &TimeoutError{Operation: "settle"}}
		assert.True(t, IsNavigationTimeout(err))
		assert.True(t, IsTimeout(err))
	})

	t.Run("network error unwraps cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := &NetworkError{Operation: "GET", URL: "http://x", Err: cause}
		assert.ErrorIs(t, err, cause)
	})
}

func TestAPIStatusHelpers(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{StatusCode: http.StatusNotFound}))
	assert.True(t, IsUnauthorized(fmt.Errorf("wrap: %w", &APIError{StatusCode: http.StatusUnauthorized})))
	assert.True(t, IsForbidden(&APIError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsForbidden(&APIError{StatusCode: http.StatusOK}))
	assert.False(t, IsNotFound(stderrors.New("plain")))
}
