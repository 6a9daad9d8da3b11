package auth

import (
	"sync"
	"time"

	"github.com/gotrs-io/e2eprobe/internal/credentials"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateEnded:
		return "ended"
	default:
		return "unauthenticated"
	}
}

// Method records how a session was obtained.
type Method string

const (
	MethodUI  Method = "ui"
	MethodAPI Method = "api"
)

// Session is the authenticated state produced by one successful login. It is
// owned by the test that created it and is never reused across roles.
//
// Once ended, a session stays ended.
type Session struct {
	Role       credentials.Role
	LandingURL string
	AcquiredAt time.Time
	Method     Method
	Token      string
	ExpiresAt  time.Time

	mu      sync.Mutex
	state   State
	endedBy string
}

func newSession(role credentials.Role, landingURL string, method Method, at time.Time) *Session {
	return &Session{
		Role:       role,
		LandingURL: landingURL,
		AcquiredAt: at,
		Method:     method,
		state:      StateAuthenticated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	if s == nil {
		return StateUnauthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the session is usable.
func (s *Session) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// EndedBy returns why the session ended ("logout", "expired", "teardown"), or "".
func (s *Session) EndedBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedBy
}

// require returns an InvalidSessionStateError unless the session is authenticated.
func (s *Session) require(operation string) error {
	if st := s.State(); st != StateAuthenticated {
		return &harnesserrors.InvalidSessionStateError{Operation: operation, State: st.String()}
	}
	return nil
}

// end moves the session to Ended. Ending an ended session keeps the first reason.
func (s *Session) end(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded
	s.endedBy = reason
}
