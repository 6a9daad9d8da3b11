package fakeapp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is a browser session. A pending session has passed the password
// step and still owes a TOTP code.
type session struct {
	ID      string
	Email   string
	Role    string
	Pending bool
	Expires time.Time
}

type sessionStore struct {
	mu   sync.Mutex
	byID map[string]*session
	ttl  time.Duration
	now  func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{byID: make(map[string]*session), ttl: ttl, now: time.Now}
}

func (s *sessionStore) create(acct Account, pending bool) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{
		ID:      uuid.NewString(),
		Email:   acct.Email,
		Role:    acct.Role,
		Pending: pending,
		Expires: s.now().Add(s.ttl),
	}
	s.byID[sess.ID] = sess
	return sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if s.now().After(sess.Expires) {
		delete(s.byID, id)
		return nil, false
	}
	cp := *sess
	return &cp, true
}

func (s *sessionStore) promote(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	sess.Pending = false
	cp := *sess
	return &cp, true
}

func (s *sessionStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// expireAll ends every session, as a server restart would.
func (s *sessionStore) expireAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*session)
}
