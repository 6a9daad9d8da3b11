package fakeapp

import (
	"sync"
	"time"
)

// loginLimiter blocks an IP and email pair after too many failed logins inside
// a window, with a backoff that doubles for every further failure.
type loginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord

	maxAttempts int
	window      time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

type attemptRecord struct {
	failures  int
	lastFail  time.Time
	blockedAt time.Time
}

func newLoginLimiter(maxAttempts int, window, baseBackoff, maxBackoff time.Duration) *loginLimiter {
	return &loginLimiter{
		attempts:    make(map[string]*attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		now:         time.Now,
	}
}

func (l *loginLimiter) key(ip, email string) string {
	return ip + ":" + normaliseEmail(email)
}

// blocked reports whether the pair is blocked and for how much longer.
func (l *loginLimiter) blocked(ip, email string) (bool, time.Duration) {
	if l == nil || l.maxAttempts <= 0 {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[l.key(ip, email)]
	if !ok || rec.blockedAt.IsZero() {
		return false, 0
	}
	until := rec.blockedAt.Add(l.backoff(rec.failures))
	now := l.now()
	if now.After(until) {
		return false, 0
	}
	return true, until.Sub(now)
}

func (l *loginLimiter) failure(ip, email string) {
	if l == nil || l.maxAttempts <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := l.key(ip, email)
	rec, ok := l.attempts[k]
	if !ok {
		rec = &attemptRecord{}
		l.attempts[k] = rec
	}
	now := l.now()
	if !rec.lastFail.IsZero() && now.Sub(rec.lastFail) > l.window {
		rec.failures = 0
		rec.blockedAt = time.Time{}
	}
	rec.failures++
	rec.lastFail = now
	if rec.failures >= l.maxAttempts {
		rec.blockedAt = now
	}
	l.prune(now)
}

func (l *loginLimiter) success(ip, email string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, l.key(ip, email))
}

func (l *loginLimiter) backoff(failures int) time.Duration {
	d := l.baseBackoff
	for i := l.maxAttempts; i < failures && d < l.maxBackoff; i++ {
		d *= 2
	}
	if d > l.maxBackoff {
		d = l.maxBackoff
	}
	return d
}

// prune drops records that can no longer block. Callers hold l.mu.
func (l *loginLimiter) prune(now time.Time) {
	for k, rec := range l.attempts {
		if now.Sub(rec.lastFail) > l.window+l.maxBackoff {
			delete(l.attempts, k)
		}
	}
}
