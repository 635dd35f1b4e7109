package userui

import (
	"sync"
	"time"
)

// loginLimiter tracks recent login attempts per client so a single IP
// cannot hammer the password form. Attempts older than the window are
// forgotten on the next call for that key.
type loginLimiter struct {
	window time.Duration
	max    int

	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newLoginLimiter(window time.Duration, max int) *loginLimiter {
	return &loginLimiter{
		window:   window,
		max:      max,
		attempts: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key and reports whether it is still
// within budget.
func (l *loginLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	var recent []time.Time
	for _, at := range l.attempts[key] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= l.max {
		l.attempts[key] = recent
		return false
	}
	l.attempts[key] = append(recent, now)
	return true
}
