package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"
)

const SessionCookieName = "fileshare_session"

// SessionManager issues and tracks in-process sessions. Sessions do not
// survive a restart; the signed cookie only carries an opaque id.
type SessionManager struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	username  string
	expiresAt time.Time
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]sessionEntry),
	}
}

func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Create opens a session for username and returns its id.
func (m *SessionManager) Create(username string) (string, error) {
	id, err := NewToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	m.sessions[id] = sessionEntry{username: username, expiresAt: m.now().Add(m.ttl)}
	return id, nil
}

// Lookup resolves a session id to its username, dropping it if expired.
func (m *SessionManager) Lookup(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return "", false
	}
	if m.now().After(e.expiresAt) {
		delete(m.sessions, id)
		return "", false
	}
	return e.username, true
}

// Revoke drops a single session.
func (m *SessionManager) Revoke(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// RevokeUser drops every session belonging to username, used when an
// account is deleted by an admin.
func (m *SessionManager) RevokeUser(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.username == username {
			delete(m.sessions, id)
		}
	}
}

func (m *SessionManager) pruneLocked() {
	now := m.now()
	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
		}
	}
}

// CookieCodec signs session ids so a tampered cookie never reaches the
// session table.
type CookieCodec struct {
	secret []byte
}

// NewCookieCodec derives a codec from secret. An empty secret gets a
// random per-process key, which keeps dev setups working at the cost of
// sessions dying on restart (they die anyway: see SessionManager).
func NewCookieCodec(secret []byte) CookieCodec {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return CookieCodec{secret: key}
}

func (c CookieCodec) Sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(sessionID))
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c CookieCodec) Verify(cookieValue string) (string, bool) {
	id, sigB64, ok := strings.Cut(cookieValue, ".")
	if !ok || id == "" || sigB64 == "" {
		return "", false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != sha256.Size {
		return "", false
	}
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(id))
	if subtle.ConstantTimeCompare(sig, mac.Sum(nil)) != 1 {
		return "", false
	}
	return id, true
}

func SetSessionCookie(w http.ResponseWriter, cookieValue string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
