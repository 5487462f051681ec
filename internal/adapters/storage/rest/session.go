package rest

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Session carries the bearer credential for task store calls. It is owned by
// whoever authenticates the operator and handed to the client explicitly.
type Session struct {
	mu           sync.Mutex
	token        string
	onInvalidate func()
}

// NewSession constructs a new value for this package. onInvalidate, when set,
// runs once each time the store rejects the credential.
func NewSession(token string, onInvalidate func()) *Session {
	return &Session{token: strings.TrimSpace(token), onInvalidate: onInvalidate}
}

// Token returns the current bearer token, or "" once invalidated.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the bearer token, e.g. after a fresh login.
func (s *Session) SetToken(token string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Invalidate clears the token and notifies the owner.
func (s *Session) Invalidate() {
	if s == nil {
		return
	}
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	cb := s.onInvalidate
	s.mu.Unlock()
	if had && cb != nil {
		cb()
	}
}

// ExpiresAt reads the exp claim when the token is a JWT. The signature is not
// verified; the store remains the authority on validity.
func (s *Session) ExpiresAt() (time.Time, bool) {
	tok := s.Token()
	if tok == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0).UTC(), true
}

// Subject returns the sub claim of a JWT token, if present.
func (s *Session) Subject() string {
	tok := s.Token()
	if tok == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// Valid reports whether the session holds a token that has not expired at now.
// Opaque tokens without an exp claim are assumed valid.
func (s *Session) Valid(now time.Time) bool {
	if s.Token() == "" {
		return false
	}
	exp, ok := s.ExpiresAt()
	if !ok {
		return true
	}
	return now.Before(exp)
}
