package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/miswired/esp32-radar-sub000/internal/logger"
)

const (
	// SessionTTL is the sliding session lifetime.
	SessionTTL = time.Hour
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit.
	MaxPasswordLength = 72
)

// HashStore persists the password hash. The configuration manager
// implements it.
type HashStore interface {
	PasswordHash() string
	SetPasswordHash(hash string) error
}

// Session is the single login session.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Active    bool
}

// SessionGuard manages the device password and the one active session.
// A new login replaces any existing session.
type SessionGuard struct {
	hashes  HashStore
	session Session
	now     func() time.Time
	cost    int
}

// NewSessionGuard creates a guard over hashes using now as its clock.
func NewSessionGuard(hashes HashStore, now func() time.Time) *SessionGuard {
	if now == nil {
		now = time.Now
	}
	return &SessionGuard{hashes: hashes, now: now, cost: bcrypt.DefaultCost}
}

// IsConfigured reports whether a password has been set.
func (g *SessionGuard) IsConfigured() bool {
	return g.hashes.PasswordHash() != ""
}

// Setup sets the initial password and starts a session.
func (g *SessionGuard) Setup(password, confirm string) (Session, error) {
	if g.IsConfigured() {
		return Session{}, ErrAlreadyConfigured
	}
	if len(password) < MinPasswordLength {
		return Session{}, ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return Session{}, ErrPasswordTooLong
	}
	if password != confirm {
		return Session{}, ErrPasswordMismatch
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	if err := g.hashes.SetPasswordHash(string(hash)); err != nil {
		return Session{}, fmt.Errorf("store password: %w", err)
	}
	logger.Infof("auth: password configured")
	return g.start()
}

// Login verifies password and starts a new session, ending any other.
func (g *SessionGuard) Login(password string) (Session, error) {
	hash := g.hashes.PasswordHash()
	if hash == "" {
		return Session{}, ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		logger.Warnf("auth: failed login")
		return Session{}, ErrInvalidPassword
	}
	if g.session.Active {
		logger.Infof("auth: new login replaces existing session")
	}
	return g.start()
}

// Validate reports whether token is the active, unexpired session. A valid
// check extends the expiry by SessionTTL. A wrong or expired token ends the
// session. An empty token is treated as no credential and changes nothing.
func (g *SessionGuard) Validate(token string) bool {
	if token == "" {
		return false
	}
	if !g.session.Active {
		return false
	}
	now := g.now()
	if !now.Before(g.session.ExpiresAt) {
		logger.Infof("auth: session expired")
		g.session = Session{}
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.session.Token)) != 1 {
		logger.Warnf("auth: session token mismatch, session cleared")
		g.session = Session{}
		return false
	}
	g.session.ExpiresAt = now.Add(SessionTTL)
	return true
}

// Logout ends the session.
func (g *SessionGuard) Logout() {
	g.session = Session{}
}

// ClearPassword removes the stored password and ends the session without
// requiring the old password. It is the recovery path for a lost password.
func (g *SessionGuard) ClearPassword() error {
	g.session = Session{}
	if err := g.hashes.SetPasswordHash(""); err != nil {
		return fmt.Errorf("clear password: %w", err)
	}
	logger.Warnf("auth: password cleared")
	return nil
}

// Current returns a copy of the session.
func (g *SessionGuard) Current() Session {
	return g.session
}

func (g *SessionGuard) start() (Session, error) {
	token, err := randomToken(32)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	g.session = Session{
		Token:     token,
		ExpiresAt: g.now().Add(SessionTTL),
		Active:    true,
	}
	return g.session, nil
}

// randomToken returns a URL-safe base64 string of n random bytes.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
