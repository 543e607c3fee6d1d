package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miswired/esp32-radar-sub000/internal/logger"
)

const (
	// MaxAPIFailures consecutive wrong keys arm the lockout.
	MaxAPIFailures = 5
	// LockoutDuration is how long API key attempts are refused.
	LockoutDuration = 5 * time.Minute
)

// APIKeyGuard checks presented API keys and tracks consecutive failures.
// Lockout expiry is evaluated lazily on the next Check.
type APIKeyGuard struct {
	failures     int
	lockoutUntil time.Time
	now          func() time.Time
}

// NewAPIKeyGuard creates a guard using now as its clock (time.Now if nil).
func NewAPIKeyGuard(now func() time.Time) *APIKeyGuard {
	if now == nil {
		now = time.Now
	}
	return &APIKeyGuard{now: now}
}

// Check admits the request (nil) or returns an *Error. enabled and stored
// come from the live configuration; presented is the caller's key, empty
// when none was supplied.
func (g *APIKeyGuard) Check(enabled bool, stored, presented string) error {
	if !enabled {
		return nil
	}

	now := g.now()
	if !g.lockoutUntil.IsZero() {
		if now.Before(g.lockoutUntil) {
			return tooManyRequests("Too many failed attempts", g.lockoutUntil.Sub(now))
		}
		logger.Infof("auth: api key lockout expired")
		g.lockoutUntil = time.Time{}
		g.failures = 0
	}

	if presented == "" {
		return unauthorized("API key required")
	}
	if stored != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1 {
		g.failures = 0
		return nil
	}

	g.failures++
	if g.failures >= MaxAPIFailures {
		g.lockoutUntil = now.Add(LockoutDuration)
		logger.Warnf("auth: %d failed api key attempts, locked out until %s",
			g.failures, g.lockoutUntil.UTC().Format(time.RFC3339))
		return tooManyRequests("Too many failed attempts", LockoutDuration)
	}
	logger.Debugf("auth: invalid api key (%d/%d)", g.failures, MaxAPIFailures)
	return unauthorized("Invalid API key")
}

// Failures returns the consecutive failure count.
func (g *APIKeyGuard) Failures() int {
	return g.failures
}

// LockedOut reports whether a lockout is in force at the current time.
func (g *APIKeyGuard) LockedOut() bool {
	return !g.lockoutUntil.IsZero() && g.now().Before(g.lockoutUntil)
}

// Reset clears the failure state.
func (g *APIKeyGuard) Reset() {
	g.failures = 0
	g.lockoutUntil = time.Time{}
}

// GenerateAPIKey returns a new random version-4 UUID key.
func GenerateAPIKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return id.String(), nil
}
