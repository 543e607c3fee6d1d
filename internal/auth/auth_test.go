package auth

import (
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const testKey = "0b7e2c44-5f7a-4d1e-9c3b-2a1f0e9d8c7b"

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func authCode(t *testing.T, err error) *Error {
	t.Helper()
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	return aerr
}

func TestAPIKeyDisabledAdmitsAll(t *testing.T) {
	g := NewAPIKeyGuard(newClock().Now)
	for _, presented := range []string{"", "wrong", testKey} {
		if err := g.Check(false, testKey, presented); err != nil {
			t.Errorf("presented %q: unexpected denial %v", presented, err)
		}
	}
}

func TestAPIKeyCorrectAdmits(t *testing.T) {
	g := NewAPIKeyGuard(newClock().Now)
	if err := g.Check(true, testKey, testKey); err != nil {
		t.Errorf("unexpected denial: %v", err)
	}
}

func TestAPIKeyMissingDoesNotCount(t *testing.T) {
	g := NewAPIKeyGuard(newClock().Now)
	for i := 0; i < 10; i++ {
		if e := authCode(t, g.Check(true, testKey, "")); e.Code != http.StatusUnauthorized {
			t.Fatalf("code: got %d, want 401", e.Code)
		}
	}
	if g.Failures() != 0 {
		t.Errorf("failures: got %d, want 0", g.Failures())
	}
}

func TestAPIKeyWrongKeyCountsAndResets(t *testing.T) {
	g := NewAPIKeyGuard(newClock().Now)
	for i := 1; i <= 3; i++ {
		e := authCode(t, g.Check(true, testKey, "wrong"))
		if e.Code != http.StatusUnauthorized {
			t.Errorf("attempt %d: code %d, want 401", i, e.Code)
		}
		if g.Failures() != i {
			t.Errorf("attempt %d: failures %d", i, g.Failures())
		}
	}
	if err := g.Check(true, testKey, testKey); err != nil {
		t.Fatalf("correct key denied: %v", err)
	}
	if g.Failures() != 0 {
		t.Errorf("failures after success: got %d, want 0", g.Failures())
	}
}

func TestAPIKeyLockout(t *testing.T) {
	clock := newClock()
	g := NewAPIKeyGuard(clock.Now)

	for i := 1; i < MaxAPIFailures; i++ {
		g.Check(true, testKey, "wrong")
	}
	e := authCode(t, g.Check(true, testKey, "wrong"))
	if e.Code != http.StatusTooManyRequests {
		t.Errorf("5th failure: code %d, want 429", e.Code)
	}
	if !g.LockedOut() {
		t.Fatal("expected lockout after 5 failures")
	}

	// 6th attempt with the correct key is still refused
	clock.Advance(time.Minute)
	e = authCode(t, g.Check(true, testKey, testKey))
	if e.Code != http.StatusTooManyRequests {
		t.Errorf("during lockout: code %d, want 429", e.Code)
	}
	if e.RetryAfterSeconds() != 240 {
		t.Errorf("retryAfter: got %d, want 240", e.RetryAfterSeconds())
	}

	// Window elapses; correct key admitted and counter reset
	clock.Advance(4 * time.Minute)
	if err := g.Check(true, testKey, testKey); err != nil {
		t.Fatalf("after lockout: unexpected denial %v", err)
	}
	if g.Failures() != 0 {
		t.Errorf("failures after lockout: got %d, want 0", g.Failures())
	}
	if g.LockedOut() {
		t.Error("lockout should be cleared")
	}
}

func TestAPIKeyLockoutExpiryThenWrongKeyStartsFresh(t *testing.T) {
	clock := newClock()
	g := NewAPIKeyGuard(clock.Now)
	for i := 0; i < MaxAPIFailures; i++ {
		g.Check(true, testKey, "wrong")
	}
	clock.Advance(LockoutDuration)
	e := authCode(t, g.Check(true, testKey, "wrong"))
	if e.Code != http.StatusUnauthorized {
		t.Errorf("code: got %d, want 401", e.Code)
	}
	if g.Failures() != 1 {
		t.Errorf("failures: got %d, want 1", g.Failures())
	}
}

func TestAPIKeyEmptyStoredNeverMatches(t *testing.T) {
	g := NewAPIKeyGuard(newClock().Now)
	if err := g.Check(true, "", "anything"); err == nil {
		t.Error("empty stored key must not admit")
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	e := &Error{RetryAfter: 1500 * time.Millisecond}
	if e.RetryAfterSeconds() != 2 {
		t.Errorf("got %d, want 2", e.RetryAfterSeconds())
	}
	if (&Error{}).RetryAfterSeconds() != 0 {
		t.Error("unset retryAfter should be 0")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		key, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey: %v", err)
		}
		if len(key) != 36 || !pattern.MatchString(key) {
			t.Errorf("not a v4 uuid: %q", key)
		}
		if seen[key] {
			t.Errorf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

// memHashes is an in-memory HashStore.
type memHashes struct {
	hash    string
	failSet error
}

func (m *memHashes) PasswordHash() string { return m.hash }

func (m *memHashes) SetPasswordHash(h string) error {
	if m.failSet != nil {
		return m.failSet
	}
	m.hash = h
	return nil
}

func newSessionGuard() (*SessionGuard, *memHashes, *fakeClock) {
	clock := newClock()
	hashes := &memHashes{}
	g := NewSessionGuard(hashes, clock.Now)
	g.cost = bcrypt.MinCost
	return g, hashes, clock
}

func TestSetupValidation(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		want     error
	}{
		{"too short", "abc12", "abc12", ErrPasswordTooShort},
		{"mismatch", "abcdef", "abcdeg", ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, hashes, _ := newSessionGuard()
			if _, err := g.Setup(tt.password, tt.confirm); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if hashes.hash != "" || g.IsConfigured() {
				t.Error("password stored despite rejection")
			}
		})
	}
}

func TestSetupCreatesSession(t *testing.T) {
	g, hashes, clock := newSessionGuard()
	if g.IsConfigured() {
		t.Fatal("should start unconfigured")
	}
	s, err := g.Setup("correct horse", "correct horse")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !g.IsConfigured() {
		t.Error("expected configured")
	}
	if len(hashes.hash) != 60 {
		t.Errorf("hash length: got %d, want 60", len(hashes.hash))
	}
	if !s.Active || s.Token == "" {
		t.Errorf("session not started: %+v", s)
	}
	if !s.ExpiresAt.Equal(clock.Now().Add(SessionTTL)) {
		t.Errorf("expiry: got %v", s.ExpiresAt)
	}
	if !g.Validate(s.Token) {
		t.Error("setup session should validate")
	}

	if _, err := g.Setup("another1", "another1"); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second setup: got %v, want ErrAlreadyConfigured", err)
	}
}

func TestSetupStoreFailure(t *testing.T) {
	g, hashes, _ := newSessionGuard()
	hashes.failSet = errors.New("flash error")
	if _, err := g.Setup("password1", "password1"); err == nil {
		t.Fatal("expected error")
	}
	if g.Current().Active {
		t.Error("session must not start when the hash was not stored")
	}
}

func TestLogin(t *testing.T) {
	g, _, _ := newSessionGuard()
	if _, err := g.Login("whatever"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured login: got %v", err)
	}
	g.Setup("password1", "password1")
	g.Logout()

	if _, err := g.Login("password2"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password: got %v", err)
	}
	s, err := g.Login("password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !g.Validate(s.Token) {
		t.Error("login session should validate")
	}
}

func TestSecondLoginInvalidatesFirst(t *testing.T) {
	g, _, _ := newSessionGuard()
	g.Setup("password1", "password1")

	first, _ := g.Login("password1")
	second, _ := g.Login("password1")
	if first.Token == second.Token {
		t.Fatal("tokens should differ")
	}
	if g.Validate(first.Token) {
		t.Error("first token must be rejected after second login")
	}
	// Mismatch clears the session, so the second token is gone as well
	if g.Validate(second.Token) {
		t.Error("session should be cleared after a mismatched token")
	}
}

func TestValidateSlidesExpiry(t *testing.T) {
	g, _, clock := newSessionGuard()
	s, _ := g.Setup("password1", "password1")

	clock.Advance(50 * time.Minute)
	if !g.Validate(s.Token) {
		t.Fatal("session should still be valid")
	}
	clock.Advance(50 * time.Minute) // 100 minutes since login, 50 since refresh
	if !g.Validate(s.Token) {
		t.Fatal("sliding window should keep session alive")
	}
	clock.Advance(SessionTTL)
	if g.Validate(s.Token) {
		t.Error("session should have expired")
	}
	if g.Current().Active {
		t.Error("expired session should be cleared")
	}
}

func TestValidateEmptyTokenKeepsSession(t *testing.T) {
	g, _, _ := newSessionGuard()
	s, _ := g.Setup("password1", "password1")
	if g.Validate("") {
		t.Error("empty token must not validate")
	}
	if !g.Validate(s.Token) {
		t.Error("empty token must not end the session")
	}
}

func TestLogout(t *testing.T) {
	g, _, _ := newSessionGuard()
	s, _ := g.Setup("password1", "password1")
	g.Logout()
	if g.Validate(s.Token) {
		t.Error("token valid after logout")
	}
	// Logout without a session is harmless
	g.Logout()
}

func TestClearPasswordRecovery(t *testing.T) {
	g, hashes, _ := newSessionGuard()
	s, _ := g.Setup("password1", "password1")
	if err := g.ClearPassword(); err != nil {
		t.Fatalf("ClearPassword: %v", err)
	}
	if g.IsConfigured() || hashes.hash != "" {
		t.Error("password not cleared")
	}
	if g.Validate(s.Token) {
		t.Error("session survived password clear")
	}
	if _, err := g.Setup("newpass1", "newpass1"); err != nil {
		t.Errorf("setup after recovery: %v", err)
	}
}
