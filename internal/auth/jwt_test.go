package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	hash, err := HashPassword("sunrise-password")
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(testSecret, "admin", hash, 5)
}

func TestLoginAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.Login("admin", "sunrise-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if time.Until(expiresAt) > 5*time.Minute || time.Until(expiresAt) < 4*time.Minute {
		t.Errorf("Unexpected expiry %v", expiresAt)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Expected username admin, got %s", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m := newTestManager(t)

	if _, _, err := m.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := m.Login("root", "sunrise-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong user, got %v", err)
	}
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	m := newTestManager(t)

	other := NewManager("another-secret-another-secret-123", "admin", "", 5)
	token, _, err := other.GenerateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateToken(expired); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}
