package main

import (
	"errors"
	"strings"
	"testing"
)

func TestRegisterAndLogin(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db)

	id, token, err := auth.Register("  marshal ", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	gotID, name, err := auth.ValidateToken(token)
	if err != nil || gotID != id || name != "marshal" {
		t.Errorf("ValidateToken = %d, %q, %v", gotID, name, err)
	}

	if _, _, err := auth.Register("marshal", "another1"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
	if _, _, err := auth.Login("marshal", "wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := auth.Login("ghost", "hunter22", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	loginID, _, err := auth.Login("marshal", "hunter22", "1.2.3.4")
	if err != nil || loginID != id {
		t.Errorf("Login = %d, %v", loginID, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := NewAuth(openTestDB(t))
	if _, _, err := auth.Register("x", "hunter22"); err == nil || !strings.HasPrefix(err.Error(), "username must") {
		t.Errorf("short username: %v", err)
	}
	if _, _, err := auth.Register("marshal", "abc"); err == nil || !strings.HasPrefix(err.Error(), "password must") {
		t.Errorf("short password: %v", err)
	}
}

func TestTokenRejections(t *testing.T) {
	db := openTestDB(t)
	auth := NewAuth(db)
	_, token, err := auth.Register("marshal", "hunter22")
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts", len(parts))
	}
	if _, _, err := auth.ValidateToken(parts[0] + "." + parts[1] + "."); err == nil {
		t.Error("unsigned token should be rejected")
	}

	// A fresh secret invalidates old tokens; reopening keeps the stored one
	if _, _, err := NewAuth(db).ValidateToken(token); err != nil {
		t.Errorf("token should survive a restart: %v", err)
	}
	db.SetSetting(jwtSecretSetting, "")
	if _, _, err := NewAuth(db).ValidateToken(token); err == nil {
		t.Error("token signed with a discarded secret should be rejected")
	}
}

func TestLoginRateLimit(t *testing.T) {
	auth := NewAuth(openTestDB(t))
	for i := 0; i < maxLoginAttempts; i++ {
		if _, _, err := auth.Login("ghost", "pw", "9.9.9.9"); errors.Is(err, ErrRateLimited) {
			t.Fatalf("attempt %d rate limited too early", i)
		}
	}
	if _, _, err := auth.Login("ghost", "pw", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if _, _, err := auth.Login("ghost", "pw", "8.8.8.8"); errors.Is(err, ErrRateLimited) {
		t.Error("other addresses should not be limited")
	}
}

func TestPublicAuthError(t *testing.T) {
	if got := publicAuthError(ErrUsernameTaken); got != ErrUsernameTaken.Error() {
		t.Errorf("got %q", got)
	}
	if got := publicAuthError(errors.New("create operator: disk I/O error")); got != "internal error" {
		t.Errorf("storage errors should be hidden, got %q", got)
	}
}
