package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() JWTConfig {
	return JWTConfig{
		SecretKey:     "test-secret-key",
		Issuer:        "test-issuer",
		TokenDuration: 15 * time.Minute,
	}
}

func TestJWTManager_GenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager(testConfig())

	token, err := manager.GenerateToken("user-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, "user-123")
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("claims.Issuer = %q, want %q", claims.Issuer, "test-issuer")
	}
}

func TestJWTManager_MissingToken(t *testing.T) {
	manager := NewJWTManager(testConfig())

	_, err := manager.ValidateToken("")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("ValidateToken(\"\") error = %v, want ErrMissingToken", err)
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := NewJWTManager(testConfig())

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: mustToken(t, JWTConfig{SecretKey: "other-secret", Issuer: "test-issuer", TokenDuration: time.Minute})},
		{name: "wrong issuer", token: mustToken(t, JWTConfig{SecretKey: "test-secret-key", Issuer: "someone-else", TokenDuration: time.Minute})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	expired := NewJWTManager(JWTConfig{
		SecretKey:     "test-secret-key",
		Issuer:        "test-issuer",
		TokenDuration: -time.Minute,
	})
	manager := NewJWTManager(testConfig())

	token, err := expired.GenerateToken("user-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}
}

func mustToken(t *testing.T, config JWTConfig) string {
	t.Helper()
	token, err := NewJWTManager(config).GenerateToken("user-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}
