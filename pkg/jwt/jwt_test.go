package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		expiration time.Duration
		secret     string
	}{
		{name: "default expiration", username: "admin", expiration: time.Hour, secret: "test-secret-key-32-characters!"},
		{name: "short expiration", username: "editor", expiration: time.Second, secret: "test-secret"},
		{name: "long expiration", username: "admin", expiration: 24 * time.Hour, secret: "test-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.username, tt.expiration, tt.secret)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			if token == "" {
				t.Fatal("GenerateToken() returned empty token")
			}

			claims, err := ValidateToken(token, tt.secret)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.Username != tt.username || claims.Subject != tt.username {
				t.Errorf("claims = %+v, want username %q", claims, tt.username)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	secret := "validation-secret-key-32-chars"

	access, _ := GenerateToken("admin", time.Hour, secret)
	expired, _ := GenerateToken("admin", -time.Hour, secret)
	refresh, _ := GenerateRefreshToken("admin", time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{name: "valid token", token: access, secret: secret},
		{name: "expired token", token: expired, secret: secret, wantErr: true},
		{name: "wrong secret", token: access, secret: "wrong-secret", wantErr: true},
		{name: "invalid format", token: "invalid.token.format", secret: secret, wantErr: true},
		{name: "empty token", token: "", secret: secret, wantErr: true},
		{name: "refresh token used as access", token: refresh, secret: secret, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)
			if tt.wantErr {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.TokenType != TypeAccess {
				t.Errorf("TokenType = %q, want %q", claims.TokenType, TypeAccess)
			}
		})
	}
}

func TestValidateRefreshToken(t *testing.T) {
	secret := "refresh-secret-key"

	refresh, err := GenerateRefreshToken("admin", 7*24*time.Hour, secret)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	claims, err := ValidateRefreshToken(refresh, secret)
	if err != nil {
		t.Fatalf("ValidateRefreshToken() error = %v", err)
	}
	if claims.TokenType != TypeRefresh {
		t.Errorf("TokenType = %q, want %q", claims.TokenType, TypeRefresh)
	}

	access, _ := GenerateToken("admin", time.Hour, secret)
	if _, err := ValidateRefreshToken(access, secret); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("ValidateRefreshToken(access) error = %v, want ErrWrongTokenType", err)
	}
}

func TestClaimsTimestamps(t *testing.T) {
	secret := "timestamp-test-secret"
	expiration := time.Hour

	before := time.Now().Add(-time.Second)
	token, err := GenerateToken("admin", expiration, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(time.Second)

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if iat := claims.IssuedAt.Time; iat.Before(before) || iat.After(after) {
		t.Errorf("IssuedAt = %v, want within [%v, %v]", iat, before, after)
	}
	if nbf := claims.NotBefore.Time; nbf.Before(before) || nbf.After(after) {
		t.Errorf("NotBefore = %v, want within [%v, %v]", nbf, before, after)
	}
	if exp := claims.ExpiresAt.Time; exp.Before(before.Add(expiration)) || exp.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt = %v out of range", exp)
	}
	if claims.ID == "" {
		t.Error("token id is empty")
	}
}

func BenchmarkValidateToken(b *testing.B) {
	secret := "benchmark-secret-key"
	token, _ := GenerateToken("admin", 15*time.Minute, secret)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, secret); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
