package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestTokenExpiry(t *testing.T) {
	want := time.Now().Add(time.Hour).Truncate(time.Second)

	got, ok := tokenExpiry(signedToken(t, want))
	if !ok {
		t.Fatal("tokenExpiry() failed on a valid token")
	}
	if !got.Equal(want) {
		t.Errorf("tokenExpiry() = %v, want %v", got, want)
	}
}

func TestTokenExpiryMalformed(t *testing.T) {
	if _, ok := tokenExpiry("not-a-jwt"); ok {
		t.Error("tokenExpiry() accepted a malformed token")
	}
}

func TestTokenExpiryMissingClaim(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, ok := tokenExpiry(signed); ok {
		t.Error("tokenExpiry() accepted a token without exp")
	}
}
