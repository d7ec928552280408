package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"
)

func generateKeyPEMs(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privatePEM, publicPEM
}

func TestGenerateTokenPair_RoundTrip(t *testing.T) {
	privatePEM, publicPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(privatePEM, publicPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	pair, err := svc.GenerateTokenPair(Subject{UserID: 42, OnboardingCompleted: true})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != 42 || access.TokenType != TokenTypeAccess || !access.OnboardingCompleted {
		t.Fatalf("unexpected access claims %+v", access)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.TokenType != TokenTypeRefresh || refresh.ID == "" {
		t.Fatalf("refresh token should carry jti, got %+v", refresh)
	}
}

func TestValidateToken_RejectsForeignKey(t *testing.T) {
	privA, pubA := generateKeyPEMs(t)
	privB, pubB := generateKeyPEMs(t)

	signer, err := NewAuthService(privA, pubA, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := NewAuthService(privB, pubB, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	pair, err := signer.GenerateTokenPair(Subject{UserID: 1})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if _, err := verifier.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected verification with another key to fail")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	privatePEM, publicPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(privatePEM, publicPEM, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	pair, err := svc.GenerateTokenPair(Subject{UserID: 7})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("correct horse battery", hash) {
		t.Fatal("expected password to match")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatal("expected mismatch")
	}
}

func TestNewVerificationToken(t *testing.T) {
	a, err := NewVerificationToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	b, err := NewVerificationToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}

func TestValidateToken_Empty(t *testing.T) {
	privatePEM, publicPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(privatePEM, publicPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	if _, err := svc.ValidateToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if CheckPasswordHash("anything", "") {
		t.Fatal("empty hash must not match")
	}
}
