package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testTokenConfig(secret string, clock func() time.Time) TokenConfig {
	return TokenConfig{
		SigningSecret: []byte(secret),
		Issuer:        "mealmatch-identity",
		Audience:      "mealmatch-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	clock := func() time.Time { return time.Unix(1750000000, 0).UTC() }
	issuer := NewTokenIssuer(testTokenConfig("secret", clock))
	verifier := NewTokenVerifier(testTokenConfig("secret", clock))

	token, expiresIn, err := issuer.Issue("user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}

	claims, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Email != "user-1@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	clock := func() time.Time { return time.Unix(1750000000, 0).UTC() }
	issuer := NewTokenIssuer(testTokenConfig("secret", clock))
	verifier := NewTokenVerifier(testTokenConfig("other-secret", clock))

	token, _, err := issuer.Issue("user-1", "")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Unix(1750000000, 0).UTC()
	issuer := NewTokenIssuer(testTokenConfig("secret", func() time.Time { return issuedAt }))
	verifier := NewTokenVerifier(testTokenConfig("secret", func() time.Time { return issuedAt.Add(2 * time.Hour) }))

	token, _, err := issuer.Issue("user-1", "")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for an expired token, got %v", err)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	clock := func() time.Time { return time.Unix(1750000000, 0).UTC() }
	issuerCfg := testTokenConfig("secret", clock)
	issuerCfg.Audience = "another-service"
	issuer := NewTokenIssuer(issuerCfg)
	verifier := NewTokenVerifier(testTokenConfig("secret", clock))

	token, _, err := issuer.Issue("user-1", "")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for a foreign audience, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	verifier := NewTokenVerifier(testTokenConfig("secret", nil))
	if _, err := verifier.Verify(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer := NewTokenIssuer(testTokenConfig("secret", nil))
	if _, _, err := issuer.Issue("", ""); err == nil {
		t.Fatalf("expected error for a missing subject")
	}
}
