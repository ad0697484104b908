package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidCredential indicates the presented bearer credential could not be verified.
	ErrInvalidCredential = errors.New("auth: invalid credential")

	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// IdentityClaims carries the verified identity of a caller.
type IdentityClaims struct {
	Subject string
	Email   string
}

type identityTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig configures identity token issuance and verification.
type TokenConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenVerifier validates bearer identity tokens presented by clients.
type TokenVerifier struct {
	config TokenConfig
	clock  func() time.Time
}

// NewTokenVerifier constructs a TokenVerifier with sane defaults.
func NewTokenVerifier(cfg TokenConfig) *TokenVerifier {
	return &TokenVerifier{config: cfg, clock: clockOrNow(cfg.Clock)}
}

// Verify ensures the credential is a well formed identity token and returns its claims.
func (v *TokenVerifier) Verify(_ context.Context, credential string) (IdentityClaims, error) {
	if len(v.config.SigningSecret) == 0 {
		return IdentityClaims{}, errMissingSigningSecret
	}

	claims := &identityTokenClaims{}
	_, err := jwt.ParseWithClaims(
		credential,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return v.config.SigningSecret, nil
		},
		jwt.WithAudience(v.config.Audience),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, errMissingSubjectClaim)
	}

	return IdentityClaims{Subject: claims.Subject, Email: claims.Email}, nil
}

// TokenIssuer mints identity tokens. Production traffic carries tokens from the
// external identity provider; the issuer exists for development and tests that
// need a verifiable credential.
type TokenIssuer struct {
	config TokenConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &TokenIssuer{config: cfg, clock: clockOrNow(cfg.Clock)}
}

// Issue produces a signed identity token for the subject and its expiry in seconds.
func (i *TokenIssuer) Issue(subject, email string) (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if subject == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.TokenTTL).UTC()

	claims := identityTokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.config.Issuer,
			Audience:  []string{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

func clockOrNow(clock func() time.Time) func() time.Time {
	if clock == nil {
		return time.Now
	}
	return clock
}
