// Package jwtauth holds the JWT mechanics behind the public auth package:
// claim construction, signing and the ordered verification pipeline.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config controls validation behavior for credentials.
type Config struct {
	Issuer      string
	AllowedAlgs []string
	Leeway      time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

var (
	// ErrMalformed indicates the token could not be decoded or is missing
	// required claims.
	ErrMalformed = errors.New("jwtauth: malformed token")

	// ErrExpired indicates the embedded expiry has passed.
	ErrExpired = errors.New("jwtauth: token expired")

	// ErrSignature indicates the signature did not verify against any known key.
	ErrSignature = errors.New("jwtauth: invalid signature")
)

// Mint signs a credential for subject. kid is written to the header when set.
func Mint(method jwt.SigningMethod, key any, kid, issuer, subject string, now time.Time, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("jwtauth: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("jwtauth: ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwtauth: sign: %w", err)
	}
	return s, nil
}

// Verify checks tok and returns its subject. Checks run in a fixed order:
// decoding, embedded expiry, signature, then issuer and subject. The expiry
// check deliberately precedes the signature check so that an expired
// credential reports ErrExpired whatever its signature.
func Verify(cfg *Config, tok string, keyfunc jwt.Keyfunc) (string, error) {
	if tok == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformed)
	}
	now := cfg.now()

	var unverified jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &unverified); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if unverified.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	if !now.Before(unverified.ExpiresAt.Add(cfg.Leeway)) {
		return "", ErrExpired
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var claims jwt.RegisteredClaims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tok, &claims, keyfunc); err != nil {
		return "", classify(err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing sub", ErrMalformed)
	}
	return claims.Subject, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
