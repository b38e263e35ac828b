package auth

import (
	"errors"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrMalformedCredential indicates the credential could not be decoded or
	// lacks a required claim.
	ErrMalformedCredential = errors.New("auth: malformed credential")

	// ErrInvalidSignature indicates the credential signature did not verify.
	ErrInvalidSignature = errors.New("auth: invalid signature")

	// ErrExpired indicates the credential's embedded expiry has passed.
	ErrExpired = errors.New("auth: credential expired")
)

// Minter issues credentials.
type Minter interface {
	Mint(subject string, now time.Time) (string, error)
}

// Verifier checks credentials and returns the embedded subject. Failures
// wrap exactly one of ErrMalformedCredential, ErrInvalidSignature or
// ErrExpired.
type Verifier interface {
	Verify(raw string) (string, error)
}

// Codec both issues and verifies credentials.
type Codec interface {
	Minter
	Verifier
}

const (
	// DefaultTTL is the credential lifetime used when WithTTL is not given.
	DefaultTTL = 24 * time.Hour

	// DefaultIssuer is the iss claim used when WithIssuer is not given.
	DefaultIssuer = "tiergate"
)

// Option configures a Codec or remote Verifier.
type Option func(*options)

type options struct {
	ttl         time.Duration
	issuer      string
	leeway      time.Duration
	now         func() time.Time
	allowedAlgs []string
	log         *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		ttl:    DefaultTTL,
		issuer: DefaultIssuer,
		now:    time.Now,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTTL sets the lifetime of minted credentials.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithIssuer sets the iss claim written on mint and required on verify.
func WithIssuer(iss string) Option {
	return func(o *options) {
		if iss != "" {
			o.issuer = iss
		}
	}
}

// WithLeeway sets clock skew tolerance for exp and iat.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

// WithClock overrides the time source used during verification.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAllowedAlgs restricts the JWS algorithms a remote Verifier accepts.
// Defaults to ["EdDSA"]. "none" is never accepted.
func WithAllowedAlgs(algs ...string) Option {
	return func(o *options) { o.allowedAlgs = append([]string(nil), algs...) }
}

// WithLogger sets the logger used for verification diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
