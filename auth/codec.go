package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/tiergate/internal/jwtauth"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the minimum HMAC secret length accepted by NewHS256Codec.
const MinSecretLen = 32

// JWTCodec mints and verifies JWT credentials with a process-wide key. It is
// safe for concurrent use.
type JWTCodec struct {
	method     jwt.SigningMethod
	signingKey func() (kid string, key any, err error)
	keyfunc    jwt.Keyfunc
	cfg        jwtauth.Config
	ttl        time.Duration
	log        *slog.Logger
}

// NewHS256Codec returns a codec signing with an HMAC-SHA256 secret.
func NewHS256Codec(secret []byte, opts ...Option) (*JWTCodec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("auth: hs256 secret must be at least %d bytes", MinSecretLen)
	}
	key := append([]byte(nil), secret...)
	o := newOptions(opts)
	return &JWTCodec{
		method: jwt.SigningMethodHS256,
		signingKey: func() (string, any, error) {
			return "", key, nil
		},
		keyfunc: func(*jwt.Token) (any, error) { return key, nil },
		cfg:     o.config([]string{jwt.SigningMethodHS256.Alg()}),
		ttl:     o.ttl,
		log:     o.log,
	}, nil
}

// NewEdDSACodec returns a codec signing with the active key of keys. Any key
// in the set verifies, selected by the kid header.
func NewEdDSACodec(keys *KeySet, opts ...Option) (*JWTCodec, error) {
	if keys == nil {
		return nil, errors.New("auth: key set is required")
	}
	if keys.ActiveKID() == "" {
		return nil, errors.New("auth: key set has no active key")
	}
	o := newOptions(opts)
	return &JWTCodec{
		method: jwt.SigningMethodEdDSA,
		signingKey: func() (string, any, error) {
			kid, priv, err := keys.signingKey()
			return kid, priv, err
		},
		keyfunc: func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			pub, ok := keys.publicKey(kid)
			if !ok {
				return nil, fmt.Errorf("unknown kid: %q", kid)
			}
			return pub, nil
		},
		cfg: o.config([]string{jwt.SigningMethodEdDSA.Alg()}),
		ttl: o.ttl,
		log: o.log,
	}, nil
}

// Mint issues a credential for subject, valid from now for the configured TTL.
func (c *JWTCodec) Mint(subject string, now time.Time) (string, error) {
	kid, key, err := c.signingKey()
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	tok, err := jwtauth.Mint(c.method, key, kid, c.cfg.Issuer, subject, now, c.ttl)
	if err != nil {
		return "", fmt.Errorf("auth: mint: %w", err)
	}
	return tok, nil
}

// Verify checks raw and returns its subject.
func (c *JWTCodec) Verify(raw string) (string, error) {
	sub, err := jwtauth.Verify(&c.cfg, raw, c.keyfunc)
	if err != nil {
		err = translate(err)
		c.log.Debug("auth.verify.fail", slog.String("err", err.Error()))
		return "", err
	}
	return sub, nil
}

// TTL reports the lifetime of minted credentials.
func (c *JWTCodec) TTL() time.Duration { return c.ttl }

// Issuer reports the iss claim of minted credentials.
func (c *JWTCodec) Issuer() string { return c.cfg.Issuer }

// RemoteVerifier verifies credentials against a JWKS published by another
// process. Keys are refreshed in the background.
type RemoteVerifier struct {
	keyfunc jwt.Keyfunc
	cfg     jwtauth.Config
	log     *slog.Logger
}

// NewRemoteVerifier fetches the JWKS at jwksURL and returns a Verifier that
// requires issuer on every credential. ctx bounds the background refresh.
func NewRemoteVerifier(ctx context.Context, jwksURL, issuer string, opts ...Option) (*RemoteVerifier, error) {
	o := newOptions(append([]Option{WithIssuer(issuer)}, opts...))
	algs := o.allowedAlgs
	if len(algs) == 0 {
		algs = []string{jwt.SigningMethodEdDSA.Alg()}
	}
	kf, err := jwtauth.NewRemoteKeyfunc(ctx, jwksURL, algs)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	o.log.InfoContext(ctx, "auth.jwks.ready", slog.String("jwks_url", jwksURL))
	return &RemoteVerifier{keyfunc: kf, cfg: o.config(algs), log: o.log}, nil
}

// NewDiscoveredVerifier locates the JWKS through OIDC discovery on issuer and
// then behaves like NewRemoteVerifier.
func NewDiscoveredVerifier(ctx context.Context, issuer string, opts ...Option) (*RemoteVerifier, error) {
	jwksURL, err := jwtauth.DiscoverJWKS(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return NewRemoteVerifier(ctx, jwksURL, issuer, opts...)
}

func (v *RemoteVerifier) Verify(raw string) (string, error) {
	sub, err := jwtauth.Verify(&v.cfg, raw, v.keyfunc)
	if err != nil {
		err = translate(err)
		v.log.Debug("auth.verify.fail", slog.String("err", err.Error()))
		return "", err
	}
	return sub, nil
}

func (o options) config(algs []string) jwtauth.Config {
	return jwtauth.Config{
		Issuer:      o.issuer,
		AllowedAlgs: algs,
		Leeway:      o.leeway,
		Now:         o.now,
	}
}

// translate maps internal verification errors onto the public taxonomy.
func translate(err error) error {
	switch {
	case errors.Is(err, jwtauth.ErrExpired):
		return ErrExpired
	case errors.Is(err, jwtauth.ErrSignature):
		return ErrInvalidSignature
	default:
		return ErrMalformedCredential
	}
}

var (
	_ Codec    = (*JWTCodec)(nil)
	_ Verifier = (*RemoteVerifier)(nil)
)
