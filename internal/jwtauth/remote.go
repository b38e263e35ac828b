package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// NewRemoteKeyfunc returns a jwt.Keyfunc backed by an auto-refreshing JWKS
// fetched from jwksURI. Tokens signed with an algorithm outside allowedAlgs
// are rejected before any key lookup.
func NewRemoteKeyfunc(ctx context.Context, jwksURI string, allowedAlgs []string) (jwt.Keyfunc, error) {
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if len(allowedAlgs) == 0 {
		return nil, errors.New("at least one allowed algorithm required")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); !slices.Contains(allowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}, nil
}

// DiscoverJWKS performs OIDC discovery against issuer and returns the
// advertised jwks_uri.
func DiscoverJWKS(ctx context.Context, issuer string) (string, error) {
	if issuer == "" {
		return "", errors.New("issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", errors.New("discovery incomplete: missing jwks_uri")
	}
	return meta.JwksURI, nil
}
