// Package oidcprovider is a login.Provider for any OpenID Connect issuer
// whose subject identifiers are numeric.
package oidcprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/ggoodman/tiergate/login"
	"golang.org/x/oauth2"
)

const defaultName = "oidc"

// Config holds the client registration for an issuer.
type Config struct {
	// Name is the path segment the provider is mounted under. Defaults to
	// "oidc".
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Provider runs the authorization code flow against an OIDC issuer and maps
// the verified ID token claims to login attributes.
type Provider struct {
	name     string
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// New discovers the issuer and returns a Provider for it.
func New(ctx context.Context, c Config) (*Provider, error) {
	if c.Issuer == "" || c.ClientID == "" || c.RedirectURL == "" {
		return nil, errors.New("oidcprovider: issuer, client id and redirect url are required")
	}
	op, err := oidc.NewProvider(ctx, c.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidcprovider: discover %s: %w", c.Issuer, err)
	}
	name := c.Name
	if name == "" {
		name = defaultName
	}
	return &Provider{
		name: name,
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: op.Verifier(&oidc.Config{ClientID: c.ClientID}),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades code for tokens, verifies the ID token and maps sub,
// email, preferred_username and picture onto the login attribute names.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (map[string]any, error) {
	tok, err := p.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("oidcprovider: token exchange: %w", err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidcprovider: token response has no id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidcprovider: verify id_token: %w", err)
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Picture           string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidcprovider: decode claims: %w", err)
	}

	return map[string]any{
		login.AttrID:        idToken.Subject,
		login.AttrEmail:     claims.Email,
		login.AttrLogin:     claims.PreferredUsername,
		login.AttrAvatarURL: claims.Picture,
	}, nil
}

var _ login.Provider = (*Provider)(nil)
