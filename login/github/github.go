// Package github is a login.Provider for GitHub OAuth apps.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ggoodman/tiergate/login"
	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"
)

const (
	providerName   = "github"
	defaultAPIBase = "https://api.github.com"
)

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the OAuth endpoint, for GitHub Enterprise or tests.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(p *Provider) { p.cfg.Endpoint = ep }
}

// WithAPIBaseURL overrides the REST API base URL.
func WithAPIBaseURL(base string) Option {
	return func(p *Provider) { p.apiBase = strings.TrimRight(base, "/") }
}

// Provider exchanges GitHub authorization codes for the user's profile.
type Provider struct {
	cfg     *oauth2.Config
	apiBase string
}

func New(clientID, clientSecret, redirectURL string, opts ...Option) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("github: client id, secret and redirect url are required")
	}
	p := &Provider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     githubendpoint.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: defaultAPIBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades code for a token and returns the /user document. When the
// profile hides the email, the primary verified address from /user/emails
// is filled in.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (map[string]any, error) {
	tok, err := p.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("github: token exchange: %w", err)
	}
	client := p.cfg.Client(ctx, tok)

	attrs := map[string]any{}
	if err := p.getJSON(ctx, client, "/user", &attrs); err != nil {
		return nil, err
	}

	if email, _ := attrs[login.AttrEmail].(string); email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				attrs[login.AttrEmail] = e.Email
				break
			}
		}
	}
	return attrs, nil
}

func (p *Provider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github: GET %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("github: GET %s: unexpected status %d", path, res.StatusCode)
	}
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("github: decode %s: %w", path, err)
	}
	return nil
}

var _ login.Provider = (*Provider)(nil)
