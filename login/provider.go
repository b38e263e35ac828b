package login

import (
	"context"
	"fmt"
	"sort"
)

// Provider performs the OAuth handshake with one identity provider. It
// returns the provider's raw profile attributes and makes no identity
// decisions of its own.
type Provider interface {
	// Name is the path segment the provider is mounted under.
	Name() string

	// AuthCodeURL returns the authorization URL for state, carrying the
	// S256 challenge derived from verifier.
	AuthCodeURL(state, verifier string) string

	// Exchange trades code for the user's profile attributes.
	Exchange(ctx context.Context, code, verifier string) (map[string]any, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers providers by name. A later provider replaces an
// earlier one with the same name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered providers.
func (r *Registry) Len() int { return len(r.providers) }
