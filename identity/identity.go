// Package identity defines the durable user record that an authenticated
// request resolves to, the lookup contracts the gateway calls into, and the
// helpers that carry the resolved principal through a request context.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Identity is a registered user. ExternalID is the numeric id assigned by the
// upstream identity provider and doubles as the credential subject.
type Identity struct {
	ID              int64  `json:"id"`
	ExternalID      int64  `json:"external_id"`
	Mail            string `json:"mail"`
	Login           string `json:"login"`
	ProfileImageURL string `json:"profile_image_url"`
	Tier            Tier   `json:"tier"`
}

// Subject returns the credential subject for the identity.
func (i *Identity) Subject() string {
	return strconv.FormatInt(i.ExternalID, 10)
}

// ParseSubject converts a credential subject back into an external id.
func ParseSubject(sub string) (int64, error) {
	if sub == "" {
		return 0, fmt.Errorf("%w: empty subject", ErrInvalidSubject)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a positive decimal id", ErrInvalidSubject, sub)
	}
	return id, nil
}

var (
	// ErrNotFound is returned by Resolver and TierLookup implementations when
	// no record exists for the requested key.
	ErrNotFound = errors.New("identity: not found")

	// ErrIdentityNotFound is the gate-level failure reported when a verified
	// credential names an identity the store does not know.
	ErrIdentityNotFound = errors.New("identity: no identity for credential subject")

	// ErrUpstreamUnavailable reports a storage or provider I/O failure. The
	// underlying cause is logged by the caller, never exposed to clients.
	ErrUpstreamUnavailable = errors.New("identity: upstream unavailable")

	// ErrInvalidSubject reports a credential subject that is not an external id.
	ErrInvalidSubject = errors.New("identity: invalid subject")
)

// Resolver maps an external provider id to a registered identity.
type Resolver interface {
	FindByExternalID(ctx context.Context, externalID int64) (*Identity, error)
}

// TierSetter changes the tier of a registered identity.
type TierSetter interface {
	SetTier(ctx context.Context, externalID int64, t Tier) error
}

// TierLookup reports the minimum tier required to act on a resource.
type TierLookup interface {
	FindResourceTier(ctx context.Context, resourceID string) (Tier, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, externalID int64) (*Identity, error)

func (f ResolverFunc) FindByExternalID(ctx context.Context, externalID int64) (*Identity, error) {
	return f(ctx, externalID)
}

// TierLookupFunc adapts a function to the TierLookup interface.
type TierLookupFunc func(ctx context.Context, resourceID string) (Tier, error)

func (f TierLookupFunc) FindResourceTier(ctx context.Context, resourceID string) (Tier, error) {
	return f(ctx, resourceID)
}
