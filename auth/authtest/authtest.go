// Package authtest provides fixtures for tests and local development: a
// fixed-secret credential codec and an in-memory identity directory.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/identity"
)

// Secret is the fixed HS256 secret used by NewCodec.
var Secret = []byte("authtest-fixed-hs256-secret-0123456789")

// NewCodec returns an HS256 codec keyed with Secret. It panics on error since
// the secret is known to be valid.
func NewCodec(opts ...auth.Option) *auth.JWTCodec {
	c, err := auth.NewHS256Codec(Secret, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// MustMint mints a credential for id with c, panicking on failure.
func MustMint(c auth.Minter, id *identity.Identity, now time.Time) string {
	tok, err := c.Mint(id.Subject(), now)
	if err != nil {
		panic(err)
	}
	return tok
}

// Directory is an in-memory identity.Resolver and identity.TierLookup.
// Set Err to make every lookup fail with that error.
type Directory struct {
	mu         sync.RWMutex
	identities map[int64]*identity.Identity
	resources  map[string]identity.Tier
	Err        error
}

// NewDirectory returns a Directory pre-populated with ids.
func NewDirectory(ids ...*identity.Identity) *Directory {
	d := &Directory{
		identities: make(map[int64]*identity.Identity),
		resources:  make(map[string]identity.Tier),
	}
	for _, id := range ids {
		d.Add(id)
	}
	return d
}

// Add registers id under its external id.
func (d *Directory) Add(id *identity.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *id
	d.identities[id.ExternalID] = &cp
}

// PutResource records the tier required for resourceID.
func (d *Directory) PutResource(resourceID string, t identity.Tier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources[resourceID] = t
}

func (d *Directory) FindByExternalID(ctx context.Context, externalID int64) (*identity.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return nil, d.Err
	}
	id, ok := d.identities[externalID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *id
	return &cp, nil
}

func (d *Directory) FindResourceTier(ctx context.Context, resourceID string) (identity.Tier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return identity.TierUnknown, d.Err
	}
	t, ok := d.resources[resourceID]
	if !ok {
		return identity.TierUnknown, identity.ErrNotFound
	}
	return t, nil
}

var (
	_ identity.Resolver   = (*Directory)(nil)
	_ identity.TierLookup = (*Directory)(nil)
)
