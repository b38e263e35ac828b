package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/ggoodman/tiergate/storage"
)

// CacheOption configures the caching decorators.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	log *slog.Logger
}

// WithCacheLogger sets the logger used to report cache backend failures.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *cacheConfig) {
		if l != nil {
			c.log = l
		}
	}
}

func applyCacheOptions(opts []CacheOption) cacheConfig {
	c := cacheConfig{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// CachingResolver caches positive identity lookups in a storage.Storage.
// The cache is never authoritative: a miss, a corrupt entry or a backend
// error falls through to the wrapped resolver.
type CachingResolver struct {
	inner Resolver
	store storage.Storage
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachingResolver wraps inner with a cache held in store. A ttl of zero
// keeps entries until evicted by the backend.
func NewCachingResolver(inner Resolver, store storage.Storage, ttl time.Duration, opts ...CacheOption) *CachingResolver {
	cfg := applyCacheOptions(opts)
	return &CachingResolver{inner: inner, store: store, ttl: ttl, log: cfg.log}
}

func (c *CachingResolver) FindByExternalID(ctx context.Context, externalID int64) (*Identity, error) {
	key := strconv.FormatInt(externalID, 10)

	item, err := c.store.Get(ctx, key, storage.WithIdentities())
	if err != nil {
		c.log.WarnContext(ctx, "identity.cache.get.fail", slog.String("err", err.Error()))
	} else if item != nil {
		var id Identity
		if err := json.Unmarshal(item.Data, &id); err == nil && id.ExternalID == externalID {
			return &id, nil
		}
		c.log.WarnContext(ctx, "identity.cache.corrupt", slog.String("key", key))
	}

	id, err := c.inner.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(id)
	if err != nil {
		c.log.WarnContext(ctx, "identity.cache.encode.fail", slog.String("err", err.Error()))
		return id, nil
	}
	if err := c.store.Set(ctx, key, data, entryOptions(storage.WithIdentities(), c.ttl)...); err != nil {
		c.log.WarnContext(ctx, "identity.cache.set.fail", slog.String("err", err.Error()))
	}
	return id, nil
}

// Invalidate drops the cached entry for externalID, e.g. after a tier change.
func (c *CachingResolver) Invalidate(ctx context.Context, externalID int64) error {
	return c.store.Delete(ctx, storage.WithIdentities(), storage.WithKey(strconv.FormatInt(externalID, 10)))
}

// SetTier changes the tier through the wrapped resolver and drops the cached
// entry so the next lookup sees the new tier. The wrapped resolver must
// implement TierSetter.
func (c *CachingResolver) SetTier(ctx context.Context, externalID int64, t Tier) error {
	ts, ok := c.inner.(TierSetter)
	if !ok {
		return errors.New("identity: wrapped resolver cannot change tiers")
	}
	if err := ts.SetTier(ctx, externalID, t); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, externalID); err != nil {
		c.log.WarnContext(ctx, "identity.cache.invalidate.fail", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func entryOptions(ns storage.Option, ttl time.Duration) []storage.Option {
	opts := []storage.Option{ns}
	if ttl > 0 {
		opts = append(opts, storage.WithTTL(ttl))
	}
	return opts
}

// CachingTierLookup caches resource tiers in a storage.Storage with the same
// fall-through rules as CachingResolver.
type CachingTierLookup struct {
	inner TierLookup
	store storage.Storage
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachingTierLookup wraps inner with a cache held in store.
func NewCachingTierLookup(inner TierLookup, store storage.Storage, ttl time.Duration, opts ...CacheOption) *CachingTierLookup {
	cfg := applyCacheOptions(opts)
	return &CachingTierLookup{inner: inner, store: store, ttl: ttl, log: cfg.log}
}

func (c *CachingTierLookup) FindResourceTier(ctx context.Context, resourceID string) (Tier, error) {
	item, err := c.store.Get(ctx, resourceID, storage.WithResourceTiers())
	if err != nil {
		c.log.WarnContext(ctx, "identity.tiercache.get.fail", slog.String("err", err.Error()))
	} else if item != nil {
		var t Tier
		if err := t.UnmarshalText(item.Data); err == nil {
			return t, nil
		}
		c.log.WarnContext(ctx, "identity.tiercache.corrupt", slog.String("key", resourceID))
	}

	t, err := c.inner.FindResourceTier(ctx, resourceID)
	if err != nil {
		return TierUnknown, err
	}

	if b, err := t.MarshalText(); err == nil {
		if err := c.store.Set(ctx, resourceID, b, entryOptions(storage.WithResourceTiers(), c.ttl)...); err != nil {
			c.log.WarnContext(ctx, "identity.tiercache.set.fail", slog.String("err", err.Error()))
		}
	}
	return t, nil
}

var (
	_ Resolver   = (*CachingResolver)(nil)
	_ TierSetter = (*CachingResolver)(nil)
	_ TierLookup = (*CachingTierLookup)(nil)
)
