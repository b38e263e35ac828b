// Package storage provides the small key/value contract used to cache
// identity and resource-tier lookups in front of the durable identity store.
//
// Entries are partitioned by namespace so that identity records and
// resource tiers never collide, and every entry may carry a TTL. A cache is
// never authoritative: callers must treat a miss or a backend error as a
// reason to consult the backing store.
package storage

import (
	"context"
	"time"
)

// Storage defines the primary interface for namespaced cache storage
type Storage interface {
	// Get retrieves data for a specific key within the given namespace.
	// Returns nil Item if key doesn't exist or has expired.
	// Returns error only for legitimate storage system failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data for a specific key within the given namespace
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the given namespace.
	// If no key specified via WithKey, removes the entire namespace.
	Delete(ctx context.Context, opts ...Option) error

	// Close closes the storage backend and releases resources
	Close() error
}

// Item represents a stored piece of data with metadata
type Item struct {
	Data      []byte     // The stored data
	CreatedAt time.Time  // When the item was created
	ExpiresAt *time.Time // When the item expires (nil = no expiration)
}

// IsExpired checks if the item has expired
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures storage operations
type Option func(*Options)

// Options contains configuration for storage operations
type Options struct {
	Namespace Namespace      // Optional: storage namespace (nil = global)
	Key       *string        // Optional: specific key (for Delete operations)
	TTL       *time.Duration // Optional: time-to-live for the data
}

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Namespace partitions cached entries. Only the types in this package
// implement it.
type Namespace interface {
	prefix() string
}

// IdentityNamespace holds identity records keyed by external provider id.
type IdentityNamespace struct{}

func (IdentityNamespace) prefix() string { return "identity:" }

// ResourceTierNamespace holds resource tiers keyed by resource id.
type ResourceTierNamespace struct{}

func (ResourceTierNamespace) prefix() string { return "resource-tier:" }

// NamespacePrefix returns the key prefix used for ns; nil maps to the
// global namespace.
func NamespacePrefix(ns Namespace) string {
	if ns == nil {
		return "global:"
	}
	return ns.prefix()
}

// BuildKey joins a namespace prefix and a key.
func BuildKey(ns Namespace, key string) string {
	return NamespacePrefix(ns) + key
}

// WithIdentities targets the identity namespace.
func WithIdentities() Option {
	return func(opts *Options) {
		opts.Namespace = IdentityNamespace{}
	}
}

// WithResourceTiers targets the resource-tier namespace.
func WithResourceTiers() Option {
	return func(opts *Options) {
		opts.Namespace = ResourceTierNamespace{}
	}
}

// WithKey specifies a specific key for Delete operations.
// If not provided, Delete removes the entire namespace.
func WithKey(key string) Option {
	return func(opts *Options) {
		opts.Key = &key
	}
}

// WithTTL sets a time-to-live for the stored data
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}
