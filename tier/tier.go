// Package tier decides whether an identity may act on a tiered resource.
//
// Tiers are totally ordered (see identity.Tier), so a decision is a rank
// comparison: an identity is allowed when its tier ranks at or above the
// resource's tier. Callers must obtain an Allowed decision before touching
// the resource; Guard enforces that ordering.
package tier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ggoodman/tiergate/identity"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Authorize compares a resource tier against an identity tier. It is total
// over every pair of values: invalid tiers on either side are Denied.
func Authorize(resourceTier, identityTier identity.Tier) Decision {
	if identityTier.AtLeast(resourceTier) {
		return Allowed
	}
	return Denied
}

var (
	// ErrAuthorizationDenied is wrapped by every denial.
	ErrAuthorizationDenied = errors.New("tier: authorization denied")

	// ErrResourceNotFound reports a resource with no recorded tier.
	ErrResourceNotFound = errors.New("tier: resource not found")
)

// Authorization error codes.
const (
	ErrCodeDenied    = "tier.denied"
	ErrCodeAnonymous = "tier.anonymous"
)

var httpStatusMap = map[string]int{
	ErrCodeDenied:    http.StatusForbidden,
	ErrCodeAnonymous: http.StatusUnauthorized,
}

// AuthorizationError describes a denial.
type AuthorizationError struct {
	Code         string
	Message      string
	Status       int
	ResourceID   string
	ResourceTier identity.Tier
	IdentityTier identity.Tier
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code suggested for this denial.
func (e *AuthorizationError) HTTPStatus() int {
	return e.Status
}

func (e *AuthorizationError) Unwrap() error {
	return ErrAuthorizationDenied
}

func deny(code, resourceID string, resourceTier, identityTier identity.Tier, msg string) *AuthorizationError {
	return &AuthorizationError{
		Code:         code,
		Message:      msg,
		Status:       httpStatusMap[code],
		ResourceID:   resourceID,
		ResourceTier: resourceTier,
		IdentityTier: identityTier,
	}
}

// Require authorizes ident against a resource tier the caller already holds.
// A nil identity is always denied.
func Require(resourceTier identity.Tier, ident *identity.Identity) error {
	return require("", resourceTier, ident)
}

func require(resourceID string, resourceTier identity.Tier, ident *identity.Identity) error {
	if ident == nil {
		return deny(ErrCodeAnonymous, resourceID, resourceTier, identity.TierUnknown,
			fmt.Sprintf("%s tier requires an authenticated identity", resourceTier))
	}
	if Authorize(resourceTier, ident.Tier) == Denied {
		return deny(ErrCodeDenied, resourceID, resourceTier, ident.Tier,
			fmt.Sprintf("%s tier required, identity has %s", resourceTier, ident.Tier))
	}
	return nil
}

// Option configures an Authority.
type Option func(*Authority)

// WithLogger sets the logger used to record decisions.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		if l != nil {
			a.log = l
		}
	}
}

// Authority resolves resource tiers and authorizes identities against them.
type Authority struct {
	lookup identity.TierLookup
	log    *slog.Logger
}

func NewAuthority(lookup identity.TierLookup, opts ...Option) *Authority {
	a := &Authority{
		lookup: lookup,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check looks up the tier of resourceID and authorizes ident against it.
// It returns nil, a *AuthorizationError, ErrResourceNotFound, or an error
// wrapping identity.ErrUpstreamUnavailable.
func (a *Authority) Check(ctx context.Context, resourceID string, ident *identity.Identity) error {
	resourceTier, err := a.lookup.FindResourceTier(ctx, resourceID)
	if errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}
	if err != nil {
		a.log.ErrorContext(ctx, "tier.lookup.fail", slog.String("resource", resourceID), slog.String("err", err.Error()))
		return identity.ErrUpstreamUnavailable
	}

	if err := require(resourceID, resourceTier, ident); err != nil {
		a.log.InfoContext(ctx, "tier.denied",
			slog.String("resource", resourceID),
			slog.String("resource_tier", resourceTier.String()),
			slog.String("code", err.(*AuthorizationError).Code),
		)
		return err
	}
	a.log.DebugContext(ctx, "tier.allowed", slog.String("resource", resourceID))
	return nil
}

// Guard runs fn only after ident is authorized for resourceID. When the
// check fails fn is never called and the check error is returned.
func (a *Authority) Guard(ctx context.Context, resourceID string, ident *identity.Identity, fn func(ctx context.Context) error) error {
	if err := a.Check(ctx, resourceID, ident); err != nil {
		return err
	}
	return fn(ctx)
}
