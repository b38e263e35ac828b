package tier_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ggoodman/tiergate/auth/authtest"
	"github.com/ggoodman/tiergate/identity"
	"github.com/ggoodman/tiergate/tier"
)

func TestAuthorize(t *testing.T) {
	cases := []struct {
		resource, ident identity.Tier
		want            tier.Decision
	}{
		{identity.TierPremium, identity.TierFree, tier.Denied},
		{identity.TierPremium, identity.TierPremium, tier.Allowed},
		{identity.TierPremium, identity.TierElite, tier.Allowed},
		{identity.TierFree, identity.TierFree, tier.Allowed},
		{identity.TierElite, identity.TierPremium, tier.Denied},
		{identity.TierFree, identity.TierUnknown, tier.Denied},
		{identity.TierUnknown, identity.TierElite, tier.Denied},
		{identity.Tier(42), identity.TierElite, tier.Denied},
	}
	for _, tc := range cases {
		if got := tier.Authorize(tc.resource, tc.ident); got != tc.want {
			t.Fatalf("Authorize(%s, %s) = %s, want %s", tc.resource, tc.ident, got, tc.want)
		}
	}
}

func TestAuthorizeIsTotal(t *testing.T) {
	// Every pair of values yields a decision consistent with rank order.
	for r := identity.Tier(0); r < 6; r++ {
		for i := identity.Tier(0); i < 6; i++ {
			got := tier.Authorize(r, i)
			want := tier.Denied
			if r.Valid() && i.Valid() && i >= r {
				want = tier.Allowed
			}
			if got != want {
				t.Fatalf("Authorize(%d, %d) = %s, want %s", r, i, got, want)
			}
		}
	}
}

func TestRequire(t *testing.T) {
	err := tier.Require(identity.TierPremium, &identity.Identity{Tier: identity.TierFree})
	if !errors.Is(err, tier.ErrAuthorizationDenied) {
		t.Fatalf("want ErrAuthorizationDenied, got %v", err)
	}
	var aerr *tier.AuthorizationError
	if !errors.As(err, &aerr) || aerr.HTTPStatus() != http.StatusForbidden || aerr.Code != tier.ErrCodeDenied {
		t.Fatalf("unexpected error detail: %#v", err)
	}

	err = tier.Require(identity.TierFree, nil)
	if !errors.As(err, &aerr) || aerr.Code != tier.ErrCodeAnonymous {
		t.Fatalf("nil identity: got %v", err)
	}

	if err := tier.Require(identity.TierPremium, &identity.Identity{Tier: identity.TierElite}); err != nil {
		t.Fatalf("elite on premium: %v", err)
	}
}

func newAuthority() (*tier.Authority, *authtest.Directory) {
	dir := authtest.NewDirectory()
	dir.PutResource("post-free", identity.TierFree)
	dir.PutResource("post-premium", identity.TierPremium)
	return tier.NewAuthority(dir), dir
}

func TestAuthorityCheck(t *testing.T) {
	a, _ := newAuthority()
	ctx := context.Background()
	free := &identity.Identity{ExternalID: 1, Tier: identity.TierFree}
	premium := &identity.Identity{ExternalID: 2, Tier: identity.TierPremium}

	if err := a.Check(ctx, "post-premium", free); !errors.Is(err, tier.ErrAuthorizationDenied) {
		t.Fatalf("free on premium: want denied, got %v", err)
	}
	if err := a.Check(ctx, "post-premium", premium); err != nil {
		t.Fatalf("premium on premium: %v", err)
	}
	if err := a.Check(ctx, "post-free", nil); !errors.Is(err, tier.ErrAuthorizationDenied) {
		t.Fatalf("anonymous: want denied, got %v", err)
	}
	if err := a.Check(ctx, "missing", premium); !errors.Is(err, tier.ErrResourceNotFound) {
		t.Fatalf("missing resource: want ErrResourceNotFound, got %v", err)
	}
}

func TestAuthorityCheckUpstreamFailure(t *testing.T) {
	a, dir := newAuthority()
	dir.Err = errors.New("connection refused: 10.0.0.5:5432")

	err := a.Check(context.Background(), "post-free", &identity.Identity{Tier: identity.TierElite})
	if !errors.Is(err, identity.ErrUpstreamUnavailable) {
		t.Fatalf("want ErrUpstreamUnavailable, got %v", err)
	}
	if err.Error() != identity.ErrUpstreamUnavailable.Error() {
		t.Fatalf("storage detail leaked: %v", err)
	}
}

func TestGuardDoesNotRunOnDenial(t *testing.T) {
	a, _ := newAuthority()
	ran := false
	err := a.Guard(context.Background(), "post-premium", &identity.Identity{Tier: identity.TierFree}, func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, tier.ErrAuthorizationDenied) {
		t.Fatalf("want denied, got %v", err)
	}
	if ran {
		t.Fatal("guarded function must not run when denied")
	}
}

func TestGuardRunsOnAllow(t *testing.T) {
	a, _ := newAuthority()
	wantErr := errors.New("downstream")
	err := a.Guard(context.Background(), "post-premium", &identity.Identity{Tier: identity.TierElite}, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("guard should return fn error, got %v", err)
	}
}
