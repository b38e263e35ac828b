package tiergate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/tiergate"
	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/auth/authtest"
	"github.com/ggoodman/tiergate/identity"
	"github.com/ggoodman/tiergate/login"
)

var (
	freeUser  = &identity.Identity{ID: 1, ExternalID: 1001, Mail: "f@example.com", Login: "free", Tier: identity.TierFree}
	eliteUser = &identity.Identity{ID: 2, ExternalID: 1002, Mail: "e@example.com", Login: "elite", Tier: identity.TierElite}
)

type staticProvider struct{ attrs map[string]any }

func (p staticProvider) Name() string { return "static" }
func (p staticProvider) AuthCodeURL(state, _ string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}
func (p staticProvider) Exchange(context.Context, string, string) (map[string]any, error) {
	return p.attrs, nil
}

func newServer(t *testing.T) (*tiergate.Server, *auth.JWTCodec, *auth.KeySet) {
	t.Helper()
	keys, err := auth.GenerateKeySet()
	if err != nil {
		t.Fatal(err)
	}
	codec, err := auth.NewEdDSACodec(keys, auth.WithIssuer("https://api.example.com"))
	if err != nil {
		t.Fatal(err)
	}
	dir := authtest.NewDirectory(freeUser, eliteUser)
	dir.PutResource("post-1", identity.TierPremium)

	s, err := tiergate.New(tiergate.Config{
		Verifier:    codec,
		Minter:      codec,
		Resolver:    dir,
		Tiers:       dir,
		Keys:        keys,
		PublicURL:   "https://api.example.com",
		Realm:       "tiergate",
		FrontendURL: "https://app.example.com",
		Providers: []login.Provider{staticProvider{attrs: map[string]any{
			"id": 1002, "email": "e@example.com", "login": "elite", "avatar_url": "https://img/e.png",
		}}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, codec, keys
}

func get(s http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	s, _, _ := newServer(t)
	rec := get(s, "/health", "garbage")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}
}

func TestMe(t *testing.T) {
	s, codec, _ := newServer(t)

	if rec := get(s, "/api/v1/me", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}

	rec := get(s, "/api/v1/me", authtest.MustMint(codec, eliteUser, time.Now()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got identity.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ExternalID != eliteUser.ExternalID || got.Tier != identity.TierElite {
		t.Fatalf("me = %+v", got)
	}

	rec = get(s, "/api/v1/me", authtest.MustMint(codec, eliteUser, time.Now().Add(-48*time.Hour)))
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`) {
		t.Fatalf("expired: %d %q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}
	if !strings.Contains(rec.Header().Get("WWW-Authenticate"), `resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`) {
		t.Fatalf("challenge lacks resource metadata: %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestResourceAccess(t *testing.T) {
	s, codec, _ := newServer(t)

	if rec := get(s, "/api/v1/resources/post-1/access", authtest.MustMint(codec, freeUser, time.Now())); rec.Code != http.StatusForbidden {
		t.Fatalf("free on premium: %d", rec.Code)
	}
	if rec := get(s, "/api/v1/resources/post-1/access", authtest.MustMint(codec, eliteUser, time.Now())); rec.Code != http.StatusOK {
		t.Fatalf("elite on premium: %d", rec.Code)
	}
	if rec := get(s, "/api/v1/resources/post-1/access", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}
	if rec := get(s, "/api/v1/resources/nope/access", authtest.MustMint(codec, eliteUser, time.Now())); rec.Code != http.StatusNotFound {
		t.Fatalf("missing resource: %d", rec.Code)
	}
}

func TestJWKSPublishesActiveKey(t *testing.T) {
	s, _, keys := newServer(t)
	rec := get(s, "/.well-known/jwks.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
			Alg string `json:"alg"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &set); err != nil {
		t.Fatal(err)
	}
	if len(set.Keys) != 1 || set.Keys[0].Kid != keys.ActiveKID() || set.Keys[0].Alg != "EdDSA" {
		t.Fatalf("jwks = %+v", set)
	}

	rec = get(s, "/.well-known/openid-configuration", "")
	if !strings.Contains(rec.Body.String(), `"jwks_uri":"https://api.example.com/.well-known/jwks.json"`) {
		t.Fatalf("discovery = %s", rec.Body.String())
	}
}

func TestLoginRedirectTokenUnlocksAPI(t *testing.T) {
	s, _, _ := newServer(t)

	rec := get(s, "/login/static", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("login start: %d", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	req := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/static?code=c&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback: %d %s", rec.Code, rec.Body.String())
	}

	front, err := url.Parse(rec.Header().Get("Location"))
	if err != nil || front.Host != "app.example.com" {
		t.Fatalf("redirect %q", rec.Header().Get("Location"))
	}
	tok := front.Query().Get("token")
	if rec := get(s, "/api/v1/me", tok); rec.Code != http.StatusOK {
		t.Fatalf("minted token rejected: %d", rec.Code)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := tiergate.New(tiergate.Config{}); err == nil {
		t.Fatal("expected error")
	}
	dir := authtest.NewDirectory()
	_, err := tiergate.New(tiergate.Config{
		Verifier:  authtest.NewCodec(),
		Resolver:  dir,
		Tiers:     dir,
		Providers: []login.Provider{staticProvider{}},
	})
	if err == nil {
		t.Fatal("providers without a minter must be rejected")
	}
}

func TestNewRejectsIssuerOutsidePublicURL(t *testing.T) {
	keys, err := auth.GenerateKeySet()
	if err != nil {
		t.Fatal(err)
	}
	codec, err := auth.NewEdDSACodec(keys)
	if err != nil {
		t.Fatal(err)
	}
	dir := authtest.NewDirectory()
	_, err = tiergate.New(tiergate.Config{
		Verifier:  codec,
		Minter:    codec,
		Resolver:  dir,
		Tiers:     dir,
		Keys:      keys,
		PublicURL: "https://api.example.com",
	})
	if err == nil {
		t.Fatal("a credential issuer that discovery cannot match must be rejected")
	}
}

func TestDiscoveredVerifierAcceptsMintedCredentials(t *testing.T) {
	var h http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}))
	defer ts.Close()

	keys, err := auth.GenerateKeySet()
	if err != nil {
		t.Fatal(err)
	}
	codec, err := auth.NewEdDSACodec(keys, auth.WithIssuer(ts.URL))
	if err != nil {
		t.Fatal(err)
	}
	dir := authtest.NewDirectory(eliteUser)
	s, err := tiergate.New(tiergate.Config{
		Verifier:  codec,
		Minter:    codec,
		Resolver:  dir,
		Tiers:     dir,
		Keys:      keys,
		PublicURL: ts.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h = s

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rv, err := auth.NewDiscoveredVerifier(ctx, ts.URL)
	if err != nil {
		t.Fatalf("NewDiscoveredVerifier: %v", err)
	}
	tok, err := codec.Mint(eliteUser.Subject(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	sub, err := rv.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != eliteUser.Subject() {
		t.Fatalf("subject = %q, want %q", sub, eliteUser.Subject())
	}
}
