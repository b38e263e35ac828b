package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ggoodman/tiergate/login"
	"github.com/ggoodman/tiergate/login/github"
	"golang.org/x/oauth2"
)

func newGitHub(t *testing.T, publicEmail bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "the-code" || r.PostForm.Get("code_verifier") != "the-verifier" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var email any
		if publicEmail {
			email = "octo@example.com"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         583231,
			"login":      "octocat",
			"avatar_url": "https://avatars.example.com/u/583231",
			"email":      email,
		})
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server) *github.Provider {
	t.Helper()
	p, err := github.New("cid", "csecret", "http://localhost/login/oauth2/code/github",
		github.WithEndpoint(oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		}),
		github.WithAPIBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExchangeFetchesProfile(t *testing.T) {
	srv := newGitHub(t, true)
	attrs, err := newProvider(t, srv).Exchange(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	p, err := login.ProfileFromAttributes(attrs)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.ExternalID != 583231 || p.Login != "octocat" || p.Mail != "octo@example.com" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestExchangeFallsBackToPrimaryEmail(t *testing.T) {
	srv := newGitHub(t, false)
	attrs, err := newProvider(t, srv).Exchange(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if attrs[login.AttrEmail] != "primary@example.com" {
		t.Fatalf("email = %v", attrs[login.AttrEmail])
	}
}

func TestExchangeRejectsBadVerifier(t *testing.T) {
	srv := newGitHub(t, true)
	if _, err := newProvider(t, srv).Exchange(context.Background(), "the-code", "wrong"); err == nil {
		t.Fatal("expected exchange to fail")
	}
}

func TestAuthCodeURLCarriesPKCE(t *testing.T) {
	srv := newGitHub(t, true)
	raw := newProvider(t, srv).AuthCodeURL("st", "the-verifier")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("state") != "st" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("auth url %s", raw)
	}
	if q.Get("code_challenge") != oauth2.S256ChallengeFromVerifier("the-verifier") {
		t.Fatalf("challenge mismatch in %s", raw)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := github.New("", "s", "r"); err == nil {
		t.Fatal("expected error")
	}
}
