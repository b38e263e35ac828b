package gate

import "testing"

func TestDefaultPublicRoutes(t *testing.T) {
	pr := MustCompilePublicRoutes(DefaultPublicRoutes...)

	cases := []struct {
		rule   string
		match  []string
		reject []string
	}{
		{
			rule:   "/health",
			match:  []string{"/health", "/health/", "/health/live"},
			reject: []string{"/healthz", "/api/health"},
		},
		{
			rule:   "/favicon.ico",
			match:  []string{"/favicon.ico"},
			reject: []string{"/favicon.icon", "/favicon"},
		},
		{
			rule:   "/api/v1/search/**",
			match:  []string{"/api/v1/search", "/api/v1/search/", "/api/v1/search/posts", "/api/v1/search/posts/42"},
			reject: []string{"/api/v1/searchx", "/api/v1/posts", "/api/v1"},
		},
		{
			rule:   "/api/compile/**",
			match:  []string{"/api/compile", "/api/compile/run"},
			reject: []string{"/api/compiler", "/api/v1/compile"},
		},
		{
			rule:   "/login/**",
			match:  []string{"/login", "/login/github", "/login/oauth2/code/github"},
			reject: []string{"/logins", "/api/login"},
		},
		{
			rule:   "/docs/**",
			match:  []string{"/docs", "/docs/index.html"},
			reject: []string{"/documents"},
		},
		{
			rule:   "/swagger-ui/**",
			match:  []string{"/swagger-ui", "/swagger-ui/index.html", "/swagger-ui/assets/app.js"},
			reject: []string{"/swagger-ui.html", "/swagger"},
		},
		{
			rule:   "/.well-known/**",
			match:  []string{"/.well-known/jwks.json", "/.well-known/openid-configuration"},
			reject: []string{"/.well-known-x"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.rule, func(t *testing.T) {
			single := MustCompilePublicRoutes(tc.rule)
			for _, p := range tc.match {
				if !single.Match(p) {
					t.Fatalf("%s should match %s", tc.rule, p)
				}
				if !pr.Match(p) {
					t.Fatalf("default set should match %s", p)
				}
			}
			for _, p := range tc.reject {
				if single.Match(p) {
					t.Fatalf("%s should not match %s", tc.rule, p)
				}
			}
		})
	}
}

func TestProtectedPathsAreNotPublic(t *testing.T) {
	pr := MustCompilePublicRoutes(DefaultPublicRoutes...)
	for _, p := range []string{"/", "", "/api/v1/me", "/api/v1/posts/1/comments", "/admin"} {
		if pr.Match(p) {
			t.Fatalf("%q must not be public", p)
		}
	}
}

func TestDotSegmentsCannotEscape(t *testing.T) {
	pr := MustCompilePublicRoutes(DefaultPublicRoutes...)
	for _, p := range []string{"/login/../api/v1/me", "/docs/./../admin", "/health/../../api/v1/me"} {
		if pr.Match(p) {
			t.Fatalf("%q must not be public", p)
		}
	}
	if !pr.Match("/api/../login/github") {
		t.Fatal("cleaned path inside a public subtree should match")
	}
}

func TestGlobRules(t *testing.T) {
	pr := MustCompilePublicRoutes("/api/v1/posts/*/preview", "/static/**/*.css", "/img/{a,b}.png")

	for _, p := range []string{"/api/v1/posts/42/preview", "/static/css/site.css", "/static/a/b/c.css", "/img/a.png"} {
		if !pr.Match(p) {
			t.Fatalf("should match %s", p)
		}
	}
	for _, p := range []string{"/api/v1/posts/42/43/preview", "/api/v1/posts/42/comments", "/static/site.js", "/img/c.png"} {
		if pr.Match(p) {
			t.Fatalf("should not match %s", p)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := CompilePublicRoutes("health"); err == nil {
		t.Fatal("relative pattern must be rejected")
	}
	pr, err := CompilePublicRoutes("", "  ", "/ok")
	if err != nil {
		t.Fatalf("blank entries should be skipped: %v", err)
	}
	if got := pr.Patterns(); len(got) != 1 || got[0] != "/ok" {
		t.Fatalf("Patterns: %v", got)
	}
}

func TestNilPublicRoutes(t *testing.T) {
	var pr *PublicRoutes
	if pr.Match("/health") {
		t.Fatal("nil set matches nothing")
	}
}
