package config

import (
	"encoding/base64"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", strings.Repeat("s", 32))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.TokenTTL != 24*time.Hour || cfg.Issuer() != "http://localhost:8080" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.CacheTTL != 5*time.Minute || cfg.CacheSize != 10000 {
		t.Fatalf("storage defaults not applied: %+v", cfg)
	}
	if cfg.PublicRoutePatterns() != nil {
		t.Fatal("unset PUBLIC_ROUTES must keep gate defaults")
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelInfo {
		t.Fatalf("level = %v", lvl)
	}
}

func TestLoadOverrides(t *testing.T) {
	seed := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("TOKEN_SIGNING", "eddsa")
	t.Setenv("TOKEN_ED25519_SEED", seed)
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("PUBLIC_ROUTES", "/health, /status/** ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenTTL != 90*time.Minute {
		t.Fatalf("ttl = %v", cfg.TokenTTL)
	}
	got := cfg.PublicRoutePatterns()
	if len(got) != 2 || got[0] != "/health" || got[1] != "/status/**" {
		t.Fatalf("routes = %q", got)
	}
	if b, err := cfg.Ed25519Seed(); err != nil || len(b) != 32 {
		t.Fatalf("seed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			PublicURL:      "http://localhost:8080",
			TokenSigning:   SigningHS256,
			TokenSecret:    strings.Repeat("x", 32),
			TokenTTL:       time.Hour,
			FrontendURL:    "https://app.example.com",
			DatabaseDriver: "sqlite",
			DatabaseDSN:    "file::memory:",
			LogLevel:       "info",
			LogFormat:      "json",
		}
	}
	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	cases := map[string]func(*Config){
		"short secret":   func(c *Config) { c.TokenSecret = "short" },
		"bad signing":    func(c *Config) { c.TokenSigning = "rs256" },
		"missing seed":   func(c *Config) { c.TokenSigning = SigningEdDSA },
		"short seed":     func(c *Config) { c.TokenSigning = SigningEdDSA; c.TokenSeed = base64.StdEncoding.EncodeToString([]byte("abc")) },
		"relative front": func(c *Config) { c.FrontendURL = "/app" },
		"bad driver":     func(c *Config) { c.DatabaseDriver = "mysql" },
		"partial github": func(c *Config) { c.GitHubClientID = "id" },
		"partial oidc":   func(c *Config) { c.OIDCIssuer = "https://idp" },
		"bad level":      func(c *Config) { c.LogLevel = "loud" },
		"bad format":     func(c *Config) { c.LogFormat = "xml" },
		"zero ttl":       func(c *Config) { c.TokenTTL = 0 },
		"eddsa issuer": func(c *Config) {
			c.TokenSigning = SigningEdDSA
			c.TokenSeed = base64.StdEncoding.EncodeToString(make([]byte, 32))
			c.TokenIssuer = "tiergate"
		},
		"remote verify with hs256 login": func(c *Config) {
			c.VerifyJWKSURL = "https://keys.example.com/jwks.json"
			c.GitHubClientID, c.GitHubClientSecret, c.GitHubRedirectURL = "id", "secret", "https://api/cb"
		},
	}
	for name, mutate := range cases {
		c := base()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestIssuerDefaultsToPublicURL(t *testing.T) {
	c := Config{PublicURL: "https://api.example.com/"}
	if got := c.Issuer(); got != "https://api.example.com" {
		t.Fatalf("Issuer() = %q", got)
	}
	c.TokenIssuer = "custom"
	if got := c.Issuer(); got != "custom" {
		t.Fatalf("Issuer() = %q", got)
	}
}

func TestValidateRemoteVerifyWithEdDSALogin(t *testing.T) {
	c := Config{
		PublicURL:          "https://api.example.com",
		TokenSigning:       SigningEdDSA,
		TokenSeed:          base64.StdEncoding.EncodeToString(make([]byte, 32)),
		TokenTTL:           time.Hour,
		VerifyJWKSURL:      "https://api.example.com/.well-known/jwks.json",
		FrontendURL:        "https://app.example.com",
		DatabaseDriver:     "sqlite",
		DatabaseDSN:        "file::memory:",
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		GitHubRedirectURL:  "https://api.example.com/login/oauth2/code/github",
		LogLevel:           "info",
		LogFormat:          "json",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
