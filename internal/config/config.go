// Package config loads server configuration from the environment.
package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Token signing modes.
const (
	SigningHS256 = "hs256"
	SigningEdDSA = "eddsa"
)

// Config for the tiergate server. Defaults are provided via struct tags.
type Config struct {
	// ListenAddr like ":8080". ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	// PublicURL is the externally visible base URL, used as the discovery
	// issuer. ENV: PUBLIC_URL
	PublicURL string `env:"PUBLIC_URL,default=http://localhost:8080"`

	TokenSigning string        `env:"TOKEN_SIGNING,default=hs256"`
	TokenSecret  string        `env:"TOKEN_SECRET"`
	TokenSeed    string        `env:"TOKEN_ED25519_SEED"`
	TokenKeyID   string        `env:"TOKEN_KEY_ID,default=primary"`
	TokenTTL     time.Duration `env:"TOKEN_TTL,default=24h"`
	TokenIssuer  string        `env:"TOKEN_ISSUER"`
	// VerifyJWKSURL switches verification to a remote key set, for nodes
	// that accept credentials minted elsewhere. ENV: VERIFY_JWKS_URL
	VerifyJWKSURL string `env:"VERIFY_JWKS_URL"`

	FrontendURL     string `env:"FRONTEND_URL,default=http://localhost:3000"`
	InsecureCookies bool   `env:"LOGIN_INSECURE_COOKIES,default=false"`
	Realm           string `env:"AUTH_REALM,default=tiergate"`

	DatabaseDriver string `env:"DATABASE_DRIVER,default=sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN,default=file:tiergate.db"`

	// RedisAddr enables the Redis lookup cache; empty keeps it in process.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"IDENTITY_CACHE_TTL,default=5m"`
	CacheSize     int           `env:"IDENTITY_CACHE_SIZE,default=10000"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	OIDCName         string `env:"OIDC_NAME,default=oidc"`
	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`

	// PublicRoutes is a comma separated allow-list replacing the default
	// one. ENV: PUBLIC_ROUTES
	PublicRoutes string `env:"PUBLIC_ROUTES"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load decodes the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid or incomplete setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf("config: "+format, args...)) }

	switch c.TokenSigning {
	case SigningHS256:
		if len(c.TokenSecret) < 32 {
			add("TOKEN_SECRET must be at least 32 bytes for hs256")
		}
	case SigningEdDSA:
		if _, err := c.Ed25519Seed(); err != nil {
			add("%v", err)
		}
	default:
		add("TOKEN_SIGNING must be %q or %q, got %q", SigningHS256, SigningEdDSA, c.TokenSigning)
	}
	if c.TokenTTL <= 0 {
		add("TOKEN_TTL must be positive")
	}
	if c.TokenSigning == SigningEdDSA && c.TokenIssuer != "" && c.TokenIssuer != c.publicBase() {
		add("TOKEN_ISSUER must equal PUBLIC_URL for eddsa, got %q and %q", c.TokenIssuer, c.PublicURL)
	}
	if c.VerifyJWKSURL != "" && c.hasLoginProviders() && c.TokenSigning != SigningEdDSA {
		add("VERIFY_JWKS_URL with login providers requires TOKEN_SIGNING=eddsa")
	}

	for name, raw := range map[string]string{"FRONTEND_URL": c.FrontendURL, "PUBLIC_URL": c.PublicURL} {
		if u, err := url.Parse(raw); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			add("%s must be an absolute http(s) url, got %q", name, raw)
		}
	}

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		add("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		add("DATABASE_DSN is required")
	}

	if !allOrNone(c.GitHubClientID, c.GitHubClientSecret, c.GitHubRedirectURL) {
		add("GITHUB_CLIENT_ID, GITHUB_CLIENT_SECRET and GITHUB_REDIRECT_URL must be set together")
	}
	if !allOrNone(c.OIDCIssuer, c.OIDCClientID, c.OIDCRedirectURL) {
		add("OIDC_ISSUER, OIDC_CLIENT_ID and OIDC_REDIRECT_URL must be set together")
	}

	if _, err := c.SlogLevel(); err != nil {
		add("%v", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		add("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return errors.Join(errs...)
}

// Issuer returns the iss claim for minted credentials: TOKEN_ISSUER, or
// PUBLIC_URL without a trailing slash when unset, which matches the issuer
// of the published discovery document.
func (c *Config) Issuer() string {
	if c.TokenIssuer != "" {
		return c.TokenIssuer
	}
	return c.publicBase()
}

func (c *Config) publicBase() string {
	return strings.TrimRight(c.PublicURL, "/")
}

func (c *Config) hasLoginProviders() bool {
	return c.GitHubClientID != "" || c.OIDCIssuer != ""
}

// Ed25519Seed decodes TOKEN_ED25519_SEED, standard or URL-safe base64.
func (c *Config) Ed25519Seed() ([]byte, error) {
	s := strings.TrimSpace(c.TokenSeed)
	if s == "" {
		return nil, errors.New("TOKEN_ED25519_SEED is required for eddsa")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) != ed25519.SeedSize {
				return nil, fmt.Errorf("TOKEN_ED25519_SEED must decode to %d bytes, got %d", ed25519.SeedSize, len(b))
			}
			return b, nil
		}
	}
	return nil, errors.New("TOKEN_ED25519_SEED is not valid base64")
}

// PublicRoutePatterns splits PUBLIC_ROUTES. It returns nil when unset so the
// gate keeps its defaults.
func (c *Config) PublicRoutePatterns() []string {
	if strings.TrimSpace(c.PublicRoutes) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(c.PublicRoutes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

func allOrNone(vals ...string) bool {
	set := 0
	for _, v := range vals {
		if v != "" {
			set++
		}
	}
	return set == 0 || set == len(vals)
}
