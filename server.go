// Package tiergate assembles the credential gate, the login flow and the
// tier authority into one http.Handler.
//
// Downstream handlers are mounted with Handle and run behind the gate: a
// request that presented a valid bearer credential carries its identity in
// the request context (see identity.PrincipalFromContext), anonymous
// requests carry none, and requests with a bad credential never reach them.
package tiergate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/gate"
	"github.com/ggoodman/tiergate/identity"
	"github.com/ggoodman/tiergate/internal/logctx"
	"github.com/ggoodman/tiergate/internal/wellknown"
	"github.com/ggoodman/tiergate/login"
	"github.com/ggoodman/tiergate/tier"
)

// Config wires the collaborators of a Server.
type Config struct {
	// Verifier checks bearer credentials. Required.
	Verifier auth.Verifier
	// Minter issues credentials after a login. Required when Providers is
	// non-empty.
	Minter auth.Minter
	// Resolver maps credential subjects to identities. Required.
	Resolver identity.Resolver
	// Tiers reports resource tiers. Required.
	Tiers identity.TierLookup

	// Keys, when set, is published as a JWKS together with an OpenID
	// discovery document.
	Keys *auth.KeySet
	// Issuer is the iss claim of minted credentials. It defaults to the
	// Minter's issuer when the Minter reports one, and must equal PublicURL
	// when Keys is set so that discovery on PublicURL verifies them.
	Issuer string
	// PublicURL is the externally visible base URL.
	PublicURL string
	// Realm is advertised in WWW-Authenticate challenges.
	Realm string

	// PublicRoutes replaces gate.DefaultPublicRoutes when set.
	PublicRoutes *gate.PublicRoutes

	// FrontendURL receives the post-login redirect.
	FrontendURL     string
	Providers       []login.Provider
	InsecureCookies bool

	Logger *slog.Logger
}

// Server is an http.Handler serving the gateway routes and any downstream
// handlers mounted with Handle.
type Server struct {
	mux       *http.ServeMux
	handler   http.Handler
	gate      *gate.Gate
	authority *tier.Authority
	responder gate.FailureResponder
	log       *slog.Logger
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Verifier == nil || cfg.Resolver == nil || cfg.Tiers == nil {
		return nil, errors.New("tiergate: verifier, resolver and tier lookup are required")
	}
	if len(cfg.Providers) > 0 && cfg.Minter == nil {
		return nil, errors.New("tiergate: a minter is required when login providers are configured")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base := strings.TrimRight(cfg.PublicURL, "/")
	issuer := cfg.Issuer
	if ir, ok := cfg.Minter.(interface{ Issuer() string }); ok && issuer == "" {
		issuer = ir.Issuer()
	}
	if cfg.Keys != nil && issuer != "" && issuer != base {
		return nil, fmt.Errorf("tiergate: credential issuer %q must equal the public url %q when publishing keys", issuer, base)
	}

	responder := &gate.BearerResponder{Realm: cfg.Realm, Log: log}
	if base != "" {
		responder.ResourceMetadata = base + wellknown.ProtectedResourceMetadataPath
	}

	opts := []gate.Option{gate.WithFailureResponder(responder), gate.WithLogger(log)}
	if cfg.PublicRoutes != nil {
		opts = append(opts, gate.WithPublicRoutes(cfg.PublicRoutes))
	}

	s := &Server{
		mux:       http.NewServeMux(),
		gate:      gate.New(cfg.Verifier, cfg.Resolver, opts...),
		authority: tier.NewAuthority(cfg.Tiers, tier.WithLogger(log)),
		responder: responder,
		log:       log,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mountWellKnown(cfg, base)

	if len(cfg.Providers) > 0 {
		completer, err := login.NewCompleter(cfg.Resolver, cfg.Minter, cfg.FrontendURL,
			login.WithLogger(log), login.WithErrorResponder(responder))
		if err != nil {
			return nil, err
		}
		hopts := []login.HandlerOption{login.WithHandlerLogger(log)}
		if cfg.InsecureCookies {
			hopts = append(hopts, login.WithInsecureCookies())
		}
		login.NewHandler(login.NewRegistry(cfg.Providers...), completer, hopts...).Register(s.mux)
	}

	s.HandleAuthenticated("GET /api/v1/me", http.HandlerFunc(s.handleMe))
	s.Handle("GET /api/v1/resources/{id}/access", http.HandlerFunc(s.handleAccess))

	s.handler = logctx.Middleware(s.gate.Middleware(s.mux))
	log.Info("server.ready", slog.Int("providers", len(cfg.Providers)), slog.Bool("jwks", cfg.Keys != nil))
	return s, nil
}

// Handle mounts h behind the gate under a net/http ServeMux pattern.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// HandleAuthenticated is like Handle but answers requests without a bound
// principal through the failure responder.
func (s *Server) HandleAuthenticated(pattern string, h http.Handler) {
	s.mux.Handle(pattern, gate.RequireIdentity(s.responder, h))
}

// Authority returns the tier authority for downstream handlers.
func (s *Server) Authority() *tier.Authority { return s.authority }

// Responder returns the failure responder shared by the gate, the login
// flow and the built-in handlers.
func (s *Server) Responder() gate.FailureResponder { return s.responder }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) mountWellKnown(cfg Config, base string) {
	prm := wellknown.ProtectedResourceMetadata{
		Resource:               base,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           cfg.Realm,
	}
	if cfg.Keys != nil {
		keys := cfg.Keys
		prm.JwksURI = base + wellknown.JWKSPath
		prm.AuthorizationServers = []string{base}
		prm.ResourceSigningAlgValuesSupported = []string{"EdDSA"}

		s.mux.Handle(wellknown.JWKSPath, wellknown.Handler(func() any {
			return wellknown.JWKS(keys.PublicKeys())
		}))
		discovery := wellknown.NewDiscoveryDocument(base, base+wellknown.JWKSPath)
		s.mux.Handle(wellknown.OpenIDConfigurationPath, wellknown.Handler(func() any { return discovery }))
	}
	s.mux.Handle(wellknown.ProtectedResourceMetadataPath, wellknown.Handler(func() any { return prm }))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, ident)
}

// handleAccess reports whether the caller may act on a resource. It answers
// 200 when allowed; denials go through the failure responder.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	ident, _ := identity.PrincipalFromContext(ctx)

	if err := s.authority.Check(ctx, id, ident); err != nil {
		s.responder.RespondAuthFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"resource": id, "decision": tier.Allowed.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
