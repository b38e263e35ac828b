// Package gate is the request-filtering stage that turns an inbound bearer
// credential into a principal bound on the request context.
//
// Every request makes a single pass: public routes continue untouched,
// requests without a bearer credential continue anonymously, and requests
// with one either continue with the resolved identity bound or are handed
// to the FailureResponder and stopped. The next handler never runs after a
// verification failure.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/identity"
	"github.com/ggoodman/tiergate/internal/logctx"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	bearerPrefix          = "Bearer "
)

// ErrAuthenticationRequired is reported by RequireIdentity when no principal
// is bound to the request.
var ErrAuthenticationRequired = errors.New("gate: authentication required")

// FailureResponder writes the response for a request the gate, or a
// downstream guard, refused.
type FailureResponder interface {
	RespondAuthFailure(w http.ResponseWriter, r *http.Request, err error)
}

// FailureResponderFunc adapts a function to FailureResponder.
type FailureResponderFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f FailureResponderFunc) RespondAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

// Option configures a Gate.
type Option func(*Gate)

// WithPublicRoutes replaces DefaultPublicRoutes.
func WithPublicRoutes(pr *PublicRoutes) Option {
	return func(g *Gate) {
		if pr != nil {
			g.public = pr
		}
	}
}

// WithFailureResponder replaces the default BearerResponder.
func WithFailureResponder(fr FailureResponder) Option {
	return func(g *Gate) {
		if fr != nil {
			g.responder = fr
		}
	}
}

// WithLogger sets the logger used for per-request decisions. If not
// provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// Gate verifies bearer credentials and binds the resolved identity.
type Gate struct {
	verifier  auth.Verifier
	resolver  identity.Resolver
	public    *PublicRoutes
	responder FailureResponder
	log       *slog.Logger
}

// New returns a Gate verifying credentials with verifier and resolving
// their subjects with resolver.
func New(verifier auth.Verifier, resolver identity.Resolver, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		resolver: resolver,
		public:   MustCompilePublicRoutes(DefaultPublicRoutes...),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.responder == nil {
		g.responder = &BearerResponder{Log: g.log}
	}
	return g
}

// Responder returns the FailureResponder used by the gate.
func (g *Gate) Responder() FailureResponder { return g.responder }

// Middleware wraps next with the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tw := Track(w)

		if g.public.Match(r.URL.Path) {
			g.log.DebugContext(ctx, "gate.public")
			next.ServeHTTP(tw, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			g.log.DebugContext(ctx, "gate.anonymous")
			next.ServeHTTP(tw, r)
			return
		}

		ident, err := g.authenticate(ctx, raw)
		if err != nil {
			g.responder.RespondAuthFailure(tw, r, err)
			return
		}

		ctx = identity.WithPrincipal(ctx, ident)
		ctx = logctx.WithPrincipalData(ctx, &logctx.PrincipalData{
			ID:         ident.ID,
			ExternalID: ident.ExternalID,
			Tier:       ident.Tier.String(),
		})
		g.log.InfoContext(ctx, "gate.ok")
		next.ServeHTTP(tw, r.WithContext(ctx))
	})
}

func (g *Gate) authenticate(ctx context.Context, raw string) (*identity.Identity, error) {
	sub, err := g.verifier.Verify(raw)
	if err != nil {
		g.log.InfoContext(ctx, "gate.verify.fail", slog.String("err", err.Error()))
		return nil, err
	}

	externalID, err := identity.ParseSubject(sub)
	if err != nil {
		g.log.InfoContext(ctx, "gate.verify.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: %w", auth.ErrMalformedCredential, err)
	}

	ident, err := g.resolver.FindByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		g.log.InfoContext(ctx, "gate.resolve.miss", slog.Int64("external_id", externalID))
		return nil, identity.ErrIdentityNotFound
	case err != nil:
		g.log.ErrorContext(ctx, "gate.resolve.fail", slog.String("err", err.Error()))
		return nil, identity.ErrUpstreamUnavailable
	case ident == nil:
		return nil, identity.ErrIdentityNotFound
	}
	return ident, nil
}

// bearerToken returns the credential following the literal "Bearer " prefix.
// An empty credential after the prefix is still reported so that it fails
// verification instead of passing anonymously.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(authorizationHeader)
	raw, ok := strings.CutPrefix(h, bearerPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

// RequireIdentity stops requests that reach it without a bound principal,
// delegating the response to fr.
func RequireIdentity(fr FailureResponder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.PrincipalFromContext(r.Context()); !ok {
			fr.RespondAuthFailure(w, r, ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}
