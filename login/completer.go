// Package login completes a third-party OAuth login: it maps the provider's
// profile to a registered identity, mints a credential for it and redirects
// the browser back to the frontend with that credential.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/gate"
	"github.com/ggoodman/tiergate/identity"
)

// Result is a completed login.
type Result struct {
	Identity    *identity.Identity
	Profile     Profile
	Token       string
	RedirectURL string
}

// Option configures a Completer.
type Option func(*Completer)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *Completer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time used when minting.
func WithClock(now func() time.Time) Option {
	return func(c *Completer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithErrorResponder sets the responder used by ServeCompletion for failed
// logins. Defaults to a gate.BearerResponder.
func WithErrorResponder(fr gate.FailureResponder) Option {
	return func(c *Completer) {
		if fr != nil {
			c.responder = fr
		}
	}
}

// Completer turns provider attributes into a credential redirect.
type Completer struct {
	resolver  identity.Resolver
	minter    auth.Minter
	frontend  string
	now       func() time.Time
	responder gate.FailureResponder
	log       *slog.Logger
}

// NewCompleter returns a Completer redirecting to frontendURL, which must
// be an absolute http(s) URL.
func NewCompleter(resolver identity.Resolver, minter auth.Minter, frontendURL string, opts ...Option) (*Completer, error) {
	u, err := url.Parse(frontendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("login: frontend url %q must be an absolute http(s) url", frontendURL)
	}
	c := &Completer{
		resolver: resolver,
		minter:   minter,
		frontend: strings.TrimRight(frontendURL, "/"),
		now:      time.Now,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.responder == nil {
		c.responder = &gate.BearerResponder{Log: c.log}
	}
	return c, nil
}

// Complete resolves the identity behind attrs and mints its credential. It
// has no side effects on failure.
func (c *Completer) Complete(ctx context.Context, attrs map[string]any) (*Result, error) {
	p, err := ProfileFromAttributes(attrs)
	if err != nil {
		c.log.InfoContext(ctx, "login.profile.incomplete", slog.String("err", err.Error()))
		return nil, err
	}

	ident, err := c.resolver.FindByExternalID(ctx, p.ExternalID)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		c.log.InfoContext(ctx, "login.identity.unregistered", slog.Int64("external_id", p.ExternalID))
		return nil, fmt.Errorf("%w: external id %d", ErrIdentityNotRegistered, p.ExternalID)
	case err != nil:
		c.log.ErrorContext(ctx, "login.identity.fail", slog.String("err", err.Error()))
		return nil, identity.ErrUpstreamUnavailable
	case ident == nil:
		return nil, fmt.Errorf("%w: external id %d", ErrIdentityNotRegistered, p.ExternalID)
	}

	tok, err := c.minter.Mint(ident.Subject(), c.now())
	if err != nil {
		c.log.ErrorContext(ctx, "login.mint.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("login: mint credential: %w", err)
	}

	c.log.InfoContext(ctx, "login.complete.ok", slog.Int64("id", ident.ID), slog.String("login", p.Login))
	return &Result{
		Identity:    ident,
		Profile:     p,
		Token:       tok,
		RedirectURL: c.redirectURL(tok, ident, p),
	}, nil
}

// redirectURL keeps the parameter order token, memberId, gitLoginId,
// profileImgUrl, which url.Values.Encode would sort.
func (c *Completer) redirectURL(tok string, ident *identity.Identity, p Profile) string {
	var b strings.Builder
	b.WriteString(c.frontend)
	b.WriteString("/?token=")
	b.WriteString(url.QueryEscape(tok))
	b.WriteString("&memberId=")
	b.WriteString(url.QueryEscape(strconv.FormatInt(ident.ID, 10)))
	b.WriteString("&gitLoginId=")
	b.WriteString(url.QueryEscape(p.Login))
	b.WriteString("&profileImgUrl=")
	b.WriteString(url.QueryEscape(p.AvatarURL))
	return b.String()
}

// ServeCompletion completes the login and answers with a 302 redirect. When
// w reports that the response is already committed nothing is written.
// Failures go to the configured error responder.
func (c *Completer) ServeCompletion(w http.ResponseWriter, r *http.Request, attrs map[string]any) {
	ctx := r.Context()
	if tw, ok := w.(interface{ Written() bool }); ok && tw.Written() {
		c.log.WarnContext(ctx, "login.complete.committed")
		return
	}

	res, err := c.Complete(ctx, attrs)
	if err != nil {
		c.responder.RespondAuthFailure(w, r, err)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}
