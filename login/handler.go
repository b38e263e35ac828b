package login

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Routes served by Handler. Both live under the public /login subtree.
const (
	LoginPath    = "/login/{provider}"
	CallbackPath = "/login/oauth2/code/{provider}"
)

const (
	stateCookieName = "tiergate_oauth_state"
	pkceCookieName  = "tiergate_oauth_pkce"
	flowCookiePath  = "/login"
	flowTTL         = 5 * time.Minute
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger. If not provided, logs are
// discarded.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithInsecureCookies drops the Secure attribute from flow cookies, for
// plain-http local development.
func WithInsecureCookies() HandlerOption {
	return func(h *Handler) { h.secure = false }
}

// Handler drives the browser side of the authorization code flow with
// state and PKCE, and hands the resulting profile to a Completer.
type Handler struct {
	registry  *Registry
	completer *Completer
	secure    bool
	log       *slog.Logger
}

func NewHandler(registry *Registry, completer *Completer, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:  registry,
		completer: completer,
		secure:    true,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the login and callback routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+LoginPath, h.Login)
	mux.HandleFunc("GET "+CallbackPath, h.Callback)
}

// Login starts the flow for the provider named in the path.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.registry.Get(r.PathValue("provider"))
	if err != nil {
		h.completer.responder.RespondAuthFailure(w, r, err)
		return
	}

	state, err := randomToken()
	if err != nil {
		h.log.ErrorContext(ctx, "login.state.fail", slog.String("err", err.Error()))
		h.completer.responder.RespondAuthFailure(w, r, err)
		return
	}
	verifier := oauth2.GenerateVerifier()

	h.setCookie(w, stateCookieName, state, flowTTL)
	h.setCookie(w, pkceCookieName, verifier, flowTTL)

	h.log.InfoContext(ctx, "login.start", slog.String("provider", p.Name()))
	http.Redirect(w, r, p.AuthCodeURL(state, verifier), http.StatusFound)
}

// Callback validates state, exchanges the code and completes the login.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fail := func(err error) { h.completer.responder.RespondAuthFailure(w, r, err) }

	p, err := h.registry.Get(r.PathValue("provider"))
	if err != nil {
		fail(err)
		return
	}

	q := r.URL.Query()
	if !h.validState(r, q.Get("state")) {
		h.log.WarnContext(ctx, "login.state.mismatch", slog.String("provider", p.Name()))
		fail(ErrInvalidState)
		return
	}
	h.setCookie(w, stateCookieName, "", -1)
	h.setCookie(w, pkceCookieName, "", -1)

	if e := q.Get("error"); e != "" {
		h.log.InfoContext(ctx, "login.provider.denied",
			slog.String("provider", p.Name()),
			slog.String("error", e),
			slog.String("desc", q.Get("error_description")),
		)
		fail(fmt.Errorf("%w: %s", ErrProviderDenied, e))
		return
	}

	code := q.Get("code")
	if code == "" {
		fail(fmt.Errorf("%w: missing code", ErrInvalidState))
		return
	}
	verifier := cookieValue(r, pkceCookieName)
	if verifier == "" {
		fail(fmt.Errorf("%w: missing pkce verifier", ErrInvalidState))
		return
	}

	attrs, err := p.Exchange(ctx, code, verifier)
	if err != nil {
		h.log.WarnContext(ctx, "login.exchange.fail", slog.String("provider", p.Name()), slog.String("err", err.Error()))
		fail(ErrExchangeFailed)
		return
	}

	h.completer.ServeCompletion(w, r, attrs)
}

func (h *Handler) validState(r *http.Request, got string) bool {
	want := cookieValue(r, stateCookieName)
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     flowCookiePath,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
