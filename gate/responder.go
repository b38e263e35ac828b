package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/tiergate/auth"
	"github.com/ggoodman/tiergate/identity"
	"github.com/ggoodman/tiergate/tier"
)

var (
	jsonMediaType = contenttype.NewMediaType("application/json")
	textMediaType = contenttype.NewMediaType("text/plain")

	failureMediaTypes = []contenttype.MediaType{jsonMediaType, textMediaType}
)

// statusCoder is implemented by errors that carry their own HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// BearerResponder is the default FailureResponder. It writes an RFC 6750
// challenge for credential failures and a small error body negotiated from
// the Accept header.
type BearerResponder struct {
	// Realm is advertised in WWW-Authenticate when set.
	Realm string
	// ResourceMetadata is the protected resource metadata URL advertised in
	// WWW-Authenticate when set.
	ResourceMetadata string
	Log              *slog.Logger
}

type failure struct {
	status    int
	message   string
	challenge map[string]string
}

func classify(err error) failure {
	var aerr *tier.AuthorizationError
	var sc statusCoder

	switch {
	case errors.Is(err, auth.ErrExpired):
		return invalidToken("credential expired")
	case errors.Is(err, auth.ErrInvalidSignature):
		return invalidToken("credential signature is invalid")
	case errors.Is(err, auth.ErrMalformedCredential):
		return invalidToken("credential is malformed")
	case errors.Is(err, identity.ErrIdentityNotFound):
		return invalidToken("credential subject is not a registered identity")
	case errors.Is(err, ErrAuthenticationRequired):
		return failure{status: http.StatusUnauthorized, message: "authentication required", challenge: map[string]string{}}
	case errors.As(err, &aerr):
		f := failure{status: aerr.HTTPStatus(), message: aerr.Message}
		switch f.status {
		case http.StatusUnauthorized:
			f.challenge = map[string]string{}
		case http.StatusForbidden:
			f.challenge = map[string]string{"error": "insufficient_scope", "error_description": aerr.Message}
		}
		return f
	case errors.Is(err, tier.ErrResourceNotFound):
		return failure{status: http.StatusNotFound, message: "resource not found"}
	case errors.Is(err, identity.ErrUpstreamUnavailable):
		return failure{status: http.StatusServiceUnavailable, message: "service temporarily unavailable"}
	case errors.As(err, &sc):
		status := sc.HTTPStatus()
		return failure{status: status, message: http.StatusText(status)}
	default:
		return failure{status: http.StatusInternalServerError, message: "internal error"}
	}
}

func invalidToken(desc string) failure {
	return failure{
		status:    http.StatusUnauthorized,
		message:   desc,
		challenge: map[string]string{"error": "invalid_token", "error_description": desc},
	}
}

// RespondAuthFailure implements FailureResponder.
func (b *BearerResponder) RespondAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	log := b.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "gate.respond", slog.Int("status", f.status), slog.String("err", err.Error()))
	} else {
		log.InfoContext(r.Context(), "gate.respond", slog.Int("status", f.status), slog.String("err", err.Error()))
	}

	if f.challenge != nil {
		w.Header().Set(wwwAuthenticateHeader, buildBearerChallenge(b.Realm, b.ResourceMetadata, f.challenge))
	}
	writeError(w, r, f.status, f.message)
}

// writeError emits {"error":{"code":<status>,"message":"<reason>"}} unless the
// client prefers text/plain.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	mt, _, err := contenttype.GetAcceptableMediaType(r, failureMediaTypes)
	if err == nil && mt.Matches(textMediaType) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, msg+"\n")
		return
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// buildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", resource_metadata="<url>", error="...", error_description="..."
//
// Empty realm and metadata are omitted. Known params keep a fixed order.
func buildBearerChallenge(realm, resourceMetadata string, params map[string]string) string {
	pieces := make([]string, 0, 2+len(params))
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
