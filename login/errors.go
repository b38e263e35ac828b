package login

import "net/http"

// Error is a login failure that carries the HTTP status a responder should
// use. The package's sentinels are *Error values and compare by identity, so
// errors.Is works through wrapping.
type Error struct {
	msg    string
	status int
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) HTTPStatus() int { return e.status }

var (
	// ErrProviderProfileIncomplete reports a provider profile missing one of
	// the required attributes.
	ErrProviderProfileIncomplete = &Error{"login: provider profile incomplete", http.StatusBadGateway}

	// ErrIdentityNotRegistered reports a provider account with no registered
	// identity.
	ErrIdentityNotRegistered = &Error{"login: identity not registered", http.StatusNotFound}

	// ErrUnknownProvider reports a login route naming no configured provider.
	ErrUnknownProvider = &Error{"login: unknown provider", http.StatusNotFound}

	// ErrInvalidState reports a callback whose state does not match the
	// cookie set when the flow began.
	ErrInvalidState = &Error{"login: invalid state", http.StatusBadRequest}

	// ErrProviderDenied reports a callback carrying an error from the
	// provider, typically a user declining consent.
	ErrProviderDenied = &Error{"login: provider denied authorization", http.StatusUnauthorized}

	// ErrExchangeFailed reports a failed code exchange or profile fetch.
	ErrExchangeFailed = &Error{"login: code exchange failed", http.StatusBadGateway}
)
