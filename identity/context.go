package identity

import "context"

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying id as the request principal.
func WithPrincipal(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, principalKey{}, id)
}

// PrincipalFromContext returns the principal bound by the request gate, if any.
func PrincipalFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(principalKey{}).(*Identity)
	return id, ok && id != nil
}
