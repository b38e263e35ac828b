// Package auth issues and verifies the self-contained bearer credentials
// carried in the Authorization header.
//
// A credential is a compact JWS whose claims are the subject (the external
// provider id of the identity), iat, exp, iss and a random jti. There is no
// server-side record: validity is decided by the signature and the embedded
// expiry alone.
//
// # Key modes
//
// NewHS256Codec signs with a shared HMAC secret of at least 32 bytes.
// NewEdDSACodec signs with the active key of an Ed25519 KeySet; the public
// half of every key in the set can be published as a JWKS so that other
// processes verify with NewRemoteVerifier without ever holding a private key.
//
// Example:
//
//	codec, err := auth.NewHS256Codec(secret, auth.WithTTL(12*time.Hour))
//	if err != nil { log.Fatal(err) }
//
//	tok, _ := codec.Mint("583231", time.Now())
//	sub, err := codec.Verify(tok)
//	switch {
//	case errors.Is(err, auth.ErrExpired):            // 401, ask the user to log in again
//	case errors.Is(err, auth.ErrInvalidSignature):   // 401
//	case errors.Is(err, auth.ErrMalformedCredential): // 401
//	}
//
// # Verification order
//
// Verify decodes the credential first, then checks the embedded expiry, then
// the signature, then the issuer and subject. An expired credential is
// therefore reported as ErrExpired even when its signature is also bad.
// Errors never include credential material.
package auth
