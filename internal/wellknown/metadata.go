// Package wellknown builds the discovery documents served under
// /.well-known/ so that other services can verify gateway credentials.
package wellknown

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"sort"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	JWKSPath                      = "/.well-known/jwks.json"
	OpenIDConfigurationPath       = "/.well-known/openid-configuration"
	ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"
)

// ProtectedResourceMetadata is the RFC 9728 document describing the API.
type ProtectedResourceMetadata struct {
	Resource                          string   `json:"resource"`
	AuthorizationServers              []string `json:"authorization_servers,omitempty"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	BearerMethodsSupported            []string `json:"bearer_methods_supported,omitempty"`
	ResourceSigningAlgValuesSupported []string `json:"resource_signing_alg_values_supported,omitempty"`
	ResourceName                      string   `json:"resource_name,omitempty"`
	ResourceDocumentation             string   `json:"resource_documentation,omitempty"`
}

// DiscoveryDocument is the subset of OpenID provider metadata needed for a
// verifier to locate the signing keys.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	JwksURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// NewDiscoveryDocument describes an EdDSA credential issuer rooted at issuer.
func NewDiscoveryDocument(issuer, jwksURI string) DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                           issuer,
		JwksURI:                          jwksURI,
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{string(jose.EdDSA)},
	}
}

// JWKS converts public keys into a JSON Web Key Set, ordered by kid.
func JWKS(keys map[string]ed25519.PublicKey) jose.JSONWebKeySet {
	kids := make([]string, 0, len(keys))
	for kid := range keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(kids))}
	for _, kid := range kids {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       keys[kid],
			KeyID:     kid,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		})
	}
	return set
}

// Handler serves the document returned by doc as JSON. doc is called per
// request so that rotated keys are picked up.
func Handler(doc func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(doc())
	})
}
