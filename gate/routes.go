package gate

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPublicRoutes is the allow-list used when WithPublicRoutes is not
// given.
var DefaultPublicRoutes = []string{
	"/health",
	"/favicon.ico",
	"/api/v1/search/**",
	"/api/compile/**",
	"/login/**",
	"/docs/**",
	"/swagger-ui/**",
	"/.well-known/**",
}

type ruleKind int

const (
	// subtree matches the base path and anything below it at a segment boundary.
	subtree ruleKind = iota
	// pattern matches through a compiled glob.
	pattern
)

type rule struct {
	raw  string
	kind ruleKind
	base string
	g    glob.Glob
}

func (r rule) match(p string) bool {
	switch r.kind {
	case subtree:
		return p == r.base || strings.HasPrefix(p, r.base+"/")
	default:
		return r.g.Match(p)
	}
}

// PublicRoutes is an immutable set of path rules exempt from credential
// verification.
//
// A rule without wildcards, such as "/health", matches that path and every
// path below it at a segment boundary: "/health/live" matches, "/healthz"
// does not. A trailing "/**", as in "/login/**", means the same thing for
// the base "/login". Any other rule containing '*', '?', '[' or '{' is a
// glob in which '*' stays within one segment and '**' spans segments.
type PublicRoutes struct {
	rules []rule
}

// CompilePublicRoutes compiles patterns into a PublicRoutes. Every pattern
// must be an absolute path.
func CompilePublicRoutes(patterns ...string) (*PublicRoutes, error) {
	pr := &PublicRoutes{rules: make([]rule, 0, len(patterns))}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("gate: public route %q must start with /", raw)
		}

		if base, ok := strings.CutSuffix(p, "/**"); ok && !hasGlobMeta(base) {
			pr.rules = append(pr.rules, rule{raw: p, kind: subtree, base: cleanPath(base)})
			continue
		}
		if !hasGlobMeta(p) {
			pr.rules = append(pr.rules, rule{raw: p, kind: subtree, base: cleanPath(p)})
			continue
		}

		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("gate: public route %q: %w", raw, err)
		}
		pr.rules = append(pr.rules, rule{raw: p, kind: pattern, g: g})
	}
	return pr, nil
}

// MustCompilePublicRoutes is like CompilePublicRoutes but panics on error.
func MustCompilePublicRoutes(patterns ...string) *PublicRoutes {
	pr, err := CompilePublicRoutes(patterns...)
	if err != nil {
		panic(err)
	}
	return pr
}

// Match reports whether urlPath is public. The path is cleaned first so that
// dot segments cannot walk out of a public subtree.
func (p *PublicRoutes) Match(urlPath string) bool {
	if p == nil {
		return false
	}
	cp := cleanPath(urlPath)
	for _, r := range p.rules {
		if r.match(cp) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns in evaluation order.
func (p *PublicRoutes) Patterns() []string {
	out := make([]string, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.raw
	}
	return out
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
