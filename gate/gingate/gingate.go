// Package gingate mounts a gate.Gate on a gin router.
package gingate

import (
	"net/http"

	"github.com/ggoodman/tiergate/gate"
	"github.com/ggoodman/tiergate/identity"
	"github.com/gin-gonic/gin"
)

// Middleware adapts g to gin. When the gate refuses a request the chain is
// aborted; otherwise the remaining handlers run with the gate's request,
// including any bound principal.
func Middleware(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		reached := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			c.Next()
		})

		g.Middleware(next).ServeHTTP(c.Writer, c.Request)

		if !reached {
			c.Abort()
		}
	}
}

// Principal returns the identity bound by the gate, if any.
func Principal(c *gin.Context) (*identity.Identity, bool) {
	return identity.PrincipalFromContext(c.Request.Context())
}

// RequireIdentity aborts with the gate's FailureResponder when no principal
// is bound.
func RequireIdentity(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Principal(c); !ok {
			g.Responder().RespondAuthFailure(c.Writer, c.Request, gate.ErrAuthenticationRequired)
			c.Abort()
			return
		}
		c.Next()
	}
}
