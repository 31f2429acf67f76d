package security

import (
	"net/http"
	"strings"

	"Pulse/tools/errs"
	sec "Pulse/tools/security"

	"github.com/gin-gonic/gin"
)

// Context key the downstream handlers read the identity from.
const CtxIdentityKey = "identity"

// Verifier mirrors the gateway's injected token verifier.
type Verifier func(token string) (*sec.Identity, error)

// Middleware authenticates the request/response fallback surface. The
// bearer token comes from the Authorization header; requests without a
// valid one are rejected before any handler state change.
func Middleware(verify Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized.WithDetail("missing credential"))
			return
		}
		id, err := verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized.WithDetail("invalid credential"))
			return
		}
		c.Set(CtxIdentityKey, id)
		c.Next()
	}
}

// IdentityFrom extracts the authenticated identity set by Middleware.
func IdentityFrom(c *gin.Context) (*sec.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*sec.Identity)
	return id, ok
}
