// Package auth guards the console API with a shared bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware checks the Authorization header against a static token.
// An empty token disables the check.
type Middleware struct {
	token []byte
}

func NewMiddleware(token string) *Middleware {
	return &Middleware{token: []byte(strings.TrimSpace(token))}
}

// Enabled reports whether requests must carry the token.
func (m *Middleware) Enabled() bool { return m != nil && len(m.token) > 0 }

// GinAuth returns a Gin middleware function for authentication.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		tok, ok := bearer(c.Request)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="consolr"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_required",
				"message": "Authentication required",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(tok), m.token) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Invalid credentials",
			})
			return
		}
		c.Next()
	}
}

// bearer extracts the token from "Authorization: Bearer <token>". SSE
// clients that cannot set headers may pass ?access_token= instead.
func bearer(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok), true
		}
		return "", false
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, true
	}
	return "", false
}
