package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/skillsenselab/transcribed/errors"
)

// BearerToken extracts the token from an Authorization header. The second
// return value is false when the header is absent or not a Bearer scheme.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// RequireToken guards a route group with a static bearer token. An empty
// expected token denies everything, so unconfigured deployments expose no
// operator surface.
func RequireToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented, ok := BearerToken(c.Request)
		if !ok || expected == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			err := apperrors.Unauthorized("A valid operator token is required.")
			c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
			return
		}
		c.Next()
	}
}
