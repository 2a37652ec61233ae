package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/transcribed/util"
)

const defaultMaxBodySize = 10 * 1024 * 1024 // 10MB

// bodyOverheadAllowance is headroom above the payload ceiling so multipart
// framing and form fields do not count against it. The intake layer enforces
// the exact ceiling.
const bodyOverheadAllowance = 1 << 20

// BodySizeLimit returns middleware that restricts the request body to the given
// size string (e.g. "10MB", "512KB", "1GB") plus framing headroom. The intake
// layer enforces the exact payload ceiling; this is the transport-level
// backstop that stops runaway bodies before they are buffered.
func BodySizeLimit(maxSize string) Middleware {
	size := util.ParseSize(maxSize, defaultMaxBodySize) + bodyOverheadAllowance
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, size)
			next.ServeHTTP(w, r)
		})
	}
}

// GinBodySizeLimit returns a Gin middleware for body size limiting.
func GinBodySizeLimit(maxSize string) gin.HandlerFunc {
	return GinWrap(BodySizeLimit(maxSize))
}
