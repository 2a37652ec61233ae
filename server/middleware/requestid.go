package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillsenselab/transcribed/logger"
)

// HeaderRequestID carries the correlation id on requests and responses.
const HeaderRequestID = "X-Request-Id"

// RequestID assigns a correlation id to every request. An id presented by the
// caller is kept so traces survive a proxy hop.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(logger.FieldRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
