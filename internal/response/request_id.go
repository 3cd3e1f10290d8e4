package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextKeyRequestID is the Gin context key for the request ID.
	ContextKeyRequestID = "request_id"

	headerRequestID  = "X-Request-ID"
	maxRequestIDSize = 64
)

// RequestIDMiddleware tags each request with an ID. A caller-supplied
// X-Request-ID is echoed only when it is short printable ASCII, since it
// ends up in log lines.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}

// RequestID returns the ID assigned by RequestIDMiddleware, or a fresh one
// when the middleware did not run.
func RequestID(c *gin.Context) string {
	if id := c.GetString(ContextKeyRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDSize {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
