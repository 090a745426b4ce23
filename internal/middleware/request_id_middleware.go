package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	RequestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

// RequestIDMiddleware keeps a caller supplied id when it is well formed and
// otherwise generates one. The id is echoed back and stored on the context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = newRequestID()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// validRequestID accepts ids that are safe to put in logs and headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// newRequestID returns 16 random bytes hex encoded.
func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
