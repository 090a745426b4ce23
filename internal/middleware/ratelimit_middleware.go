package middleware

import (
	"net/http"
	"strconv"

	"todo-system/internal/redis"
	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware counts requests per user, or per client IP for
// anonymous callers. Apply after AuthMiddleware to partition by user.
func RateLimitMiddleware(limiter *redis.RateLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.Allow(c.Request.Context(), partitionKey(c))
		if err != nil {
			// a Redis outage should not take the API down
			if l != nil {
				l.Warn(c.Request.Context(), "rate limiter unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func partitionKey(c *gin.Context) string {
	if userID, ok := services.UserIDFromContext(c.Request.Context()); ok {
		return userID.String()
	}
	return "anonymous:" + c.ClientIP()
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
