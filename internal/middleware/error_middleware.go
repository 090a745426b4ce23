package middleware

import (
	"errors"
	"net/http"

	"todo-system/internal/transport/httpdto"
	todo_errors "todo-system/pkg/errors"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "An unexpected error occurred."

// ErrorHandler renders the last error attached with c.Error when the
// handler did not write a response itself.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		WriteError(c, l, c.Errors.Last().Err)
	}
}

// Recovery turns panics into a 500 envelope and logs the panic value.
func Recovery(l *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		log.Error(c.Request.Context(), "panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpdto.NewErrorResponse(internalErrorMessage, "INTERNAL_ERROR"))
	})
}

// WriteError maps err to its status and envelope. Server errors are logged
// and their message is hidden from the client.
func WriteError(c *gin.Context, l *logger.Logger, err error) {
	status := todo_errors.HTTPStatus(err)
	code := todo_errors.Code(status)

	var verr *todo_errors.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(status, httpdto.NewValidationErrorResponse("One or more validation errors occurred.", verr.Fields))
		return
	}

	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		if l == nil {
			l = logger.GetGlobalLogger()
		}
		l.Error(c.Request.Context(), "request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		message = internalErrorMessage
	}
	c.AbortWithStatusJSON(status, httpdto.NewErrorResponse(message, code))
}
