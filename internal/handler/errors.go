package handler

import (
	"strconv"

	"todo-system/internal/middleware"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func writeError(c *gin.Context, l *logger.Logger, err error) {
	middleware.WriteError(c, l, err)
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
