package handler

import (
	"net/http"

	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	service *services.ExportService
	logger  *logger.Logger
}

func NewExportHandler(service *services.ExportService, l *logger.Logger) *ExportHandler {
	return &ExportHandler{service: service, logger: l}
}

// Export uploads a snapshot of all todos and returns a download link.
func (h *ExportHandler) Export(c *gin.Context) {
	res, err := h.service.Export(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.ExportResponse{
		Key:       res.Key,
		URL:       res.URL,
		ExpiresAt: res.ExpiresAt,
		Count:     res.Count,
	}))
}
