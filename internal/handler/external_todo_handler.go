package handler

import (
	"net/http"
	"strconv"

	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ExternalTodoHandler struct {
	service *services.ExternalTodoService
	logger  *logger.Logger
}

func NewExternalTodoHandler(service *services.ExternalTodoService, l *logger.Logger) *ExternalTodoHandler {
	return &ExternalTodoHandler{service: service, logger: l}
}

func (h *ExternalTodoHandler) List(c *gin.Context) {
	todos, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(todos))
}

func (h *ExternalTodoHandler) Get(c *gin.Context) {
	id, ok := h.externalID(c)
	if !ok {
		return
	}
	t, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(t))
}

func (h *ExternalTodoHandler) Create(c *gin.Context) {
	var req httpdto.ExternalTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	t, err := h.service.Create(c.Request.Context(), services.ExternalTodoInput{
		UserID:    req.UserID,
		Title:     req.Title,
		Completed: req.Completed,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", "/api/v1/external-todos/"+strconv.Itoa(t.ID))
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(t))
}

func (h *ExternalTodoHandler) Update(c *gin.Context) {
	id, ok := h.externalID(c)
	if !ok {
		return
	}

	var req httpdto.ExternalTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	t, err := h.service.Update(c.Request.Context(), id, services.ExternalTodoInput{
		UserID:    req.UserID,
		Title:     req.Title,
		Completed: req.Completed,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(t))
}

func (h *ExternalTodoHandler) Delete(c *gin.Context) {
	id, ok := h.externalID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExternalTodoHandler) externalID(c *gin.Context) (int, bool) {
	id, err := parseInt(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("external todo not found", "NOT_FOUND"))
		return 0, false
	}
	return id, true
}
