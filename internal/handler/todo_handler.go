package handler

import (
	"net/http"
	"strings"

	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
)

type TodoHandler struct {
	service *services.TodoService
	logger  *logger.Logger
}

func NewTodoHandler(service *services.TodoService, l *logger.Logger) *TodoHandler {
	return &TodoHandler{service: service, logger: l}
}

// List handles GET /todos with paging, filter and sort.
func (h *TodoHandler) List(c *gin.Context) {
	var q httpdto.ListTodosQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid query", "INVALID_REQUEST"))
		return
	}

	page, err := h.service.List(c.Request.Context(), services.ListTodosInput{
		Page:     q.Page,
		PageSize: q.PageSize,
		Filter:   q.Filter,
		Sort:     q.Sort,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PagedResponse[httpdto.TodoResponse]{
		Items:      httpdto.NewTodoListResponse(page.Items),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalCount: page.TotalCount,
		TotalPages: page.TotalPages(),
	}))
}

func (h *TodoHandler) Get(c *gin.Context) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("todo not found", "NOT_FOUND"))
		return
	}

	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewTodoResponse(item)))
}

func (h *TodoHandler) Create(c *gin.Context) {
	var req httpdto.CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	item, err := h.service.Create(c.Request.Context(), services.CreateTodoInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.Header("Location", "/api/v1/todos/"+item.ID.String())
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewTodoResponse(item)))
}

func (h *TodoHandler) Update(c *gin.Context) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("todo not found", "NOT_FOUND"))
		return
	}

	var req httpdto.UpdateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	if req.ID != "" && !strings.EqualFold(req.ID, id.String()) {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("ID in URL and body do not match.", "INVALID_REQUEST"))
		return
	}

	item, err := h.service.Update(c.Request.Context(), id, services.UpdateTodoInput{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		Version:     req.Version,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewTodoResponse(item)))
}

func (h *TodoHandler) Delete(c *gin.Context) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("todo not found", "NOT_FOUND"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
