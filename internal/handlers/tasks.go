package handlers

import (
	"net/http"
	"time"

	"task-dashboard/backend/internal/query"
	"task-dashboard/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
	loc         *time.Location
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService, loc: time.Local}
}

// RegisterRoutes mounts the task, stats and category endpoints on rg.
func (h *TaskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	tasks.GET("", h.GetTasks)
	tasks.POST("", h.CreateTask)
	tasks.POST("/bulk/update", h.BulkUpdate)
	tasks.POST("/bulk/delete", h.BulkDelete)
	tasks.GET("/:id", h.GetTaskByID)
	tasks.PATCH("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)

	rg.GET("/stats", h.GetStats)
	rg.GET("/categories", h.GetCategories)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	raw := query.RawParams{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Category: c.Query("category"),
		Date:     c.Query("date"),
		SortBy:   c.Query("sortBy"),
	}

	tasks, err := h.taskService.Query(c.Request.Context(), raw)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	task, err := h.taskService.GetByID(c.Request.Context(), id)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var in createTaskIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := in.toInput(h.loc)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), input)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	var in patchTaskIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch, err := in.toPatch(h.loc)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), id, patch)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		handleTaskError(c, err)
		return
	}

	task, err := h.taskService.Delete(c.Request.Context(), id)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) BulkUpdate(c *gin.Context) {
	var in bulkUpdateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch, err := in.Patch.toPatch(h.loc)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	tasks, err := h.taskService.BulkUpdate(c.Request.Context(), toInt64s(in.IDs), patch, in.Strict)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkOut{Tasks: tasks, Count: len(tasks)})
}

func (h *TaskHandler) BulkDelete(c *gin.Context) {
	var in bulkDeleteIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks, err := h.taskService.BulkDelete(c.Request.Context(), toInt64s(in.IDs), in.Strict)
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkOut{Tasks: tasks, Count: len(tasks)})
}

func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.taskService.GetStats(c.Request.Context())
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *TaskHandler) GetCategories(c *gin.Context) {
	categories, err := h.taskService.GetCategories(c.Request.Context())
	if err != nil {
		handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}
